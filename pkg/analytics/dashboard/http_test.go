package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/healthreport/pkg/ingestion"
)

func newTestRouter(svc *Service) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	NewHTTPHandler(svc).Register(api)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHTTPSummary(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/summary", `{"criteria":{"genders":["Male"]},"top_doctors":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Version string `json:"version"`
		Summary struct {
			Count      int `json:"count"`
			TopDoctors []struct {
				Value string `json:"value"`
			} `json:"top_doctors"`
		} `json:"summary"`
		Deltas struct {
			Patients int `json:"patients"`
		} `json:"deltas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1", body.Version)
	assert.Equal(t, 5, body.Summary.Count)
	assert.Len(t, body.Summary.TopDoctors, 2)
	assert.Equal(t, -5, body.Deltas.Patients)
}

func TestHTTPEmptySummaryRendersNull(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/summary", `{"dsl":"hospital in ()"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Summary map[string]interface{} `json:"summary"`
		Deltas  map[string]interface{} `json:"deltas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body.Summary["count"])
	assert.Nil(t, body.Summary["average_length_of_stay"])
	assert.Nil(t, body.Summary["billing_threshold"])
	assert.Contains(t, body.Deltas, "average_stay")
	assert.Nil(t, body.Deltas["average_stay"])
	assert.Equal(t, false, body.Deltas["has_stay_delta"])
}

func TestHTTPFilterWithoutBody(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/filter", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result FilterResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 10, result.Count)
	assert.Equal(t, day(0), result.Criteria.DateLower)
	assert.Equal(t, day(27), result.Criteria.DateUpper)
}

func TestHTTPClientErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"inverted range", http.MethodPost, "/api/v1/dashboard/filter", `{"criteria":{"date_lower":"2024-02-01","date_upper":"2024-01-01"}}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/dashboard/filter", `{"criteria":{"date_lower":"01/02/2024"}}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/dashboard/summary", `{"criteria":`, http.StatusBadRequest},
		{"dsl syntax", http.MethodPost, "/api/v1/dashboard/filter", `{"dsl":"gender ~ Male"}`, http.StatusBadRequest},
		{"unknown dsl field", http.MethodPost, "/api/v1/dashboard/insights", `{"dsl":"doctor = Smith"}`, http.StatusBadRequest},
		{"empty search term", http.MethodPost, "/api/v1/dashboard/search", `{"term":""}`, http.StatusBadRequest},
		{"unknown patient", http.MethodGet, "/api/v1/dashboard/patients/42", "", http.StatusNotFound},
		{"unknown preset", http.MethodGet, "/api/v1/dashboard/presets/nope", "", http.StatusNotFound},
		{"non numeric position", http.MethodGet, "/api/v1/dashboard/patients/abc", "", http.StatusNotFound},
		{"oversized bins", http.MethodPost, "/api/v1/dashboard/summary", `{"bins":1152921504606846976}`, http.StatusBadRequest},
		{"negative bins", http.MethodPost, "/api/v1/dashboard/summary", `{"bins":-1}`, http.StatusBadRequest},
		{"patient filtered out", http.MethodPost, "/api/v1/dashboard/patients/9", `{"criteria":{"hospitals":["Sons and Miller"]}}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHTTPNotReady(t *testing.T) {
	router := newTestRouter(NewService(nil, nil, nil, Settings{}))

	rec := serve(router, http.MethodGet, "/api/v1/dashboard/criteria/default", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = serve(router, http.MethodPost, "/api/v1/dashboard/summary", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPPatientAndDataset(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodGet, "/api/v1/dashboard/patients/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail PatientDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 4, detail.Patient.Position)
	assert.True(t, detail.Critical)

	rec = serve(router, http.MethodGet, "/api/v1/dashboard/dataset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info DatasetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 10, info.Records)
	assert.Equal(t, "ehr", info.Source)
}

func TestHTTPSummaryHistogramBins(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/summary", `{"bins":100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report SummaryReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Histogram, MaxHistogramBins)
}

func TestHTTPPatientWithCriteria(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/patients/9", `{"criteria":{"hospitals":["Kim Inc"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail PatientDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 2, detail.Billing.Count)

	rec = serve(router, http.MethodGet, "/api/v1/dashboard/patients/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 4, detail.Billing.Count)
}

func TestHTTPPresets(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/presets", `{"name":"kim","dsl":"hospital = \"Kim Inc\""}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID       string `json:"id"`
		Criteria struct {
			Hospitals []string `json:"hospitals"`
		} `json:"criteria"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, []string{"Kim Inc"}, created.Criteria.Hospitals)

	rec = serve(router, http.MethodGet, "/api/v1/dashboard/presets/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/dashboard/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = serve(router, http.MethodPost, "/api/v1/dashboard/presets", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/dashboard/insights", `{"preset_id":"`+created.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var insights Insights
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &insights))
	assert.Empty(t, insights.AtRisk)
}

func TestHTTPExport(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/api/v1/dashboard/export", `{"dsl":"condition = Asthma"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	result, err := ingestion.Read(rec.Body, ingestion.FormatCSV, ingestion.Options{})
	require.NoError(t, err)
	require.Len(t, result.Records, 3)
	assert.Equal(t, "Asthma", result.Records[0].MedicalCondition)
	assert.Equal(t, 300.0, result.Records[0].BillingAmount)

	rec = serve(router, http.MethodPost, "/api/v1/dashboard/export", `{"dsl":"admitted >= 2024-05-01 and admitted <= 2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
