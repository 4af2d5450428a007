package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/healthreport/pkg/analytics/dsl"
	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
	"github.com/synaptica-ai/healthreport/pkg/ingestion"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	r := router.PathPrefix("/dashboard").Subrouter()
	r.HandleFunc("/dataset", h.handleDataset).Methods(http.MethodGet)
	r.HandleFunc("/criteria/default", h.handleDefaultCriteria).Methods(http.MethodGet)
	r.HandleFunc("/filter", h.handleFilter).Methods(http.MethodPost)
	r.HandleFunc("/summary", h.handleSummary).Methods(http.MethodPost)
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/insights", h.handleInsights).Methods(http.MethodPost)
	r.HandleFunc("/export", h.handleExport).Methods(http.MethodPost)
	r.HandleFunc("/patients/{position:[0-9]+}", h.handlePatient).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/presets", h.handleCreatePreset).Methods(http.MethodPost)
	r.HandleFunc("/presets", h.handleListPresets).Methods(http.MethodGet)
	r.HandleFunc("/presets/{id}", h.handleGetPreset).Methods(http.MethodGet)
}

type presetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Query
}

func (h *HTTPHandler) handleDataset(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *HTTPHandler) handleDefaultCriteria(w http.ResponseWriter, r *http.Request) {
	criteria, err := h.service.DefaultCriteria()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, criteria)
}

func (h *HTTPHandler) handleFilter(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	result, err := h.service.Filter(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	report, err := h.service.Summary(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	result, err := h.service.Search(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleInsights(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	insights, err := h.service.Insights(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (h *HTTPHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	view, err := h.service.Export(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="patients.csv"`)
	if err := ingestion.WriteCSV(w, view); err != nil {
		logger.Log.WithError(err).Error("failed to write export")
	}
}

func (h *HTTPHandler) handlePatient(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(mux.Vars(r)["position"])
	if err != nil {
		http.Error(w, "invalid position", http.StatusBadRequest)
		return
	}
	q, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Patient(r.Context(), position, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *HTTPHandler) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	preset, err := h.service.CreatePreset(r.Context(), req.Name, req.Description, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, preset)
}

func (h *HTTPHandler) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.service.ListPresets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

func (h *HTTPHandler) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := h.service.GetPreset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

// decodeQuery accepts an empty body as the default query.
func decodeQuery(w http.ResponseWriter, r *http.Request) (Query, bool) {
	var q Query
	if r.Body == nil {
		return q, true
	}
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return Query{}, false
	}
	return q, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidSearchTerm),
		errors.Is(err, ErrInvalidBins),
		errors.Is(err, ErrInvalidCriteria),
		errors.Is(err, ErrInvalidPreset),
		errors.Is(err, dsl.ErrSyntax),
		errors.Is(err, models.ErrInvalidDate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPresetNotFound), errors.Is(err, ErrPatientNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotReady):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logger.Log.WithError(err).Error("dashboard query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
