package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

type memoryRuns struct {
	mu   sync.Mutex
	runs map[string]LoadRun
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[string]LoadRun)}
}

func (m *memoryRuns) Create(_ context.Context, run *LoadRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) Complete(_ context.Context, id, version string, records, rejected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[id]
	run.Status = StatusPublished
	run.Version = version
	run.RecordCount = records
	run.Rejected = rejected
	m.runs[id] = run
	return nil
}

func (m *memoryRuns) Fail(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[id]
	run.Status = StatusFailed
	run.Error = errMsg
	m.runs[id] = run
	return nil
}

func (m *memoryRuns) Get(_ context.Context, id string) (*LoadRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (m *memoryRuns) CleanupExpired(context.Context, time.Duration) error {
	return nil
}

type memoryStore struct {
	dataset *models.Dataset
	err     error
}

func (s *memoryStore) ReplaceAll(_ context.Context, dataset *models.Dataset) error {
	if s.err != nil {
		return s.err
	}
	s.dataset = dataset
	return nil
}

type recordingPublisher struct {
	events []map[string]interface{}
	types  []string
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, eventType string, _ string, data map[string]interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.types = append(p.types, eventType)
	p.events = append(p.events, data)
	return nil
}

func newTestService(store *memoryStore, pub *recordingPublisher) (*Service, *memoryRuns) {
	runs := newMemoryRuns()
	return NewService(NewValidator(nil), runs, store, pub, Options{}, time.Hour), runs
}

func TestServiceLoad(t *testing.T) {
	store := &memoryStore{}
	pub := &recordingPublisher{}
	svc, _ := newTestService(store, pub)

	run, err := svc.Load(context.Background(), LoadRequest{Source: " EHR-Export ", Format: "CSV"}, strings.NewReader(csvHeader+csvBobby+csvLeslie))
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, run.Status)
	assert.Equal(t, "ehr-export", run.Source)
	assert.Equal(t, 2, run.RecordCount)

	require.NotNil(t, store.dataset)
	assert.Equal(t, run.Version, store.dataset.Version)
	assert.Equal(t, 2, store.dataset.Len())

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventDatasetUpdated, pub.types[0])
	assert.Equal(t, run.Version, pub.events[0]["version"])
	assert.Equal(t, 2, pub.events[0]["records"])

	stored, err := svc.Status(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, stored.Status)
}

func TestServiceLoadIntegrityFailure(t *testing.T) {
	store := &memoryStore{}
	pub := &recordingPublisher{}
	svc, runs := newTestService(store, pub)

	bad := strings.Replace(csvBobby, ",2\n", ",3\n", 1)
	run, err := svc.Load(context.Background(), LoadRequest{Source: "ehr", Format: FormatCSV}, strings.NewReader(csvHeader+bad))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.Nil(t, store.dataset)
	assert.Empty(t, pub.events)

	stored, err := runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "Length of Stay")
}

func TestServiceLoadPublishFailure(t *testing.T) {
	store := &memoryStore{}
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, runs := newTestService(store, pub)

	run, err := svc.Load(context.Background(), LoadRequest{Source: "ehr", Format: FormatCSV}, strings.NewReader(csvHeader+csvBobby))
	require.Error(t, err)
	assert.False(t, IsClientError(err))

	stored, _ := runs.Get(context.Background(), run.ID)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestServiceLoadValidation(t *testing.T) {
	svc, _ := newTestService(&memoryStore{}, &recordingPublisher{})

	_, err := svc.Load(context.Background(), LoadRequest{Source: "", Format: FormatCSV}, strings.NewReader(""))
	assert.True(t, IsValidationError(err))

	_, err = svc.Load(context.Background(), LoadRequest{Source: "ehr", Format: "xlsx"}, strings.NewReader(""))
	assert.True(t, IsValidationError(err))

	restricted := NewService(NewValidator([]string{"ehr"}), newMemoryRuns(), &memoryStore{}, &recordingPublisher{}, Options{}, 0)
	_, err = restricted.Load(context.Background(), LoadRequest{Source: "manual", Format: FormatCSV}, strings.NewReader(""))
	assert.True(t, IsValidationError(err))
}

func TestHTTPHandler(t *testing.T) {
	svc, _ := newTestService(&memoryStore{}, &recordingPublisher{})
	router := mux.NewRouter()
	NewHTTPHandler(svc, 1<<20).Register(router)

	req := httptest.NewRequest(http.MethodPost, "/datasets?source=ehr&format=csv", strings.NewReader(csvHeader+csvBobby))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var run LoadRun
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, 1, run.RecordCount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets/loads/"+run.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets/loads/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := strings.Replace(csvBobby, ",5,31-01-2024", ",0,31-01-2024", 1)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/datasets?source=ehr", strings.NewReader(csvHeader+bad)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPHandlerBodyLimit(t *testing.T) {
	svc, _ := newTestService(&memoryStore{}, &recordingPublisher{})
	router := mux.NewRouter()
	NewHTTPHandler(svc, 64).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/datasets?source=ehr", strings.NewReader(csvHeader+csvBobby)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIsClientError(t *testing.T) {
	malformed := fmt.Errorf("read row 3: %w", &csv.ParseError{StartLine: 4, Line: 4, Column: 2, Err: csv.ErrQuote})
	assert.True(t, IsClientError(malformed))
	assert.True(t, IsClientError(fmt.Errorf("read jsonl: %w", bufio.ErrTooLong)))
	assert.True(t, IsClientError(fmt.Errorf("%w: Season", ErrMissingColumn)))
	assert.False(t, IsClientError(errors.New("connection refused")))
}

func TestHTTPHandlerOverlongJSONLine(t *testing.T) {
	svc, _ := newTestService(&memoryStore{}, &recordingPublisher{})
	router := mux.NewRouter()
	NewHTTPHandler(svc, 0).Register(router)

	line := `{"name":"` + strings.Repeat("x", 5<<20) + `"}` + "\n"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/datasets?source=ehr&format=jsonl", strings.NewReader(line)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
