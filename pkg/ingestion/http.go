package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/healthreport/pkg/common/logger"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/datasets", h.handleLoad).Methods(http.MethodPost)
	router.HandleFunc("/datasets/loads/{id}", h.handleStatus).Methods(http.MethodGet)
}

// handleLoad takes the raw export as the request body; source and format come from the query.
func (h *HTTPHandler) handleLoad(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	query := r.URL.Query()
	req := LoadRequest{
		Source: query.Get("source"),
		Format: query.Get("format"),
	}
	if req.Format == "" {
		req.Format = FormatCSV
		if r.Header.Get("Content-Type") == "application/x-ndjson" {
			req.Format = FormatJSONL
		}
	}

	run, err := h.service.Load(r.Context(), req, r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, "dataset too large", http.StatusRequestEntityTooLarge)
		case IsClientError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Log.WithError(err).Error("failed to load dataset")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(run)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "dataset load not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch dataset load")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}
