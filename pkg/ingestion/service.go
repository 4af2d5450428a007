package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
	"github.com/synaptica-ai/healthreport/pkg/observability/metrics"
)

type RunStore interface {
	Create(ctx context.Context, run *LoadRun) error
	Complete(ctx context.Context, id, version string, records, rejected int) error
	Fail(ctx context.Context, id, errMsg string) error
	Get(ctx context.Context, id string) (*LoadRun, error)
	CleanupExpired(ctx context.Context, ttl time.Duration) error
}

type DatasetWriter interface {
	ReplaceAll(ctx context.Context, dataset *models.Dataset) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Service struct {
	validator *Validator
	runs      RunStore
	store     DatasetWriter
	producer  EventPublisher
	opts      Options
	statusTTL time.Duration
}

func NewService(validator *Validator, runs RunStore, store DatasetWriter, producer EventPublisher, opts Options, ttl time.Duration) *Service {
	return &Service{
		validator: validator,
		runs:      runs,
		store:     store,
		producer:  producer,
		opts:      opts,
		statusTTL: ttl,
	}
}

// Load reads an export, replaces the stored dataset with it and announces the new version.
func (s *Service) Load(ctx context.Context, req LoadRequest, body io.Reader) (*LoadRun, error) {
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	run := &LoadRun{
		ID:     uuid.New().String(),
		Source: req.Source,
		Format: req.Format,
		Status: StatusAccepted,
	}
	if len(req.Metadata) > 0 {
		run.Metadata = make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			run.Metadata[k] = v
		}
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("persisting load run: %w", err)
	}

	log := logger.WithFields(map[string]interface{}{
		"load_id": run.ID,
		"source":  run.Source,
		"format":  run.Format,
	})

	result, err := Read(body, req.Format, s.opts)
	if err != nil {
		metrics.ObserveLoadFailure(models.IsDataIntegrityError(err))
		s.fail(ctx, run, err)
		return run, err
	}

	dataset := &models.Dataset{
		Version:  uuid.New().String(),
		Source:   req.Source,
		LoadedAt: time.Now().UTC(),
		Records:  result.Records,
	}
	if err := s.store.ReplaceAll(ctx, dataset); err != nil {
		metrics.ObserveLoadFailure(false)
		s.fail(ctx, run, err)
		return run, fmt.Errorf("storing dataset: %w", err)
	}

	payload := map[string]interface{}{
		"load_id":  run.ID,
		"version":  dataset.Version,
		"source":   dataset.Source,
		"format":   req.Format,
		"records":  dataset.Len(),
		"rejected": len(result.Rejected),
	}
	if err := s.producer.PublishEvent(ctx, models.EventDatasetUpdated, req.Source, payload); err != nil {
		log.WithError(err).Error("failed to publish dataset update")
		metrics.ObserveLoadFailure(false)
		s.fail(ctx, run, err)
		return run, fmt.Errorf("publishing event: %w", err)
	}

	if err := s.runs.Complete(ctx, run.ID, dataset.Version, dataset.Len(), len(result.Rejected)); err != nil {
		log.WithError(err).Warn("failed to record load completion")
	}
	run.Status = StatusPublished
	run.Version = dataset.Version
	run.RecordCount = dataset.Len()
	run.Rejected = len(result.Rejected)
	metrics.ObserveLoad(run.RecordCount, run.Rejected)

	log.WithFields(map[string]interface{}{
		"version":  run.Version,
		"records":  run.RecordCount,
		"rejected": run.Rejected,
	}).Info("dataset loaded")
	return run, nil
}

func (s *Service) fail(ctx context.Context, run *LoadRun, cause error) {
	run.Status = StatusFailed
	run.Error = cause.Error()
	if err := s.runs.Fail(ctx, run.ID, run.Error); err != nil {
		logger.Log.WithError(err).WithField("load_id", run.ID).Warn("failed to record load failure")
	}
}

func (s *Service) Status(ctx context.Context, id string) (*LoadRun, error) {
	return s.runs.Get(ctx, id)
}

func (s *Service) Cleanup(ctx context.Context) error {
	return s.runs.CleanupExpired(ctx, s.statusTTL)
}

// IsClientError reports whether err was caused by the submitted data rather than the service.
func IsClientError(err error) bool {
	var parseErr *csv.ParseError
	return IsValidationError(err) ||
		models.IsDataIntegrityError(err) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, bufio.ErrTooLong) ||
		errors.As(err, &parseErr)
}
