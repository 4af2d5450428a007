package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
	"github.com/synaptica-ai/healthreport/pkg/observability/metrics"
	"github.com/synaptica-ai/healthreport/pkg/storage"
)

var (
	ErrNotReady        = errors.New("no dataset loaded")
	ErrPatientNotFound = errors.New("patient not found")
)

type DatasetLoader interface {
	LoadAll(ctx context.Context) (*models.Dataset, error)
}

type SummaryCache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

type PresetStore interface {
	Create(ctx context.Context, preset *models.FilterPreset) error
	List(ctx context.Context) ([]models.FilterPreset, error)
	Get(ctx context.Context, id string) (*models.FilterPreset, error)
}

const (
	DefaultReloadAttempts = 3
	DefaultReloadBackoff  = time.Second
)

type Settings struct {
	Catalog     Catalog
	TopDoctors  int
	AtRiskLimit int
	// ReloadAttempts bounds how often HandleEvent tries to load an announced version;
	// the wait doubles from ReloadBackoff between attempts.
	ReloadAttempts int
	ReloadBackoff  time.Duration
}

// Query is the body of every dashboard request. Criteria fields left out fall back to
// the dataset defaults; DSL is applied last, on top of the preset and explicit criteria.
type Query struct {
	Criteria    *models.Criteria `json:"criteria,omitempty"`
	DSL         string           `json:"dsl,omitempty"`
	PresetID    string           `json:"preset_id,omitempty"`
	TopDoctors  int              `json:"top_doctors,omitempty"`
	IncludeZero bool             `json:"include_zero,omitempty"`
	Term        string           `json:"term,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Bins        int              `json:"bins,omitempty"`
}

type FilterResult struct {
	Version  string                 `json:"version"`
	Criteria models.Criteria        `json:"criteria"`
	Count    int                    `json:"count"`
	Records  []models.PatientRecord `json:"records"`
}

type SummaryReport struct {
	Version   string                  `json:"version"`
	Criteria  models.Criteria         `json:"criteria"`
	Summary   Summary                 `json:"summary"`
	Deltas    models.Deltas           `json:"deltas"`
	Histogram []models.ProbabilityBin `json:"prediction_histogram"`
}

type SearchResult struct {
	Version string                 `json:"version"`
	Term    string                 `json:"term"`
	Count   int                    `json:"count"`
	Records []models.PatientRecord `json:"records"`
}

type Insights struct {
	Version          string                 `json:"version"`
	HighRiskNormal   []models.PatientRecord `json:"high_risk_normal_results"`
	AtRisk           []models.PatientRecord `json:"at_risk_predictions"`
	BillingThreshold *float64               `json:"billing_threshold"`
	Outliers         []models.PatientRecord `json:"high_billing_outliers"`
}

type PatientDetail struct {
	Version  string                   `json:"version"`
	Patient  models.PatientRecord     `json:"patient"`
	Billing  models.BillingComparison `json:"billing"`
	Critical bool                     `json:"high_risk_alert"`
}

type DatasetInfo struct {
	Version  string    `json:"version"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	Records  int       `json:"records"`
}

type snapshot struct {
	dataset  *models.Dataset
	defaults models.Criteria
	baseline Summary
}

// Service answers dashboard queries against the current dataset snapshot. Reload swaps the
// snapshot; queries already holding the previous one finish against it.
type Service struct {
	loader   DatasetLoader
	cache    SummaryCache
	presets  PresetStore
	settings Settings

	mu      sync.RWMutex
	current *snapshot
}

func NewService(loader DatasetLoader, cache SummaryCache, presets PresetStore, settings Settings) *Service {
	if settings.TopDoctors <= 0 {
		settings.TopDoctors = DefaultTopDoctors
	}
	if settings.AtRiskLimit <= 0 {
		settings.AtRiskLimit = DefaultAtRiskLimit
	}
	if settings.ReloadAttempts <= 0 {
		settings.ReloadAttempts = DefaultReloadAttempts
	}
	if settings.ReloadBackoff <= 0 {
		settings.ReloadBackoff = DefaultReloadBackoff
	}
	return &Service{
		loader:   loader,
		cache:    cache,
		presets:  presets,
		settings: settings,
	}
}

func (s *Service) Reload(ctx context.Context) error {
	if s.loader == nil {
		return ErrNotReady
	}
	dataset, err := s.loader.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	s.Install(dataset)
	return nil
}

// Install makes dataset the snapshot served to new queries.
func (s *Service) Install(dataset *models.Dataset) {
	snap := &snapshot{
		dataset:  dataset,
		defaults: DefaultCriteria(dataset.Records),
		baseline: Summarize(dataset.Records, SummaryOptions{Catalog: s.settings.Catalog}),
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	metrics.ObserveSnapshot(dataset.Len())
	logger.WithFields(map[string]interface{}{
		"version": dataset.Version,
		"source":  dataset.Source,
		"records": dataset.Len(),
	}).Info("dataset snapshot installed")
}

// HandleEvent reloads the snapshot when a newer dataset version is announced, retrying
// failed loads with backoff. The previous snapshot keeps serving until a load succeeds.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != models.EventDatasetUpdated {
		return nil
	}
	version, _ := event.Data["version"].(string)
	if snap, err := s.active(); err == nil && version != "" && snap.dataset.Version == version {
		logger.WithField("version", version).Debug("dataset version already installed")
		return nil
	}

	backoff := s.settings.ReloadBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = s.Reload(ctx); err == nil || errors.Is(err, ErrNotReady) {
			return err
		}
		if attempt >= s.settings.ReloadAttempts {
			return err
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"version": version,
			"attempt": attempt,
		}).Warn("dataset reload failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *Service) active() (*snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotReady
	}
	return s.current, nil
}

func (s *Service) Info() (*DatasetInfo, error) {
	snap, err := s.active()
	if err != nil {
		return nil, err
	}
	return &DatasetInfo{
		Version:  snap.dataset.Version,
		Source:   snap.dataset.Source,
		LoadedAt: snap.dataset.LoadedAt,
		Records:  snap.dataset.Len(),
	}, nil
}

func (s *Service) DefaultCriteria() (models.Criteria, error) {
	snap, err := s.active()
	if err != nil {
		return models.Criteria{}, err
	}
	return cloneCriteria(snap.defaults), nil
}

func (s *Service) Filter(ctx context.Context, q Query) (result *FilterResult, err error) {
	defer func() { metrics.ObserveQuery("filter", err) }()

	snap, criteria, view, err := s.view(ctx, q)
	if err != nil {
		return nil, err
	}
	return &FilterResult{
		Version:  snap.dataset.Version,
		Criteria: criteria,
		Count:    len(view),
		Records:  view,
	}, nil
}

type summaryKey struct {
	Criteria    models.Criteria `json:"criteria"`
	TopDoctors  int             `json:"top_doctors"`
	IncludeZero bool            `json:"include_zero"`
	Bins        int             `json:"bins"`
}

func (s *Service) Summary(ctx context.Context, q Query) (report *SummaryReport, err error) {
	defer func() { metrics.ObserveQuery("summary", err) }()

	if q.Bins < 0 || q.Bins > MaxHistogramBins {
		return nil, fmt.Errorf("%w: %d is outside 0..%d", ErrInvalidBins, q.Bins, MaxHistogramBins)
	}
	snap, err := s.active()
	if err != nil {
		return nil, err
	}
	criteria, err := s.resolve(ctx, snap, q)
	if err != nil {
		return nil, err
	}
	opts := s.summaryOptions(q)

	key, keyErr := storage.Key("summary", snap.dataset.Version, summaryKey{
		Criteria:    criteria,
		TopDoctors:  opts.TopDoctors,
		IncludeZero: opts.IncludeZeroCategories,
		Bins:        q.Bins,
	})
	if keyErr == nil && s.cache != nil {
		var cached SummaryReport
		hit, cacheErr := s.cache.Get(ctx, key, &cached)
		if cacheErr != nil {
			logger.Log.WithError(cacheErr).Warn("summary cache read failed")
		}
		metrics.ObserveCache(hit)
		if hit {
			return &cached, nil
		}
	}

	view, err := ApplyFilters(snap.dataset.Records, criteria)
	if err != nil {
		return nil, err
	}
	summary := Summarize(view, opts)
	report = &SummaryReport{
		Version:   snap.dataset.Version,
		Criteria:  criteria,
		Summary:   summary,
		Deltas:    Compare(summary, snap.baseline),
		Histogram: ProbabilityHistogram(view, q.Bins),
	}

	if keyErr == nil && s.cache != nil {
		if err := s.cache.Set(ctx, key, report); err != nil {
			logger.Log.WithError(err).Warn("summary cache write failed")
		}
	}
	return report, nil
}

func (s *Service) Search(ctx context.Context, q Query) (result *SearchResult, err error) {
	defer func() { metrics.ObserveQuery("search", err) }()

	if strings.TrimSpace(q.Term) == "" {
		return nil, fmt.Errorf("%w: term is empty", ErrInvalidSearchTerm)
	}
	snap, _, view, err := s.view(ctx, q)
	if err != nil {
		return nil, err
	}
	matches, err := Search(view, q.Term)
	if err != nil {
		return nil, err
	}
	return &SearchResult{
		Version: snap.dataset.Version,
		Term:    q.Term,
		Count:   len(matches),
		Records: matches,
	}, nil
}

func (s *Service) Insights(ctx context.Context, q Query) (result *Insights, err error) {
	defer func() { metrics.ObserveQuery("insights", err) }()

	snap, _, view, err := s.view(ctx, q)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.settings.AtRiskLimit
	}
	threshold, outliers := HighBillingOutliers(view)
	return &Insights{
		Version:          snap.dataset.Version,
		HighRiskNormal:   HighRiskWithNormalResults(view),
		AtRisk:           AtRiskPredictions(view, limit),
		BillingThreshold: finiteOrNil(threshold),
		Outliers:         outliers,
	}, nil
}

// Export resolves q and returns the filtered view for download.
func (s *Service) Export(ctx context.Context, q Query) (records []models.PatientRecord, err error) {
	defer func() { metrics.ObserveQuery("export", err) }()

	_, _, view, err := s.view(ctx, q)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Patient returns one record of the view resolved from q, with its bill placed among
// the view's patients sharing the condition. A record filtered out by q is not found.
func (s *Service) Patient(ctx context.Context, position int, q Query) (detail *PatientDetail, err error) {
	defer func() { metrics.ObserveQuery("patient", err) }()

	snap, _, view, err := s.view(ctx, q)
	if err != nil {
		return nil, err
	}
	rec, ok := FindByPosition(view, position)
	if !ok {
		return nil, fmt.Errorf("%w: position %d", ErrPatientNotFound, position)
	}
	return &PatientDetail{
		Version:  snap.dataset.Version,
		Patient:  rec,
		Billing:  CompareBilling(view, rec),
		Critical: rec.HighRisk(),
	}, nil
}

// CreatePreset resolves q against the current dataset and stores the resulting criteria.
func (s *Service) CreatePreset(ctx context.Context, name, description string, q Query) (*models.FilterPreset, error) {
	if s.presets == nil {
		return nil, fmt.Errorf("%w: presets are not configured", ErrInvalidPreset)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPreset)
	}
	snap, err := s.active()
	if err != nil {
		return nil, err
	}
	criteria, err := s.resolve(ctx, snap, q)
	if err != nil {
		return nil, err
	}
	if calendarDate(criteria.DateLower).After(calendarDate(criteria.DateUpper)) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange,
			criteria.DateLower.Format(dateLayout), criteria.DateUpper.Format(dateLayout))
	}

	preset := &models.FilterPreset{
		Name:        name,
		Description: description,
		Criteria:    criteria,
	}
	if err := s.presets.Create(ctx, preset); err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"preset_id": preset.ID,
		"name":      preset.Name,
	}).Info("filter preset saved")
	return preset, nil
}

func (s *Service) ListPresets(ctx context.Context) ([]models.FilterPreset, error) {
	if s.presets == nil {
		return []models.FilterPreset{}, nil
	}
	return s.presets.List(ctx)
}

func (s *Service) GetPreset(ctx context.Context, id string) (*models.FilterPreset, error) {
	if s.presets == nil {
		return nil, ErrPresetNotFound
	}
	return s.presets.Get(ctx, id)
}

func (s *Service) view(ctx context.Context, q Query) (*snapshot, models.Criteria, []models.PatientRecord, error) {
	snap, err := s.active()
	if err != nil {
		return nil, models.Criteria{}, nil, err
	}
	criteria, err := s.resolve(ctx, snap, q)
	if err != nil {
		return nil, models.Criteria{}, nil, err
	}
	view, err := ApplyFilters(snap.dataset.Records, criteria)
	if err != nil {
		return nil, models.Criteria{}, nil, err
	}
	return snap, criteria, view, nil
}

func (s *Service) resolve(ctx context.Context, snap *snapshot, q Query) (models.Criteria, error) {
	criteria := cloneCriteria(snap.defaults)
	if q.PresetID != "" {
		preset, err := s.GetPreset(ctx, q.PresetID)
		if err != nil {
			return models.Criteria{}, err
		}
		criteria = mergeCriteria(criteria, preset.Criteria)
	}
	if q.Criteria != nil {
		criteria = mergeCriteria(criteria, *q.Criteria)
	}
	if q.DSL != "" {
		return ParseCriteria(q.DSL, criteria)
	}
	return criteria, nil
}

func (s *Service) summaryOptions(q Query) SummaryOptions {
	top := q.TopDoctors
	if top <= 0 {
		top = s.settings.TopDoctors
	}
	return SummaryOptions{
		TopDoctors:            top,
		IncludeZeroCategories: q.IncludeZero,
		Catalog:               s.settings.Catalog,
	}
}

// mergeCriteria overlays the fields set in partial. A non-nil empty slice is kept and selects nothing.
func mergeCriteria(base, partial models.Criteria) models.Criteria {
	out := cloneCriteria(base)
	if !partial.DateLower.IsZero() {
		out.DateLower = partial.DateLower
	}
	if !partial.DateUpper.IsZero() {
		out.DateUpper = partial.DateUpper
	}
	if partial.Genders != nil {
		out.Genders = append([]string{}, partial.Genders...)
	}
	if partial.Hospitals != nil {
		out.Hospitals = append([]string{}, partial.Hospitals...)
	}
	if partial.Conditions != nil {
		out.Conditions = append([]string{}, partial.Conditions...)
	}
	return out
}
