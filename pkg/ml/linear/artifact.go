package linear

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

const (
	FeatureAge            = "age"
	FeatureConditionRisk  = "condition_risk"
	FeatureLengthOfStay   = "length_of_stay"
	FeatureBillingAmount  = "billing_amount"
	FeatureAbnormalResult = "abnormal_result"

	DefaultThreshold = 0.5
)

// DefaultFeatures is the feature order used when training from patient records.
var DefaultFeatures = []string{
	FeatureAge,
	FeatureConditionRisk,
	FeatureLengthOfStay,
	FeatureBillingAmount,
	FeatureAbnormalResult,
}

// Artifact is a trained risk model as stored on disk. Features are standardised with
// Means and Scales before the weights are applied.
type Artifact struct {
	Name         string    `json:"name"`
	FeatureNames []string  `json:"feature_names"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	Weights      Weights   `json:"weights"`
	Threshold    float64   `json:"threshold"`
	Metrics      Metrics   `json:"metrics"`
	TrainedAt    time.Time `json:"trained_at"`
}

func LoadArtifact(path string) (*Artifact, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if err := artifact.check(); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return &artifact, nil
}

func SaveArtifact(path string, artifact *Artifact) error {
	content, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func (a *Artifact) check() error {
	n := len(a.FeatureNames)
	if n == 0 {
		return errors.New("artifact missing feature names")
	}
	if len(a.Weights.Coefficients) != n {
		return fmt.Errorf("expected %d coefficients, got %d", n, len(a.Weights.Coefficients))
	}
	if (a.Means != nil && len(a.Means) != n) || (a.Scales != nil && len(a.Scales) != n) {
		return errors.New("scaling vectors do not match feature names")
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		a.Threshold = DefaultThreshold
	}
	return nil
}

// Probability scores one feature map.
func (a *Artifact) Probability(features map[string]float64) (float64, error) {
	sample := make([]float64, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		value, ok := features[name]
		if !ok {
			return 0, fmt.Errorf("missing feature %s", name)
		}
		sample[i] = a.scale(i, value)
	}
	return Predict(a.Weights, sample), nil
}

// Score fills the prediction label and probability of rec.
func (a *Artifact) Score(rec *models.PatientRecord) error {
	p, err := a.Probability(RecordFeatures(*rec))
	if err != nil {
		return err
	}
	rec.PredictionProbability = p
	rec.PredictionLabel = models.PredictionNoRisk
	if p >= a.Threshold {
		rec.PredictionLabel = models.PredictionAtRisk
	}
	return nil
}

func (a *Artifact) scale(i int, value float64) float64 {
	if a.Means == nil || a.Scales == nil || a.Scales[i] == 0 {
		return value
	}
	return (value - a.Means[i]) / a.Scales[i]
}

func RecordFeatures(rec models.PatientRecord) map[string]float64 {
	abnormal := 0.0
	if rec.TestResult == models.TestResultAbnormal {
		abnormal = 1
	}
	return map[string]float64{
		FeatureAge:            float64(rec.Age),
		FeatureConditionRisk:  float64(rec.ConditionRisk),
		FeatureLengthOfStay:   float64(rec.LengthOfStay),
		FeatureBillingAmount:  rec.BillingAmount,
		FeatureAbnormalResult: abnormal,
	}
}

// TrainFromRecords fits a model whose target is the existing "At Risk" label of each record.
func TrainFromRecords(name string, records []models.PatientRecord, opts Options) (*Artifact, error) {
	if len(records) == 0 {
		return nil, ErrNoSamples
	}
	names := append([]string(nil), DefaultFeatures...)
	raw := make([][]float64, len(records))
	labels := make([]float64, len(records))
	for i, rec := range records {
		features := RecordFeatures(rec)
		row := make([]float64, len(names))
		for j, n := range names {
			row[j] = features[n]
		}
		raw[i] = row
		if rec.PredictionLabel == models.PredictionAtRisk {
			labels[i] = 1
		}
	}

	means, scales := standardise(raw)
	artifact := &Artifact{
		Name:         name,
		FeatureNames: names,
		Means:        means,
		Scales:       scales,
		Threshold:    DefaultThreshold,
		TrainedAt:    time.Now().UTC(),
	}
	samples := make([][]float64, len(raw))
	for i, row := range raw {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = artifact.scale(j, v)
		}
		samples[i] = scaled
	}

	weights, metrics, err := TrainLogistic(samples, labels, opts)
	if err != nil {
		return nil, err
	}
	artifact.Weights = weights
	artifact.Metrics = metrics
	return artifact, nil
}

func standardise(rows [][]float64) ([]float64, []float64) {
	width := len(rows[0])
	means := make([]float64, width)
	scales := make([]float64, width)
	n := float64(len(rows))
	for _, row := range rows {
		for j, v := range row {
			means[j] += v / n
		}
	}
	for _, row := range rows {
		for j, v := range row {
			d := v - means[j]
			scales[j] += d * d / n
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j])
	}
	return means, scales
}
