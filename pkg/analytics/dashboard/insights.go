package dashboard

import (
	"fmt"
	"math"
	"sort"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

// HighRiskWithNormalResults flags records whose condition risk is high while the test came back normal.
func HighRiskWithNormalResults(view []models.PatientRecord) []models.PatientRecord {
	out := make([]models.PatientRecord, 0)
	for _, rec := range view {
		if rec.HighRisk() && rec.TestResult == models.TestResultNormal {
			out = append(out, rec)
		}
	}
	return out
}

// AtRiskPredictions ranks "At Risk" records by prediction probability, highest first.
func AtRiskPredictions(view []models.PatientRecord, limit int) []models.PatientRecord {
	if limit <= 0 {
		limit = DefaultAtRiskLimit
	}
	out := make([]models.PatientRecord, 0)
	for _, rec := range view {
		if rec.PredictionLabel == models.PredictionAtRisk {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PredictionProbability > out[j].PredictionProbability
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ProbabilityHistogram splits the observed probability range into equal-width bins.
// The last bin is closed on the right so every record lands in exactly one bin.
// bins is clamped to MaxHistogramBins.
func ProbabilityHistogram(view []models.PatientRecord, bins int) []models.ProbabilityBin {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	if bins > MaxHistogramBins {
		bins = MaxHistogramBins
	}
	if len(view) == 0 {
		return []models.ProbabilityBin{}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, rec := range view {
		lo = math.Min(lo, rec.PredictionProbability)
		hi = math.Max(hi, rec.PredictionProbability)
	}
	width := (hi - lo) / float64(bins)

	out := make([]models.ProbabilityBin, bins)
	for i := range out {
		lower := lo + width*float64(i)
		upper := lo + width*float64(i+1)
		if i == bins-1 {
			upper = hi
		}
		out[i] = models.ProbabilityBin{
			Label: fmt.Sprintf("%.1f-%.1f", lower, upper),
			Lower: lower,
			Upper: upper,
		}
	}
	for _, rec := range view {
		idx := bins - 1
		if width > 0 {
			idx = int((rec.PredictionProbability - lo) / width)
			if idx >= bins {
				idx = bins - 1
			}
		}
		out[idx].Count++
	}
	return out
}

// FindByPosition looks up a record of the view by its dataset position.
func FindByPosition(view []models.PatientRecord, position int) (models.PatientRecord, bool) {
	for _, rec := range view {
		if rec.Position == position {
			return rec, true
		}
	}
	return models.PatientRecord{}, false
}

// CompareBilling places a record's bill within the distribution of its condition.
func CompareBilling(view []models.PatientRecord, rec models.PatientRecord) models.BillingComparison {
	var amounts []float64
	for _, other := range view {
		if other.MedicalCondition == rec.MedicalCondition {
			amounts = append(amounts, other.BillingAmount)
		}
	}
	sort.Float64s(amounts)

	cmp := models.BillingComparison{
		Condition: rec.MedicalCondition,
		Billing:   rec.BillingAmount,
		Count:     len(amounts),
		HighRisk:  rec.HighRisk(),
	}
	if len(amounts) == 0 {
		return cmp
	}
	cmp.Min = amounts[0]
	cmp.Q1 = quantileSorted(amounts, 0.25)
	cmp.Median = quantileSorted(amounts, 0.5)
	cmp.Q3 = quantileSorted(amounts, 0.75)
	cmp.Max = amounts[len(amounts)-1]
	return cmp
}
