package dashboard

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

const (
	DefaultTopDoctors    = 3
	OutlierPercentile    = 0.95
	DefaultAtRiskLimit   = 5
	DefaultHistogramBins = 5
	MaxHistogramBins     = 100
)

type SummaryOptions struct {
	TopDoctors int
	// IncludeZeroCategories adds catalog values absent from the view with a zero count.
	IncludeZeroCategories bool
	Catalog               Catalog
}

// Summary aggregates a filtered view. Mean-like fields are NaN when Count is zero.
type Summary struct {
	Count                    int                    `json:"count"`
	MostCommonCondition      models.CategoryCount   `json:"most_common_condition"`
	MostVisitedHospital      models.CategoryCount   `json:"most_visited_hospital"`
	TotalBilling             float64                `json:"total_billing"`
	AverageLengthOfStay      float64                `json:"average_length_of_stay"`
	TopDoctors               []models.CategoryCount `json:"top_doctors"`
	AgeGroups                []models.CategoryCount `json:"age_groups"`
	BloodTypes               []models.CategoryCount `json:"blood_types"`
	Conditions               []models.CategoryCount `json:"conditions"`
	ConditionRisks           []models.CategoryCount `json:"condition_risks"`
	Seasons                  []models.CategoryCount `json:"seasons"`
	Genders                  []models.CategoryCount `json:"genders"`
	AverageBillingByAgeGroup []models.GroupMean     `json:"average_billing_by_age_group"`
	BillingThreshold         float64                `json:"billing_threshold"`
	HighBillingOutliers      []models.PatientRecord `json:"high_billing_outliers"`
}

func (s Summary) Empty() bool {
	return s.Count == 0
}

// MarshalJSON renders NaN aggregates as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	return json.Marshal(struct {
		alias
		AverageLengthOfStay *float64 `json:"average_length_of_stay"`
		BillingThreshold    *float64 `json:"billing_threshold"`
	}{
		alias:               alias(s),
		AverageLengthOfStay: finiteOrNil(s.AverageLengthOfStay),
		BillingThreshold:    finiteOrNil(s.BillingThreshold),
	})
}

// UnmarshalJSON restores null aggregates as NaN.
func (s *Summary) UnmarshalJSON(data []byte) error {
	type alias Summary
	aux := struct {
		*alias
		AverageLengthOfStay *float64 `json:"average_length_of_stay"`
		BillingThreshold    *float64 `json:"billing_threshold"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.AverageLengthOfStay = nanIfNil(aux.AverageLengthOfStay)
	s.BillingThreshold = nanIfNil(aux.BillingThreshold)
	return nil
}

func nanIfNil(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func Summarize(view []models.PatientRecord, opts SummaryOptions) Summary {
	if opts.TopDoctors <= 0 {
		opts.TopDoctors = DefaultTopDoctors
	}

	conditions := newCounter()
	hospitals := newCounter()
	doctors := newCounter()
	ageGroups := newCounter()
	bloodTypes := newCounter()
	risks := newCounter()
	seasons := newCounter()
	genders := newCounter()

	billingSum := make(map[string]float64)
	billingN := make(map[string]int)

	var total float64
	var staySum int
	billing := make([]float64, 0, len(view))
	for _, rec := range view {
		conditions.add(rec.MedicalCondition)
		hospitals.add(rec.Hospital)
		doctors.add(rec.Doctor)
		ageGroups.add(rec.AgeGroup)
		bloodTypes.add(rec.BloodType)
		risks.add(strconv.Itoa(rec.ConditionRisk))
		seasons.add(rec.Season)
		genders.add(rec.Gender)

		billingSum[rec.AgeGroup] += rec.BillingAmount
		billingN[rec.AgeGroup]++

		total += rec.BillingAmount
		staySum += rec.LengthOfStay
		billing = append(billing, rec.BillingAmount)
	}

	summary := Summary{
		Count:               len(view),
		MostCommonCondition: conditions.mode(),
		MostVisitedHospital: hospitals.mode(),
		TotalBilling:        total,
		AverageLengthOfStay: mean(float64(staySum), len(view)),
		TopDoctors:          head(doctors.ranked(), opts.TopDoctors),
		AgeGroups:           withZeros(ageGroups, opts, DimensionAgeGroup),
		BloodTypes:          withZeros(bloodTypes, opts, DimensionBloodType),
		Conditions:          withZeros(conditions, opts, DimensionCondition),
		ConditionRisks:      withZeros(risks, opts, DimensionConditionRisk),
		Seasons:             withZeros(seasons, opts, DimensionSeason),
		Genders:             withZeros(genders, opts, DimensionGender),
	}

	groups := ageGroups.values()
	opts.Catalog.Sort(DimensionAgeGroup, groups)
	summary.AverageBillingByAgeGroup = make([]models.GroupMean, 0, len(groups))
	for _, g := range groups {
		summary.AverageBillingByAgeGroup = append(summary.AverageBillingByAgeGroup, models.GroupMean{
			Group: g,
			Mean:  billingSum[g] / float64(billingN[g]),
			Count: billingN[g],
		})
	}

	summary.BillingThreshold, summary.HighBillingOutliers = highBilling(view, billing)
	return summary
}

// HighBillingOutliers returns the 95th-percentile billing threshold and the records strictly above it.
func HighBillingOutliers(view []models.PatientRecord) (float64, []models.PatientRecord) {
	billing := make([]float64, 0, len(view))
	for _, rec := range view {
		billing = append(billing, rec.BillingAmount)
	}
	return highBilling(view, billing)
}

func highBilling(view []models.PatientRecord, billing []float64) (float64, []models.PatientRecord) {
	outliers := make([]models.PatientRecord, 0)
	threshold := Quantile(billing, OutlierPercentile)
	if math.IsNaN(threshold) {
		return threshold, outliers
	}
	for _, rec := range view {
		if rec.BillingAmount > threshold {
			outliers = append(outliers, rec)
		}
	}
	return threshold, outliers
}

func withZeros(c *counter, opts SummaryOptions, dim Dimension) []models.CategoryCount {
	ranked := c.ranked()
	if !opts.IncludeZeroCategories {
		return ranked
	}
	for _, v := range opts.Catalog.Known(dim) {
		if _, ok := c.counts[v]; !ok {
			ranked = append(ranked, models.CategoryCount{Value: v, Count: 0})
		}
	}
	return ranked
}

func head(counts []models.CategoryCount, n int) []models.CategoryCount {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}

// Compare computes the KPI deltas of a filtered summary against a baseline summary.
// AverageStay is only meaningful when HasStayDelta is set.
func Compare(filtered, baseline Summary) models.Deltas {
	deltas := models.Deltas{
		Patients:    filtered.Count - baseline.Count,
		Expenditure: filtered.TotalBilling - baseline.TotalBilling,
	}
	if !filtered.Empty() && !baseline.Empty() {
		deltas.AverageStay = filtered.AverageLengthOfStay - baseline.AverageLengthOfStay
		deltas.HasStayDelta = true
	}
	return deltas
}

// CategoryTotal sums the counts of a per-category breakdown.
func CategoryTotal(counts []models.CategoryCount) int {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total
}
