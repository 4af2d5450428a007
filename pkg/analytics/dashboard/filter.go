package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

var (
	ErrInvalidRange      = errors.New("invalid date range")
	ErrInvalidSearchTerm = errors.New("invalid search term")
	ErrInvalidBins       = errors.New("invalid histogram bin count")
)

// ApplyFilters returns the records matching every criterion, in dataset order.
func ApplyFilters(records []models.PatientRecord, criteria models.Criteria) ([]models.PatientRecord, error) {
	lower := calendarDate(criteria.DateLower)
	upper := calendarDate(criteria.DateUpper)
	if lower.After(upper) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, lower.Format(dateLayout), upper.Format(dateLayout))
	}

	result := make([]models.PatientRecord, 0)
	if len(records) == 0 || len(criteria.Genders) == 0 || len(criteria.Hospitals) == 0 || len(criteria.Conditions) == 0 {
		return result, nil
	}

	genders := toSet(criteria.Genders)
	hospitals := toSet(criteria.Hospitals)
	conditions := toSet(criteria.Conditions)

	for _, rec := range records {
		admitted := calendarDate(rec.AdmissionDate)
		if admitted.Before(lower) || admitted.After(upper) {
			continue
		}
		if _, ok := genders[rec.Gender]; !ok {
			continue
		}
		if _, ok := hospitals[rec.Hospital]; !ok {
			continue
		}
		if _, ok := conditions[rec.MedicalCondition]; !ok {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

// DefaultCriteria spans every admission date and every category observed in records.
func DefaultCriteria(records []models.PatientRecord) models.Criteria {
	var criteria models.Criteria
	if len(records) == 0 {
		return criteria
	}

	genders := newCounter()
	hospitals := newCounter()
	conditions := newCounter()
	criteria.DateLower = calendarDate(records[0].AdmissionDate)
	criteria.DateUpper = criteria.DateLower
	for _, rec := range records {
		admitted := calendarDate(rec.AdmissionDate)
		if admitted.Before(criteria.DateLower) {
			criteria.DateLower = admitted
		}
		if admitted.After(criteria.DateUpper) {
			criteria.DateUpper = admitted
		}
		genders.add(rec.Gender)
		hospitals.add(rec.Hospital)
		conditions.add(rec.MedicalCondition)
	}
	criteria.Genders = genders.values()
	criteria.Hospitals = hospitals.values()
	criteria.Conditions = conditions.values()
	return criteria
}

const dateLayout = models.DateLayout

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
