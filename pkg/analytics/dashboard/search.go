package dashboard

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

// Search matches term case-insensitively against the free-text fields of each record.
func Search(view []models.PatientRecord, term string) ([]models.PatientRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, fmt.Errorf("%w: term is empty", ErrInvalidSearchTerm)
	}

	matches := make([]models.PatientRecord, 0)
	for _, rec := range view {
		if matchesTerm(rec, needle) {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

func matchesTerm(rec models.PatientRecord, needle string) bool {
	fields := [...]string{
		rec.Name,
		rec.MedicalCondition,
		rec.Doctor,
		rec.Hospital,
		rec.InsuranceProvider,
		rec.Medication,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
