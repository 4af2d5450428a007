package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() PatientRecord {
	admitted := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return PatientRecord{
		Position:              7,
		Name:                  "Bobby Jackson",
		Age:                   30,
		AgeGroup:              "19-35",
		Gender:                "Male",
		BloodType:             "B-",
		MedicalCondition:      "Cancer",
		ConditionRisk:         5,
		TestResult:            TestResultNormal,
		Medication:            "Paracetamol",
		PredictionLabel:       PredictionAtRisk,
		PredictionProbability: 0.82,
		Hospital:              "Sons and Miller",
		Doctor:                "Matthew Smith",
		RoomNumber:            328,
		InsuranceProvider:     "Blue Cross",
		AdmissionDate:         admitted,
		DischargeDate:         admitted.AddDate(0, 0, 2),
		LengthOfStay:          2,
		Season:                "Spring",
		BillingAmount:         18856.28,
	}
}

func TestValidateAcceptsValidRecord(t *testing.T) {
	require.NoError(t, validRecord().Validate())
}

func TestValidateRejectsInvariantViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PatientRecord)
		field  string
		reason error
	}{
		{"missing name", func(r *PatientRecord) { r.Name = "  " }, "Name", ErrMissingField},
		{"missing hospital", func(r *PatientRecord) { r.Hospital = "" }, "Hospital", ErrMissingField},
		{"risk too high", func(r *PatientRecord) { r.ConditionRisk = 6 }, "Condition_Risk", ErrOutOfRange},
		{"risk zero", func(r *PatientRecord) { r.ConditionRisk = 0 }, "Condition_Risk", ErrOutOfRange},
		{"probability above one", func(r *PatientRecord) { r.PredictionProbability = 1.2 }, "Prediction_Probability", ErrOutOfRange},
		{"billing NaN", func(r *PatientRecord) { r.BillingAmount = math.NaN() }, "Billing Amount", ErrInvalidNumber},
		{"billing negative", func(r *PatientRecord) { r.BillingAmount = -1 }, "Billing Amount", ErrOutOfRange},
		{"discharge before admission", func(r *PatientRecord) {
			r.DischargeDate = r.AdmissionDate.AddDate(0, 0, -1)
			r.LengthOfStay = -1
		}, "Discharge Date", ErrDischargeOrder},
		{"stay mismatch", func(r *PatientRecord) { r.LengthOfStay = 9 }, "Length of Stay", ErrStayMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			err := rec.Validate()
			require.Error(t, err)
			assert.True(t, IsDataIntegrityError(err))
			assert.True(t, errors.Is(err, tt.reason))

			var die *DataIntegrityError
			require.True(t, errors.As(err, &die))
			assert.Equal(t, tt.field, die.Field)
			assert.Equal(t, 7, die.Row)
		})
	}
}

func TestStayDaysIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	d := time.Date(2024, 1, 4, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, StayDays(a, d))
}

func TestDataIntegrityErrorMessage(t *testing.T) {
	err := NewDataIntegrityError(3, "", "Age", ErrInvalidNumber)
	assert.Equal(t, `record 3: field "Age": invalid numeric value`, err.Error())
}
