package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidNumber  = errors.New("invalid numeric value")
	ErrInvalidDate    = errors.New("invalid date")
	ErrOutOfRange     = errors.New("value out of range")
	ErrDischargeOrder = errors.New("discharge before admission")
	ErrStayMismatch   = errors.New("length of stay does not match dates")
)

// DataIntegrityError identifies the record and field that violated the data model.
type DataIntegrityError struct {
	Row    int
	Name   string
	Field  string
	Reason error
}

func (e *DataIntegrityError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("record %d (%s): field %q: %v", e.Row, e.Name, e.Field, e.Reason)
	}
	return fmt.Sprintf("record %d: field %q: %v", e.Row, e.Field, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Reason
}

func IsDataIntegrityError(err error) bool {
	var die *DataIntegrityError
	return errors.As(err, &die)
}

func NewDataIntegrityError(row int, name, field string, reason error) *DataIntegrityError {
	return &DataIntegrityError{Row: row, Name: name, Field: field, Reason: reason}
}

// StayDays returns the whole days between two calendar dates.
func StayDays(admission, discharge time.Time) int {
	a := time.Date(admission.Year(), admission.Month(), admission.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(discharge.Year(), discharge.Month(), discharge.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(a).Hours() / 24)
}

// Validate checks the record against the data model invariants.
func (r PatientRecord) Validate() error {
	fail := func(field string, reason error) error {
		return NewDataIntegrityError(r.Position, r.Name, field, reason)
	}

	required := []struct {
		field string
		value string
	}{
		{"Name", r.Name},
		{"Age_Group", r.AgeGroup},
		{"Gender", r.Gender},
		{"Blood Type", r.BloodType},
		{"Medical Condition", r.MedicalCondition},
		{"Test Results", r.TestResult},
		{"Hospital", r.Hospital},
		{"Doctor", r.Doctor},
		{"Insurance Provider", r.InsuranceProvider},
		{"Season", r.Season},
		{"Test_Prediction", r.PredictionLabel},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			return fail(req.field, ErrMissingField)
		}
	}

	if r.Age < 0 {
		return fail("Age", fmt.Errorf("%w: %d", ErrOutOfRange, r.Age))
	}
	if r.ConditionRisk < 1 || r.ConditionRisk > 5 {
		return fail("Condition_Risk", fmt.Errorf("%w: %d not in 1..5", ErrOutOfRange, r.ConditionRisk))
	}
	if math.IsNaN(r.PredictionProbability) || r.PredictionProbability < 0 || r.PredictionProbability > 1 {
		return fail("Prediction_Probability", fmt.Errorf("%w: %v not in [0,1]", ErrOutOfRange, r.PredictionProbability))
	}
	if math.IsNaN(r.BillingAmount) || math.IsInf(r.BillingAmount, 0) {
		return fail("Billing Amount", ErrInvalidNumber)
	}
	if r.BillingAmount < 0 {
		return fail("Billing Amount", fmt.Errorf("%w: %.2f is negative", ErrOutOfRange, r.BillingAmount))
	}
	if r.AdmissionDate.IsZero() {
		return fail("Date of Admission", ErrMissingField)
	}
	if r.DischargeDate.IsZero() {
		return fail("Discharge Date", ErrMissingField)
	}
	stay := StayDays(r.AdmissionDate, r.DischargeDate)
	if stay < 0 {
		return fail("Discharge Date", ErrDischargeOrder)
	}
	if r.LengthOfStay != stay {
		return fail("Length of Stay", fmt.Errorf("%w: got %d, dates give %d", ErrStayMismatch, r.LengthOfStay, stay))
	}
	return nil
}
