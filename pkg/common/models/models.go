package models

import (
	"encoding/json"
	"time"
)

// Event bus envelope
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // dataset.updated
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventDatasetUpdated = "dataset.updated"
)

const (
	TestResultNormal   = "Normal"
	TestResultAbnormal = "Abnormal"
	PredictionAtRisk   = "At Risk"
	PredictionNoRisk   = "Not At Risk"
	HighRiskThreshold  = 4
)

// PatientRecord is one admission row of the dataset.
type PatientRecord struct {
	Position int    `json:"position"`
	Name     string `json:"name"`

	Age       int    `json:"age"`
	AgeGroup  string `json:"age_group"`
	Gender    string `json:"gender"`
	BloodType string `json:"blood_type"`

	MedicalCondition      string  `json:"medical_condition"`
	ConditionRisk         int     `json:"condition_risk"`
	TestResult            string  `json:"test_result"`
	Medication            string  `json:"medication"`
	PredictionLabel       string  `json:"prediction_label"`
	PredictionProbability float64 `json:"prediction_probability"`

	Hospital          string    `json:"hospital"`
	Doctor            string    `json:"doctor"`
	RoomNumber        int       `json:"room_number"`
	AdmissionType     string    `json:"admission_type,omitempty"`
	InsuranceProvider string    `json:"insurance_provider"`
	AdmissionDate     time.Time `json:"admission_date"`
	DischargeDate     time.Time `json:"discharge_date"`
	LengthOfStay      int       `json:"length_of_stay"`
	Season            string    `json:"season"`

	BillingAmount float64 `json:"billing_amount"`
}

// HighRisk reports whether the record's condition risk reaches the alert level.
func (r PatientRecord) HighRisk() bool {
	return r.ConditionRisk >= HighRiskThreshold
}

// Dataset is an immutable snapshot of patient records.
type Dataset struct {
	Version  string          `json:"version"`
	Source   string          `json:"source"`
	LoadedAt time.Time       `json:"loaded_at"`
	Records  []PatientRecord `json:"-"`
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Criteria describes one dashboard query. Bounds are inclusive calendar dates.
type Criteria struct {
	DateLower  time.Time `json:"date_lower"`
	DateUpper  time.Time `json:"date_upper"`
	Genders    []string  `json:"genders"`
	Hospitals  []string  `json:"hospitals"`
	Conditions []string  `json:"conditions"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type GroupMean struct {
	Group string  `json:"group"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

type Deltas struct {
	Patients     int     `json:"patients"`
	Expenditure  float64 `json:"expenditure"`
	AverageStay  float64 `json:"average_stay"`
	HasStayDelta bool    `json:"has_stay_delta"`
}

// MarshalJSON renders AverageStay as null unless HasStayDelta is set.
func (d Deltas) MarshalJSON() ([]byte, error) {
	type alias Deltas
	var stay *float64
	if d.HasStayDelta {
		stay = &d.AverageStay
	}
	return json.Marshal(struct {
		alias
		AverageStay *float64 `json:"average_stay"`
	}{alias: alias(d), AverageStay: stay})
}

type ProbabilityBin struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

type BillingComparison struct {
	Condition string  `json:"condition"`
	Billing   float64 `json:"billing"`
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Q1        float64 `json:"q1"`
	Median    float64 `json:"median"`
	Q3        float64 `json:"q3"`
	Max       float64 `json:"max"`
	HighRisk  bool    `json:"high_risk"`
}

type FilterPreset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Criteria    Criteria  `json:"criteria"`
	CreatedAt   time.Time `json:"created_at"`
}
