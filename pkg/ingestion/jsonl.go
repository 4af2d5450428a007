package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

// jsonRecord is one line of a JSON-lines export. Dates are ISO calendar dates.
type jsonRecord struct {
	Name                  string   `json:"name"`
	Age                   *int     `json:"age"`
	AgeGroup              string   `json:"age_group"`
	Gender                string   `json:"gender"`
	BloodType             string   `json:"blood_type"`
	MedicalCondition      string   `json:"medical_condition"`
	ConditionRisk         *int     `json:"condition_risk"`
	TestResult            string   `json:"test_result"`
	Medication            string   `json:"medication"`
	PredictionLabel       string   `json:"prediction_label"`
	PredictionProbability *float64 `json:"prediction_probability"`
	Hospital              string   `json:"hospital"`
	Doctor                string   `json:"doctor"`
	RoomNumber            int      `json:"room_number"`
	AdmissionType         string   `json:"admission_type"`
	InsuranceProvider     string   `json:"insurance_provider"`
	AdmissionDate         string   `json:"admission_date"`
	DischargeDate         string   `json:"discharge_date"`
	LengthOfStay          *int     `json:"length_of_stay"`
	Season                string   `json:"season"`
	BillingAmount         *float64 `json:"billing_amount"`
}

func readJSONL(src io.Reader, opts Options) (*Result, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	c := &collector{opts: opts, result: Result{Records: []models.PatientRecord{}}}
	index := -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		index++

		var raw jsonRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			if err := c.reject(models.NewDataIntegrityError(index, "", "line", err)); err != nil {
				return nil, err
			}
			continue
		}
		rec, err := raw.toModel(index)
		if err != nil {
			if err := c.reject(err); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.accept(index, rec, raw.LengthOfStay != nil); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return &c.result, nil
}

func (j jsonRecord) toModel(index int) (models.PatientRecord, error) {
	fail := func(field string, reason error) error {
		return models.NewDataIntegrityError(index, j.Name, field, reason)
	}

	rec := models.PatientRecord{
		Name:              strings.TrimSpace(j.Name),
		AgeGroup:          j.AgeGroup,
		Gender:            j.Gender,
		BloodType:         j.BloodType,
		MedicalCondition:  j.MedicalCondition,
		TestResult:        j.TestResult,
		Medication:        j.Medication,
		PredictionLabel:   j.PredictionLabel,
		Hospital:          j.Hospital,
		Doctor:            j.Doctor,
		RoomNumber:        j.RoomNumber,
		AdmissionType:     j.AdmissionType,
		InsuranceProvider: j.InsuranceProvider,
		Season:            j.Season,
	}
	if j.Age == nil {
		return rec, fail("age", models.ErrMissingField)
	}
	rec.Age = *j.Age
	if j.ConditionRisk == nil {
		return rec, fail("condition_risk", models.ErrMissingField)
	}
	rec.ConditionRisk = *j.ConditionRisk
	if j.BillingAmount == nil {
		return rec, fail("billing_amount", models.ErrMissingField)
	}
	rec.BillingAmount = *j.BillingAmount
	if j.PredictionLabel != "" {
		if j.PredictionProbability == nil {
			return rec, fail("prediction_probability", models.ErrMissingField)
		}
		rec.PredictionProbability = *j.PredictionProbability
	}
	if j.LengthOfStay != nil {
		rec.LengthOfStay = *j.LengthOfStay
	}

	var err error
	if rec.AdmissionDate, err = parseDate(j.AdmissionDate); err != nil {
		return rec, fail("admission_date", err)
	}
	if rec.DischargeDate, err = parseDate(j.DischargeDate); err != nil {
		return rec, fail("discharge_date", err)
	}
	return rec, nil
}
