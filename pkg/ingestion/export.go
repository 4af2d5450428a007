package ingestion

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

var exportColumns = []string{
	colName, colAge, colAgeGroup, colGender, colBloodType, colCondition, colConditionRisk,
	colAdmission, colDoctor, colHospital, colInsurance, colBilling, colRoom, colAdmissionType,
	colDischarge, colMedication, colTestResults, colSeason, colPrediction, colProbability, colStay,
}

// WriteCSV writes records in the export layout the CSV reader accepts.
func WriteCSV(w io.Writer, records []models.PatientRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportColumns); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Name,
			strconv.Itoa(rec.Age),
			rec.AgeGroup,
			rec.Gender,
			rec.BloodType,
			rec.MedicalCondition,
			strconv.Itoa(rec.ConditionRisk),
			rec.AdmissionDate.Format(dateLayouts[0]),
			rec.Doctor,
			rec.Hospital,
			rec.InsuranceProvider,
			strconv.FormatFloat(rec.BillingAmount, 'f', -1, 64),
			strconv.Itoa(rec.RoomNumber),
			rec.AdmissionType,
			rec.DischargeDate.Format(dateLayouts[0]),
			rec.Medication,
			rec.TestResult,
			rec.Season,
			rec.PredictionLabel,
			strconv.FormatFloat(rec.PredictionProbability, 'f', -1, 64),
			strconv.Itoa(rec.LengthOfStay),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
