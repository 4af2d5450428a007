package ingestion

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

const (
	colName          = "Name"
	colAge           = "Age"
	colAgeGroup      = "Age_Group"
	colGender        = "Gender"
	colBloodType     = "Blood Type"
	colCondition     = "Medical Condition"
	colConditionRisk = "Condition_Risk"
	colAdmission     = "Date of Admission"
	colDoctor        = "Doctor"
	colHospital      = "Hospital"
	colInsurance     = "Insurance Provider"
	colBilling       = "Billing Amount"
	colRoom          = "Room Number"
	colAdmissionType = "Admission Type"
	colDischarge     = "Discharge Date"
	colMedication    = "Medication"
	colTestResults   = "Test Results"
	colSeason        = "Season"
	colPrediction    = "Test_Prediction"
	colProbability   = "Prediction_Probability"
	colStay          = "Length of Stay"
)

var requiredColumns = []string{
	colName, colAge, colAgeGroup, colGender, colBloodType, colCondition, colConditionRisk,
	colAdmission, colDoctor, colHospital, colInsurance, colBilling, colDischarge,
	colTestResults, colSeason,
}

// csvRow resolves cells by header name; lookups are case-insensitive.
type csvRow struct {
	index  int
	colIdx map[string]int
	cells  []string
	name   string
}

func (r csvRow) get(col string) string {
	i, ok := r.colIdx[strings.ToLower(col)]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r csvRow) has(col string) bool {
	_, ok := r.colIdx[strings.ToLower(col)]
	return ok
}

func (r csvRow) fail(col string, reason error) error {
	return models.NewDataIntegrityError(r.index, r.name, col, reason)
}

func (r csvRow) integer(col string) (int, error) {
	raw := r.get(col)
	if raw == "" {
		return 0, r.fail(col, models.ErrMissingField)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// exports occasionally carry integral floats such as "3.0"
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, r.fail(col, fmt.Errorf("%w: %q", models.ErrInvalidNumber, raw))
		}
		v = int(f)
	}
	return v, nil
}

func (r csvRow) number(col string) (float64, error) {
	raw := r.get(col)
	if raw == "" {
		return 0, r.fail(col, models.ErrMissingField)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, r.fail(col, fmt.Errorf("%w: %q", models.ErrInvalidNumber, raw))
	}
	return v, nil
}

func readCSV(src io.Reader, opts Options) (*Result, error) {
	buf := bufio.NewReaderSize(src, 256*1024)
	if bom, err := buf.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	reader := csv.NewReader(buf)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Result{Records: []models.PatientRecord{}}, nil
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}
	colIdx := make(map[string]int, len(headers))
	for i, h := range headers {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[strings.ToLower(col)]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	_, hasPrediction := colIdx[strings.ToLower(colPrediction)]
	if !hasPrediction && opts.Scorer == nil {
		return nil, fmt.Errorf("%w: %s (and no prediction model configured)", ErrMissingColumn, colPrediction)
	}

	c := &collector{opts: opts, result: Result{Records: []models.PatientRecord{}}}
	index := -1
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", index+1, err)
		}
		if blank(cells) {
			continue
		}
		index++

		row := csvRow{index: index, colIdx: colIdx, cells: cells}
		row.name = row.get(colName)
		rec, stayGiven, err := decodeCSVRow(row)
		if err != nil {
			if err := c.reject(err); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.accept(index, rec, stayGiven); err != nil {
			return nil, err
		}
	}
	return &c.result, nil
}

func decodeCSVRow(row csvRow) (models.PatientRecord, bool, error) {
	rec := models.PatientRecord{
		Name:              row.name,
		AgeGroup:          row.get(colAgeGroup),
		Gender:            row.get(colGender),
		BloodType:         row.get(colBloodType),
		MedicalCondition:  row.get(colCondition),
		Doctor:            row.get(colDoctor),
		Hospital:          row.get(colHospital),
		InsuranceProvider: row.get(colInsurance),
		AdmissionType:     row.get(colAdmissionType),
		Medication:        row.get(colMedication),
		TestResult:        row.get(colTestResults),
		Season:            row.get(colSeason),
		PredictionLabel:   row.get(colPrediction),
	}

	var err error
	if rec.Age, err = row.integer(colAge); err != nil {
		return rec, false, err
	}
	if rec.ConditionRisk, err = row.integer(colConditionRisk); err != nil {
		return rec, false, err
	}
	if rec.BillingAmount, err = row.number(colBilling); err != nil {
		return rec, false, err
	}
	if row.get(colRoom) != "" {
		if rec.RoomNumber, err = row.integer(colRoom); err != nil {
			return rec, false, err
		}
	}
	if rec.AdmissionDate, err = parseDate(row.get(colAdmission)); err != nil {
		return rec, false, row.fail(colAdmission, err)
	}
	if rec.DischargeDate, err = parseDate(row.get(colDischarge)); err != nil {
		return rec, false, row.fail(colDischarge, err)
	}
	if rec.PredictionLabel != "" {
		if rec.PredictionProbability, err = row.number(colProbability); err != nil {
			return rec, false, err
		}
	}

	stayGiven := row.has(colStay) && row.get(colStay) != ""
	if stayGiven {
		if rec.LengthOfStay, err = row.integer(colStay); err != nil {
			return rec, false, err
		}
	}
	return rec, stayGiven, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
