package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
	"gorm.io/gorm"
)

var ErrNoDataset = errors.New("no dataset stored")

const defaultBatchSize = 500

// Snapshot is the header row of a stored dataset version.
type Snapshot struct {
	Version     string    `gorm:"primaryKey;column:version"`
	Source      string    `gorm:"column:source"`
	RecordCount int       `gorm:"column:record_count"`
	LoadedAt    time.Time `gorm:"column:loaded_at"`
}

func (Snapshot) TableName() string {
	return "dataset_versions"
}

type PatientRow struct {
	Version               string    `gorm:"primaryKey;column:version"`
	Position              int       `gorm:"primaryKey;autoIncrement:false;column:position"`
	Name                  string    `gorm:"column:name"`
	Age                   int       `gorm:"column:age"`
	AgeGroup              string    `gorm:"column:age_group"`
	Gender                string    `gorm:"column:gender;index"`
	BloodType             string    `gorm:"column:blood_type"`
	MedicalCondition      string    `gorm:"column:medical_condition;index"`
	ConditionRisk         int       `gorm:"column:condition_risk"`
	TestResult            string    `gorm:"column:test_result"`
	Medication            string    `gorm:"column:medication"`
	PredictionLabel       string    `gorm:"column:prediction_label"`
	PredictionProbability float64   `gorm:"column:prediction_probability"`
	Hospital              string    `gorm:"column:hospital;index"`
	Doctor                string    `gorm:"column:doctor"`
	RoomNumber            int       `gorm:"column:room_number"`
	AdmissionType         string    `gorm:"column:admission_type"`
	InsuranceProvider     string    `gorm:"column:insurance_provider"`
	AdmissionDate         time.Time `gorm:"column:admission_date;type:date"`
	DischargeDate         time.Time `gorm:"column:discharge_date;type:date"`
	LengthOfStay          int       `gorm:"column:length_of_stay"`
	Season                string    `gorm:"column:season"`
	BillingAmount         float64   `gorm:"column:billing_amount"`
}

func (PatientRow) TableName() string {
	return "patient_records"
}

func rowFromModel(version string, rec models.PatientRecord) PatientRow {
	return PatientRow{
		Version:               version,
		Position:              rec.Position,
		Name:                  rec.Name,
		Age:                   rec.Age,
		AgeGroup:              rec.AgeGroup,
		Gender:                rec.Gender,
		BloodType:             rec.BloodType,
		MedicalCondition:      rec.MedicalCondition,
		ConditionRisk:         rec.ConditionRisk,
		TestResult:            rec.TestResult,
		Medication:            rec.Medication,
		PredictionLabel:       rec.PredictionLabel,
		PredictionProbability: rec.PredictionProbability,
		Hospital:              rec.Hospital,
		Doctor:                rec.Doctor,
		RoomNumber:            rec.RoomNumber,
		AdmissionType:         rec.AdmissionType,
		InsuranceProvider:     rec.InsuranceProvider,
		AdmissionDate:         rec.AdmissionDate,
		DischargeDate:         rec.DischargeDate,
		LengthOfStay:          rec.LengthOfStay,
		Season:                rec.Season,
		BillingAmount:         rec.BillingAmount,
	}
}

func (r PatientRow) toModel() models.PatientRecord {
	return models.PatientRecord{
		Position:              r.Position,
		Name:                  r.Name,
		Age:                   r.Age,
		AgeGroup:              r.AgeGroup,
		Gender:                r.Gender,
		BloodType:             r.BloodType,
		MedicalCondition:      r.MedicalCondition,
		ConditionRisk:         r.ConditionRisk,
		TestResult:            r.TestResult,
		Medication:            r.Medication,
		PredictionLabel:       r.PredictionLabel,
		PredictionProbability: r.PredictionProbability,
		Hospital:              r.Hospital,
		Doctor:                r.Doctor,
		RoomNumber:            r.RoomNumber,
		AdmissionType:         r.AdmissionType,
		InsuranceProvider:     r.InsuranceProvider,
		AdmissionDate:         r.AdmissionDate.UTC(),
		DischargeDate:         r.DischargeDate.UTC(),
		LengthOfStay:          r.LengthOfStay,
		Season:                r.Season,
		BillingAmount:         r.BillingAmount,
	}
}

// RecordStore keeps exactly one dataset version in Postgres.
type RecordStore struct {
	db        *gorm.DB
	batchSize int
}

func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db, batchSize: defaultBatchSize}
}

func (s *RecordStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Snapshot{}, &PatientRow{})
}

// ReplaceAll writes dataset as the current version and drops every older one in the same transaction.
func (s *RecordStore) ReplaceAll(ctx context.Context, dataset *models.Dataset) error {
	snapshot := Snapshot{
		Version:     dataset.Version,
		Source:      dataset.Source,
		RecordCount: dataset.Len(),
		LoadedAt:    dataset.LoadedAt,
	}
	rows := make([]PatientRow, 0, dataset.Len())
	for _, rec := range dataset.Records {
		rows = append(rows, rowFromModel(dataset.Version, rec))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snapshot).Error; err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, s.batchSize).Error; err != nil {
				return fmt.Errorf("insert records: %w", err)
			}
		}
		if err := tx.Where("version <> ?", dataset.Version).Delete(&PatientRow{}).Error; err != nil {
			return fmt.Errorf("drop old records: %w", err)
		}
		if err := tx.Where("version <> ?", dataset.Version).Delete(&Snapshot{}).Error; err != nil {
			return fmt.Errorf("drop old snapshots: %w", err)
		}
		return nil
	})
}

// LoadAll reads the current version. Stored rows are validated again so a hand-edited
// table surfaces as a DataIntegrityError instead of skewing aggregates.
func (s *RecordStore) LoadAll(ctx context.Context) (*models.Dataset, error) {
	var snapshot Snapshot
	err := s.db.WithContext(ctx).Order("loaded_at DESC").Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, err
	}

	var rows []PatientRow
	if err := s.db.WithContext(ctx).
		Where("version = ?", snapshot.Version).
		Order("position").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	dataset := &models.Dataset{
		Version:  snapshot.Version,
		Source:   snapshot.Source,
		LoadedAt: snapshot.LoadedAt,
		Records:  make([]models.PatientRecord, 0, len(rows)),
	}
	for _, row := range rows {
		rec := row.toModel()
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		dataset.Records = append(dataset.Records, rec)
	}
	if dataset.Len() != snapshot.RecordCount {
		logger.Log.WithFields(map[string]interface{}{
			"version":  snapshot.Version,
			"expected": snapshot.RecordCount,
			"found":    dataset.Len(),
		}).Warn("stored dataset row count differs from snapshot header")
	}
	return dataset, nil
}
