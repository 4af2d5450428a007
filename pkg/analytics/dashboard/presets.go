package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

// PresetRow persists a named set of criteria; Criteria holds the JSON form of models.Criteria.
type PresetRow struct {
	ID          string         `gorm:"primaryKey;type:uuid"`
	Name        string         `gorm:"uniqueIndex;not null"`
	Description string         `gorm:"type:text"`
	Criteria    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time
}

func (PresetRow) TableName() string {
	return "filter_presets"
}

type PresetRepository struct {
	db *gorm.DB
}

func NewPresetRepository(db *gorm.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

func (r *PresetRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&PresetRow{})
}

func (r *PresetRepository) Create(ctx context.Context, preset *models.FilterPreset) error {
	if preset.ID == "" {
		preset.ID = uuid.New().String()
	}
	criteria, err := json.Marshal(preset.Criteria)
	if err != nil {
		return fmt.Errorf("encode preset criteria: %w", err)
	}

	row := PresetRow{
		ID:          preset.ID,
		Name:        preset.Name,
		Description: preset.Description,
		Criteria:    datatypes.JSON(criteria),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	preset.CreatedAt = row.CreatedAt
	return nil
}

func (r *PresetRepository) List(ctx context.Context) ([]models.FilterPreset, error) {
	var rows []PresetRow
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	presets := make([]models.FilterPreset, 0, len(rows))
	for _, row := range rows {
		preset, err := row.toModel()
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, nil
}

func (r *PresetRepository) Get(ctx context.Context, id string) (*models.FilterPreset, error) {
	var row PresetRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPresetNotFound
	}
	if err != nil {
		return nil, err
	}
	preset, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &preset, nil
}

func (row PresetRow) toModel() (models.FilterPreset, error) {
	preset := models.FilterPreset{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
	}
	if len(row.Criteria) > 0 {
		if err := json.Unmarshal(row.Criteria, &preset.Criteria); err != nil {
			return models.FilterPreset{}, fmt.Errorf("decode preset %s: %w", row.ID, err)
		}
	}
	return preset, nil
}
