package ingestion

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusAccepted  = "accepted"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// LoadRequest describes one dataset import.
type LoadRequest struct {
	Source   string            `json:"source"`
	Format   string            `json:"format"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoadRun is the audit row of one import attempt.
type LoadRun struct {
	ID          string            `json:"id" gorm:"primaryKey;column:id"`
	Source      string            `json:"source" gorm:"column:source"`
	Format      string            `json:"format" gorm:"column:format"`
	Status      string            `json:"status" gorm:"column:status"`
	Version     string            `json:"version,omitempty" gorm:"column:version"`
	RecordCount int               `json:"record_count" gorm:"column:record_count"`
	Rejected    int               `json:"rejected" gorm:"column:rejected"`
	Error       string            `json:"error,omitempty" gorm:"column:error"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (LoadRun) TableName() string {
	return "dataset_loads"
}
