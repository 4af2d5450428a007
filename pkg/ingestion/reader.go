package ingestion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
	"github.com/synaptica-ai/healthreport/pkg/ml/linear"
)

const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

var ErrMissingColumn = errors.New("missing required column")

// Scorer fills prediction fields for records whose export lacks them.
type Scorer interface {
	Score(rec *models.PatientRecord) error
}

var _ Scorer = (*linear.Artifact)(nil)

type Options struct {
	Scorer Scorer
	// SkipInvalid drops rows that fail validation instead of aborting the read.
	SkipInvalid bool
}

// Result holds the accepted records, positioned 0..n-1 in source order. Positions are
// dense over accepted records, while the Row of a rejected DataIntegrityError is the
// data row index in the source (blank lines and the header excluded), so the two
// diverge once a row is skipped.
type Result struct {
	Records  []models.PatientRecord
	Rejected []error
}

// Read decodes a dataset export in the given format.
func Read(r io.Reader, format string, opts Options) (*Result, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return readCSV(r, opts)
	case FormatJSONL:
		return readJSONL(r, opts)
	default:
		return nil, ValidationError{reason: fmt.Errorf("format '%s' not supported: %w", format, errInvalidFormat)}
	}
}

// ReadFile opens path and reads it with the format implied by its extension
// unless format is given.
func ReadFile(path, format string, opts Options) (*Result, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, format, opts)
}

func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// collector applies scoring, validation and positioning to decoded rows.
type collector struct {
	opts   Options
	result Result
}

func (c *collector) accept(row int, rec models.PatientRecord, stayGiven bool) error {
	if !stayGiven && !rec.AdmissionDate.IsZero() && !rec.DischargeDate.IsZero() {
		rec.LengthOfStay = models.StayDays(rec.AdmissionDate, rec.DischargeDate)
	}
	if rec.PredictionLabel == "" && c.opts.Scorer != nil {
		if err := c.opts.Scorer.Score(&rec); err != nil {
			return c.reject(models.NewDataIntegrityError(row, rec.Name, "Test_Prediction", err))
		}
	}

	rec.Position = row
	if err := rec.Validate(); err != nil {
		return c.reject(err)
	}
	rec.Position = len(c.result.Records)
	c.result.Records = append(c.result.Records, rec)
	return nil
}

func (c *collector) reject(err error) error {
	if !c.opts.SkipInvalid {
		return err
	}
	logger.Log.WithError(err).Warn("skipping invalid dataset row")
	c.result.Rejected = append(c.result.Rejected, err)
	return nil
}

var dateLayouts = []string{"02-01-2006", "2006-01-02", time.RFC3339}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, models.ErrMissingField
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", models.ErrInvalidDate, value)
}
