package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errInvalidSource = errors.New("invalid source")
	errInvalidFormat = errors.New("invalid format")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Validator checks load requests before any data is read.
type Validator struct {
	allowedSources map[string]struct{}
	allowedFormats map[string]struct{}
}

// NewValidator accepts every source when sources is empty.
func NewValidator(sources []string) *Validator {
	vs := make(map[string]struct{})
	for _, src := range sources {
		if trimmed := strings.TrimSpace(strings.ToLower(src)); trimmed != "" {
			vs[trimmed] = struct{}{}
		}
	}
	return &Validator{
		allowedSources: vs,
		allowedFormats: map[string]struct{}{FormatCSV: {}, FormatJSONL: {}},
	}
}

// Validate normalises req in place.
func (v *Validator) Validate(req *LoadRequest) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}

	req.Source = strings.TrimSpace(strings.ToLower(req.Source))
	if req.Source == "" {
		return ValidationError{reason: fmt.Errorf("source required: %w", errInvalidSource)}
	}
	if len(v.allowedSources) > 0 {
		if _, ok := v.allowedSources[req.Source]; !ok {
			return ValidationError{reason: fmt.Errorf("source '%s' not allowed: %w", req.Source, errInvalidSource)}
		}
	}

	req.Format = strings.TrimSpace(strings.ToLower(req.Format))
	if req.Format == "" {
		return ValidationError{reason: fmt.Errorf("format required: %w", errInvalidFormat)}
	}
	if _, ok := v.allowedFormats[req.Format]; !ok {
		return ValidationError{reason: fmt.Errorf("format '%s' not supported: %w", req.Format, errInvalidFormat)}
	}
	return nil
}
