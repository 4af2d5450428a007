package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date form used for criteria bounds on the wire.
const DateLayout = "2006-01-02"

func (c Criteria) MarshalJSON() ([]byte, error) {
	type alias Criteria
	return json.Marshal(struct {
		alias
		DateLower string `json:"date_lower,omitempty"`
		DateUpper string `json:"date_upper,omitempty"`
	}{
		alias:     alias(c),
		DateLower: formatDate(c.DateLower),
		DateUpper: formatDate(c.DateUpper),
	})
}

// UnmarshalJSON accepts bounds as YYYY-MM-DD or RFC 3339 timestamps.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	type alias Criteria
	aux := struct {
		*alias
		DateLower string `json:"date_lower"`
		DateUpper string `json:"date_upper"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if c.DateLower, err = parseDate("date_lower", aux.DateLower); err != nil {
		return err
	}
	if c.DateUpper, err = parseDate("date_upper", aux.DateUpper); err != nil {
		return err
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrInvalidDate, field, value)
	}
	return t.UTC(), nil
}
