package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/synaptica-ai/healthreport/pkg/analytics/dsl"
	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

var ErrInvalidCriteria = errors.New("invalid criteria")

// ParseCriteria compiles a filter expression on top of defaults; fields the expression
// does not mention keep their default value.
func ParseCriteria(expr string, defaults models.Criteria) (models.Criteria, error) {
	query, err := dsl.Parse(expr)
	if err != nil {
		return models.Criteria{}, err
	}

	criteria := cloneCriteria(defaults)
	for _, clause := range query.Filters {
		switch clause.Field {
		case "gender", "genders":
			criteria.Genders, err = categoryValues(clause)
		case "hospital", "hospitals":
			criteria.Hospitals, err = categoryValues(clause)
		case "condition", "conditions", "medical_condition":
			criteria.Conditions, err = categoryValues(clause)
		case "admitted", "admission", "date":
			err = applyDateClause(&criteria, clause)
		default:
			err = fmt.Errorf("%w: unknown field %q", ErrInvalidCriteria, clause.Field)
		}
		if err != nil {
			return models.Criteria{}, err
		}
	}

	if calendarDate(criteria.DateLower).After(calendarDate(criteria.DateUpper)) {
		return models.Criteria{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange,
			criteria.DateLower.Format(dateLayout), criteria.DateUpper.Format(dateLayout))
	}
	return criteria, nil
}

func categoryValues(clause dsl.Clause) ([]string, error) {
	switch clause.Operator {
	case "=", "in":
		out := make([]string, len(clause.Values))
		copy(out, clause.Values)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: operator %s not supported for %s", ErrInvalidCriteria, clause.Operator, clause.Field)
	}
}

func applyDateClause(criteria *models.Criteria, clause dsl.Clause) error {
	if clause.Operator == "in" || len(clause.Values) != 1 {
		return fmt.Errorf("%w: %s expects a single date", ErrInvalidCriteria, clause.Field)
	}
	date, err := time.Parse(dateLayout, clause.Values[0])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCriteria, clause.Values[0], err)
	}
	switch clause.Operator {
	case ">=":
		criteria.DateLower = date
	case "<=":
		criteria.DateUpper = date
	case "=":
		criteria.DateLower = date
		criteria.DateUpper = date
	}
	return nil
}

func cloneCriteria(c models.Criteria) models.Criteria {
	return models.Criteria{
		DateLower:  c.DateLower,
		DateUpper:  c.DateUpper,
		Genders:    append([]string(nil), c.Genders...),
		Hospitals:  append([]string(nil), c.Hospitals...),
		Conditions: append([]string(nil), c.Conditions...),
	}
}
