package dsl

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrSyntax = errors.New("filter syntax error")

type Clause struct {
	Field    string
	Operator string
	Values   []string
}

type Query struct {
	Filters []Clause
}

var (
	whereRegex  = regexp.MustCompile(`(?i)^\s*where\b`)
	clauseRegex = regexp.MustCompile(`(?i)^\s*([a-z_]+)\s*(>=|<=|=|\bin\b)\s*(\([^)]*\)|"[^"]*"|'[^']*'|[^\s()]+)\s*`)
	andRegex    = regexp.MustCompile(`(?i)^and\s+`)
)

// Parse reads expressions such as
//
//	where gender in (Male, Female) and hospital = "Sons and Miller" and admitted >= 2024-01-01
//
// Field names and keywords are case-insensitive; values keep their case.
func Parse(input string) (Query, error) {
	rest := strings.TrimSpace(input)
	if loc := whereRegex.FindStringIndex(rest); loc != nil {
		rest = strings.TrimSpace(rest[loc[1]:])
	}

	var query Query
	for rest != "" {
		match := clauseRegex.FindStringSubmatch(rest)
		if match == nil {
			return Query{}, fmt.Errorf("%w: cannot parse %q", ErrSyntax, rest)
		}
		rest = rest[len(match[0]):]

		op := strings.ToLower(match[2])
		values, err := parseValues(op, match[3])
		if err != nil {
			return Query{}, err
		}
		query.Filters = append(query.Filters, Clause{
			Field:    strings.ToLower(match[1]),
			Operator: op,
			Values:   values,
		})

		if rest == "" {
			break
		}
		loc := andRegex.FindStringIndex(rest)
		if loc == nil {
			return Query{}, fmt.Errorf("%w: expected 'and' before %q", ErrSyntax, rest)
		}
		rest = rest[loc[1]:]
		if strings.TrimSpace(rest) == "" {
			return Query{}, fmt.Errorf("%w: dangling 'and'", ErrSyntax)
		}
	}

	if len(query.Filters) == 0 {
		return Query{}, fmt.Errorf("%w: at least one clause is required", ErrSyntax)
	}
	return query, nil
}

func parseValues(op, raw string) ([]string, error) {
	if op != "in" {
		if strings.HasPrefix(raw, "(") {
			return nil, fmt.Errorf("%w: operator %s takes a single value", ErrSyntax, op)
		}
		return []string{unquote(raw)}, nil
	}
	if !strings.HasPrefix(raw, "(") {
		return nil, fmt.Errorf("%w: 'in' expects a parenthesised list", ErrSyntax)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	var values []string
	for _, item := range strings.Split(inner, ",") {
		item = unquote(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		values = append(values, item)
	}
	return values, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
