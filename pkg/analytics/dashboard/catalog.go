package dashboard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

type Dimension string

const (
	DimensionAgeGroup      Dimension = "age_group"
	DimensionBloodType     Dimension = "blood_type"
	DimensionCondition     Dimension = "condition"
	DimensionConditionRisk Dimension = "condition_risk"
	DimensionSeason        Dimension = "season"
	DimensionGender        Dimension = "gender"
)

// Catalog lists the known values of each categorical dimension in display order.
type Catalog struct {
	Categories map[Dimension][]string `yaml:"categories" json:"categories"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Categories) == 0 {
		return Catalog{}, fmt.Errorf("category catalog empty")
	}
	return cat, nil
}

func (c Catalog) Known(dim Dimension) []string {
	if c.Categories == nil {
		return nil
	}
	return c.Categories[dim]
}

// Sort orders values by catalog position; unknown values follow, alphabetically.
func (c Catalog) Sort(dim Dimension, values []string) {
	rank := make(map[string]int)
	for i, v := range c.Known(dim) {
		rank[v] = i
	}
	sort.SliceStable(values, func(i, j int) bool {
		ri, iok := rank[values[i]]
		rj, jok := rank[values[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return values[i] < values[j]
		}
	})
}

func DefaultCatalog() Catalog {
	return Catalog{Categories: map[Dimension][]string{
		DimensionBloodType:     {"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"},
		DimensionConditionRisk: {"1", "2", "3", "4", "5"},
		DimensionSeason:        {"Winter", "Spring", "Summer", "Fall"},
		DimensionGender:        {"Male", "Female"},
	}}
}
