package models

import (
	"errors"
	"fmt"
	"math"
)

// Scenario is a named multiplier applied uniformly to event effects.
type Scenario struct {
	Name  string  `json:"name"`
	Scale float64 `json:"scale"`
}

// Validate checks scenario field constraints.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name must not be empty")
	}
	if math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) || s.Scale <= 0 {
		return fmt.Errorf("scenario %q scale must be a positive finite number", s.Name)
	}
	return nil
}

// DefaultScenarios returns the pessimistic, baseline and optimistic variants.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "Pessimistic", Scale: 0.5},
		{Name: "Baseline", Scale: 1.0},
		{Name: "Optimistic", Scale: 1.5},
	}
}

// FindScenario looks a scenario up by name.
func FindScenario(scenarios []Scenario, name string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// ForecastRow is one forecast value for an (indicator, year, scenario) triple.
type ForecastRow struct {
	Indicator string  `json:"indicator"`
	Year      int     `json:"year"`
	Scenario  string  `json:"scenario"`
	Value     float64 `json:"forecast_value"`
}
