package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/inclusioncast/internal/models"
)

const (
	minForecastValue = 0.0
	maxForecastValue = 100.0
)

// GenerateForecasts emits one clamped row per fitted target, forecast year and
// scenario, nested in that order. Targets are visited in fit order; a nil
// targets slice selects every fitted indicator. Years are matched to the
// cached predictions by position.
func (f *Forecaster) GenerateForecasts(targets []string, years []int, scenarios []models.Scenario) ([]models.ForecastRow, error) {
	if err := validateScenarios(scenarios); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(targets))
	for _, code := range targets {
		wanted[code] = true
		if f.strict {
			if _, ok := f.trends[code]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFitted, code)
			}
		}
	}

	var rows []models.ForecastRow
	for _, code := range f.order {
		if targets != nil && !wanted[code] {
			continue
		}
		trend := f.trends[code]
		if len(years) > len(trend.Predictions) {
			return nil, fmt.Errorf("%w: %s has %d predictions, %d years requested",
				ErrYearMismatch, code, len(trend.Predictions), len(years))
		}
		if f.strict && !sameYears(trend.Years, years) {
			return nil, fmt.Errorf("%w: %s fitted for %v", ErrYearMismatch, code, trend.Years)
		}

		for i, year := range years {
			for _, sc := range scenarios {
				effect, err := f.CumulativeEventEffect(year, code, sc.Scale)
				if err != nil {
					return nil, err
				}
				rows = append(rows, models.ForecastRow{
					Indicator: code,
					Year:      year,
					Scenario:  sc.Name,
					Value:     clamp(trend.Predictions[i] + effect),
				})
			}
		}
	}
	return rows, nil
}

func validateScenarios(scenarios []models.Scenario) error {
	seen := make(map[string]bool, len(scenarios))
	for _, sc := range scenarios {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
		if seen[sc.Name] {
			return fmt.Errorf("%w: duplicate scenario %q", ErrInvalidScenario, sc.Name)
		}
		seen[sc.Name] = true
	}
	return nil
}

func sameYears(a, b []int) bool {
	if len(a) < len(b) {
		return false
	}
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return minForecastValue
	}
	return math.Min(math.Max(v, minForecastValue), maxForecastValue)
}

// Years returns horizon consecutive years starting at start.
func Years(start, horizon int) []int {
	if horizon <= 0 {
		return nil
	}
	years := make([]int, horizon)
	for i := range years {
		years[i] = start + i
	}
	return years
}

// Request describes one end-to-end forecast run.
type Request struct {
	Targets   []string          `json:"targets"`
	Years     []int             `json:"years"`
	MinPoints int               `json:"min_points"`
	Scenarios []models.Scenario `json:"scenarios"`
}

// Result is the output of Run.
type Result struct {
	ID          string               `json:"id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Targets     []string             `json:"targets"`
	Years       []int                `json:"years"`
	Scenarios   []models.Scenario    `json:"scenarios"`
	Trends      []Trend              `json:"trends"`
	Rows        []models.ForecastRow `json:"rows"`
}

// Run fits the requested targets and generates their forecasts. Fit errors
// for individual indicators are returned alongside the partial result.
func (f *Forecaster) Run(req Request) (*Result, error) {
	minPoints := req.MinPoints
	if minPoints == 0 {
		minPoints = DefaultMinPoints
	}
	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		scenarios = models.DefaultScenarios()
	}

	if len(req.Targets) == 0 {
		return nil, fmt.Errorf("%w: no target indicators", ErrInsufficientData)
	}

	fitErr := f.FitTrendModels(req.Targets, req.Years, minPoints)
	if fitErr != nil && (f.strict || !f.anyFitted(req.Targets)) {
		return nil, fitErr
	}

	rows, err := f.GenerateForecasts(req.Targets, req.Years, scenarios)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Targets:     req.Targets,
		Years:       req.Years,
		Scenarios:   scenarios,
		Rows:        rows,
	}
	for _, code := range f.order {
		if t, ok := f.Trend(code); ok && contains(req.Targets, code) {
			res.Trends = append(res.Trends, t)
		}
	}
	return res, fitErr
}

func (f *Forecaster) anyFitted(codes []string) bool {
	for _, code := range codes {
		if _, ok := f.trends[code]; ok {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TargetCrossing returns the first forecast year at which indicator reaches
// target under scenario.
func TargetCrossing(rows []models.ForecastRow, indicator, scenario string, target float64) (int, bool) {
	for _, r := range rows {
		if r.Indicator == indicator && r.Scenario == scenario && r.Value >= target {
			return r.Year, true
		}
	}
	return 0, false
}

// Filter keeps the rows matching scenario, or every row when scenario is empty.
func Filter(rows []models.ForecastRow, scenario string) []models.ForecastRow {
	if scenario == "" {
		return rows
	}
	var out []models.ForecastRow
	for _, r := range rows {
		if r.Scenario == scenario {
			out = append(out, r)
		}
	}
	return out
}
