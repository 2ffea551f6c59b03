// Package forecast blends per-indicator linear trends with cumulative event
// effects into bounded, scenario-scaled forecasts.
//
// A Forecaster caches trend predictions and a merged view of impact links
// joined to their parent events. It is not safe for concurrent use; give each
// request or session its own instance.
package forecast

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rewired-gh/inclusioncast/internal/impact"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

// DefaultMinPoints is the number of valid observations needed for an OLS fit.
const DefaultMinPoints = 2

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrNotFitted        = errors.New("indicator has no fitted trend")
	ErrDanglingLink     = errors.New("impact link references unknown event")
	ErrInvalidLink      = errors.New("invalid impact link")
	ErrYearMismatch     = errors.New("forecast years do not match fitted years")
	ErrInvalidScenario  = errors.New("invalid scenario")
)

// Forecaster holds trend state per indicator and the merged event view.
type Forecaster struct {
	data   *models.Dataset
	impact *impact.Model
	strict bool

	trends map[string]*Trend
	order  []string // fit order, stable across refits

	merged      []mergedLink
	mergedReady bool
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithImpactModel replaces the default 12-month ramp, no-decay model.
func WithImpactModel(m *impact.Model) Option {
	return func(f *Forecaster) {
		if m != nil {
			f.impact = m
		}
	}
}

// WithStrict turns silent degradations (dangling links, unknown labels,
// unfitted targets, shifted years) into errors.
func WithStrict(strict bool) Option {
	return func(f *Forecaster) {
		f.strict = strict
	}
}

// New creates a Forecaster over data. The dataset is read, never modified.
func New(data *models.Dataset, opts ...Option) *Forecaster {
	if data == nil {
		data = &models.Dataset{}
	}
	f := &Forecaster{
		data:   data,
		impact: impact.Default(),
		trends: make(map[string]*Trend),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Reset swaps the input tables and drops every cached trend and the merged view.
func (f *Forecaster) Reset(data *models.Dataset) {
	if data == nil {
		data = &models.Dataset{}
	}
	f.data = data
	f.trends = make(map[string]*Trend)
	f.order = nil
	f.invalidateMerged()
}

// ImpactModel returns the impulse-response model in use.
func (f *Forecaster) ImpactModel() *impact.Model {
	return f.impact
}

// FitTrendModels fits one trend per target over the given forecast years.
// Indicators with fewer than minPoints valid rows fall back to growth or flat
// extrapolation; indicators with no valid rows fail with ErrInsufficientData
// while the remaining targets are still fitted.
func (f *Forecaster) FitTrendModels(targets []string, years []int, minPoints int) error {
	if minPoints < 2 {
		return fmt.Errorf("min points must be at least 2, got %d", minPoints)
	}

	var errs []error
	for _, code := range targets {
		points := f.validPoints(code)
		logger.Debug("%s has %d valid rows", code, len(points))

		var trend *Trend
		switch {
		case len(points) == 0:
			errs = append(errs, fmt.Errorf("%s: %w: no observations with values", code, ErrInsufficientData))
			continue
		case len(points) < minPoints:
			logger.Warn("Not enough points for %s (%d < %d), extrapolating from last observation", code, len(points), minPoints)
			trend = extrapolate(points, years)
		default:
			model := fitLinear(points)
			trend = &Trend{Method: MethodOLS, Model: &model, Predictions: model.PredictAll(years)}
			logger.Debug("Fitted trend for %s: slope %.4f, r2 %.3f", code, model.Slope, model.RSquared)
		}

		trend.Indicator = code
		trend.Points = len(points)
		trend.Years = append([]int(nil), years...)
		f.store(code, trend)
	}

	return errors.Join(errs...)
}

// validPoints returns the indicator's observations with values, sorted by year.
func (f *Forecaster) validPoints(code string) []point {
	var points []point
	for _, o := range f.data.Observations {
		if o.IndicatorCode != code || !o.HasValue() {
			continue
		}
		points = append(points, point{year: o.Year, value: *o.Value})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].year < points[j].year })
	return points
}

func (f *Forecaster) store(code string, trend *Trend) {
	if _, exists := f.trends[code]; !exists {
		f.order = append(f.order, code)
	}
	f.trends[code] = trend
}

// Indicators returns fitted indicator codes in fit order.
func (f *Forecaster) Indicators() []string {
	return append([]string(nil), f.order...)
}

// Trend returns a copy of the fitted trend for code.
func (f *Forecaster) Trend(code string) (Trend, bool) {
	t, ok := f.trends[code]
	if !ok {
		return Trend{}, false
	}
	cp := *t
	cp.Predictions = append([]float64(nil), t.Predictions...)
	cp.Years = append([]int(nil), t.Years...)
	if t.Model != nil {
		m := *t.Model
		cp.Model = &m
	}
	return cp, true
}

// Predictions returns the cached trend predictions for code.
func (f *Forecaster) Predictions(code string) ([]float64, bool) {
	t, ok := f.trends[code]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), t.Predictions...), true
}

// Model returns the fitted linear model for code. Indicators that fell back to
// growth or flat extrapolation have no model.
func (f *Forecaster) Model(code string) (LinearModel, bool) {
	t, ok := f.trends[code]
	if !ok || t.Model == nil {
		return LinearModel{}, false
	}
	return *t.Model, true
}
