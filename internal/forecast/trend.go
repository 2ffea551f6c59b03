package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Method names how a trend was produced.
type Method string

const (
	MethodOLS    Method = "ols"
	MethodGrowth Method = "growth"
	MethodFlat   Method = "flat"
)

// Trend is the fitted state of one indicator.
type Trend struct {
	Indicator   string       `json:"indicator"`
	Method      Method       `json:"method"`
	Model       *LinearModel `json:"model,omitempty"` // nil unless Method is MethodOLS
	Points      int          `json:"points"`
	Years       []int        `json:"years"`
	Predictions []float64    `json:"predictions"`
}

// LinearModel is an ordinary least-squares line of value on year.
type LinearModel struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
	RSquared  float64 `json:"r_squared"`
}

// Predict evaluates the line at year.
func (m LinearModel) Predict(year int) float64 {
	return m.Intercept + m.Slope*float64(year)
}

// PredictAll evaluates the line at each year, in order.
func (m LinearModel) PredictAll(years []int) []float64 {
	out := make([]float64, len(years))
	for i, y := range years {
		out[i] = m.Predict(y)
	}
	return out
}

type point struct {
	year  int
	value float64
}

// fitLinear runs OLS over at least one point. When every point shares a year
// the slope is zero and the line sits at the mean.
func fitLinear(points []point) LinearModel {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.year)
		ys[i] = p.value
	}

	if len(points) < 2 || stat.Variance(xs, nil) == 0 {
		return LinearModel{Intercept: stat.Mean(ys, nil)}
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) {
		// constant series: the line is exact
		r2 = 1
	}
	return LinearModel{Intercept: alpha, Slope: beta, RSquared: r2}
}

// extrapolate handles indicators below the OLS threshold: with exactly two
// points the last observed change is repeated, otherwise the last value is
// held flat. The first forecast year gets the last observed value.
func extrapolate(points []point, years []int) *Trend {
	last := points[len(points)-1].value
	growth := 0.0
	method := MethodFlat
	if len(points) == 2 {
		growth = last - points[0].value
		method = MethodGrowth
	}

	preds := make([]float64, len(years))
	for i := range years {
		preds[i] = last + growth*float64(i)
	}
	return &Trend{Method: method, Predictions: preds}
}
