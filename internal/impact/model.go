// Package impact models the time-varying effect of a discrete event on an indicator.
package impact

import (
	"fmt"
	"math"

	"github.com/rewired-gh/inclusioncast/internal/models"
)

// Config fixes the shape of the impulse response.
type Config struct {
	Ramp      float64 // months from onset to full effect
	Decay     bool
	DecayRate float64 // monthly exponential decay constant after the plateau
}

// DefaultConfig ramps over 12 months and never decays.
func DefaultConfig() Config {
	return Config{Ramp: 12}
}

// Model maps event timing and magnitude to an additive effect:
// zero until the lag elapses, a linear ramp, a plateau, then optional decay.
type Model struct {
	ramp      float64
	decay     bool
	decayRate float64
}

// New validates cfg and returns a Model.
func New(cfg Config) (*Model, error) {
	if !(cfg.Ramp > 0) || math.IsInf(cfg.Ramp, 0) {
		return nil, fmt.Errorf("ramp must be a positive finite number, got %v", cfg.Ramp)
	}
	if cfg.DecayRate < 0 || math.IsNaN(cfg.DecayRate) {
		return nil, fmt.Errorf("decay rate must not be negative, got %v", cfg.DecayRate)
	}
	return &Model{ramp: cfg.Ramp, decay: cfg.Decay, decayRate: cfg.DecayRate}, nil
}

// Default returns the model built from DefaultConfig.
func Default() *Model {
	m, _ := New(DefaultConfig())
	return m
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config {
	return Config{Ramp: m.ramp, Decay: m.decay, DecayRate: m.decayRate}
}

// MapMagnitude converts a qualitative label to its weight. Unknown or empty
// labels contribute nothing.
func (m *Model) MapMagnitude(label string) float64 {
	return models.ParseMagnitude(label).Weight()
}

// EventEffect returns the effect at time t of an event at eventTime acting
// after lag. magnitude is already signed. All times share one unit.
func (m *Model) EventEffect(t, eventTime, lag, magnitude float64) float64 {
	dt := t - (eventTime + lag)
	if dt <= 0 {
		return 0
	}
	if dt < m.ramp {
		return magnitude * (dt / m.ramp)
	}

	effect := magnitude
	if m.decay && m.decayRate > 0 {
		effect *= math.Exp(-m.decayRate * (dt - m.ramp))
	}
	return effect
}
