// Package models defines the core domain entities: records, observations, impact links and forecasts.
package models

import (
	"errors"
	"time"
)

// Record types found in the main record table.
const (
	RecordTypeEvent       = "event"
	RecordTypeObservation = "observation"
	RecordTypeTarget      = "target"
)

// Record is one row of the main record table. Events and observations share
// the table and are told apart by RecordType.
type Record struct {
	RecordID        string    `json:"record_id"`
	RecordType      string    `json:"record_type"`
	Pillar          string    `json:"pillar,omitempty"`
	Indicator       string    `json:"indicator,omitempty"`
	IndicatorCode   string    `json:"indicator_code,omitempty"`
	Category        string    `json:"category,omitempty"`
	Confidence      string    `json:"confidence,omitempty"`
	ObservationDate time.Time `json:"observation_date"` // zero when missing or unparseable
	Year            int       `json:"year,omitempty"`   // zero when unknown
	Value           *float64  `json:"value_numeric"`    // nil when missing
}

// IsEvent reports whether the record describes a dated event.
func (r *Record) IsEvent() bool {
	return r.RecordType == RecordTypeEvent
}

// Validate checks record field constraints.
func (r *Record) Validate() error {
	if r.RecordID == "" {
		return errors.New("record ID must not be empty")
	}
	if r.RecordType == "" {
		return errors.New("record type must not be empty")
	}
	if r.RecordType == RecordTypeObservation && r.IndicatorCode == "" {
		return errors.New("observation must carry an indicator code")
	}
	if r.IsEvent() && r.ObservationDate.IsZero() {
		return errors.New("event must carry an observation date")
	}
	return nil
}

// Observation is one measured value of one indicator in one year.
type Observation struct {
	IndicatorCode string   `json:"indicator_code"`
	Year          int      `json:"year"`
	Value         *float64 `json:"value_numeric"`
}

// HasValue reports whether the observation carries a measured value.
func (o Observation) HasValue() bool {
	return o.Value != nil
}

// ObservationsFromRecords extracts observation rows from the main record
// table. Rows without a resolvable year are skipped.
func ObservationsFromRecords(records []Record) []Observation {
	var obs []Observation
	for i := range records {
		r := &records[i]
		if r.RecordType != RecordTypeObservation || r.IndicatorCode == "" {
			continue
		}
		year := r.Year
		if year == 0 && !r.ObservationDate.IsZero() {
			year = r.ObservationDate.Year()
		}
		if year == 0 {
			continue
		}
		obs = append(obs, Observation{IndicatorCode: r.IndicatorCode, Year: year, Value: r.Value})
	}
	return obs
}

// ImpactLink is an asserted causal edge from one event to one indicator.
type ImpactLink struct {
	ParentID         string    `json:"parent_id"`
	RelatedIndicator string    `json:"related_indicator"`
	Magnitude        Magnitude `json:"impact_magnitude"`
	MagnitudeLabel   string    `json:"-"`
	Direction        Direction `json:"impact_direction"`
	DirectionLabel   string    `json:"-"`
	LagMonths        float64   `json:"lag_months"`
}

// Validate checks impact link field constraints. Unrecognised magnitude or
// direction labels are reported here; lenient callers may ignore them.
func (l *ImpactLink) Validate() error {
	if l.ParentID == "" {
		return errors.New("impact link parent ID must not be empty")
	}
	if l.RelatedIndicator == "" {
		return errors.New("impact link related indicator must not be empty")
	}
	if l.MagnitudeLabel != "" && l.Magnitude == MagnitudeNone {
		return errors.New("impact magnitude must be one of low, medium, high")
	}
	if !l.Direction.Valid() {
		return errors.New("impact direction must be one of increase, decrease")
	}
	if l.LagMonths < 0 {
		return errors.New("lag months must not be negative")
	}
	return nil
}

// NewImpactLink builds a link from raw table labels.
func NewImpactLink(parentID, indicator, magnitude, direction string, lagMonths float64) ImpactLink {
	return ImpactLink{
		ParentID:         parentID,
		RelatedIndicator: indicator,
		Magnitude:        ParseMagnitude(magnitude),
		MagnitudeLabel:   magnitude,
		Direction:        ParseDirection(direction),
		DirectionLabel:   direction,
		LagMonths:        lagMonths,
	}
}

// Dataset bundles the three input tables consumed by the forecaster.
type Dataset struct {
	Records      []Record      `json:"records"`
	Observations []Observation `json:"observations"`
	Impacts      []ImpactLink  `json:"impacts"`
}

// Events returns the records of type event, in table order.
func (d *Dataset) Events() []Record {
	var events []Record
	for _, r := range d.Records {
		if r.IsEvent() {
			events = append(events, r)
		}
	}
	return events
}

// IndicatorCodes returns the distinct observation indicator codes in first-seen order.
func (d *Dataset) IndicatorCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, o := range d.Observations {
		if !seen[o.IndicatorCode] {
			seen[o.IndicatorCode] = true
			codes = append(codes, o.IndicatorCode)
		}
	}
	return codes
}
