package dataset

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/rewired-gh/inclusioncast/internal/models"
)

// ErrUnknownColumn is returned when summarising by a column the table lacks.
var ErrUnknownColumn = errors.New("column not found in main dataset")

// Explorer answers exploratory questions about a loaded dataset.
type Explorer struct {
	data *models.Dataset
}

// NewExplorer wraps ds.
func NewExplorer(ds *models.Dataset) *Explorer {
	if ds == nil {
		ds = &models.Dataset{}
	}
	return &Explorer{data: ds}
}

// FilterRecords returns records matching recordType and pillar. Empty
// arguments match everything.
func (e *Explorer) FilterRecords(recordType, pillar string) []models.Record {
	var out []models.Record
	for _, r := range e.data.Records {
		if recordType != "" && r.RecordType != recordType {
			continue
		}
		if pillar != "" && r.Pillar != pillar {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

var columnAccessors = map[string]func(models.Record) string{
	"record_type":    func(r models.Record) string { return r.RecordType },
	"pillar":         func(r models.Record) string { return r.Pillar },
	"indicator":      func(r models.Record) string { return r.Indicator },
	"indicator_code": func(r models.Record) string { return r.IndicatorCode },
	"category":       func(r models.Record) string { return r.Category },
	"confidence":     func(r models.Record) string { return r.Confidence },
}

// SummarizeBy counts records per value of column, most frequent first.
// Missing values are counted under the empty string.
func (e *Explorer) SummarizeBy(column string) ([]ValueCount, error) {
	get, ok := columnAccessors[column]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	counts := make(map[string]int)
	for _, r := range e.data.Records {
		counts[get(r)]++
	}
	return sortedCounts(counts), nil
}

// ConfidenceDistribution counts records per confidence level.
func (e *Explorer) ConfidenceDistribution() ([]ValueCount, error) {
	return e.SummarizeBy("confidence")
}

func sortedCounts(counts map[string]int) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Coverage is an indicator-by-year matrix of observation counts.
type Coverage struct {
	Indicators []string `json:"indicators"`
	Years      []int    `json:"years"`
	Counts     [][]int  `json:"counts"` // [indicator][year]
}

// Count returns the number of observations of indicator in year.
func (c *Coverage) Count(indicator string, year int) int {
	for i, code := range c.Indicators {
		if code != indicator {
			continue
		}
		for j, y := range c.Years {
			if y == year {
				return c.Counts[i][j]
			}
		}
	}
	return 0
}

// TemporalCoverage summarises which years have observations for which
// indicators. A nil indicators slice covers every indicator.
func (e *Explorer) TemporalCoverage(indicators []string) *Coverage {
	wanted := make(map[string]bool, len(indicators))
	for _, code := range indicators {
		wanted[code] = true
	}

	counts := make(map[string]map[int]int)
	yearSet := make(map[int]bool)
	for _, o := range e.data.Observations {
		if indicators != nil && !wanted[o.IndicatorCode] {
			continue
		}
		if counts[o.IndicatorCode] == nil {
			counts[o.IndicatorCode] = make(map[int]int)
		}
		counts[o.IndicatorCode][o.Year]++
		yearSet[o.Year] = true
	}

	cov := &Coverage{}
	for code := range counts {
		cov.Indicators = append(cov.Indicators, code)
	}
	sort.Strings(cov.Indicators)
	for y := range yearSet {
		cov.Years = append(cov.Years, y)
	}
	sort.Ints(cov.Years)

	cov.Counts = make([][]int, len(cov.Indicators))
	for i, code := range cov.Indicators {
		cov.Counts[i] = make([]int, len(cov.Years))
		for j, y := range cov.Years {
			cov.Counts[i][j] = counts[code][y]
		}
	}
	return cov
}

// SparseIndicators returns indicators with fewer than minCount observation rows.
func (e *Explorer) SparseIndicators(minCount int) []ValueCount {
	counts := make(map[string]int)
	for _, o := range e.data.Observations {
		counts[o.IndicatorCode]++
	}
	var sparse []ValueCount
	for _, vc := range sortedCounts(counts) {
		if vc.Count < minCount {
			sparse = append(sparse, vc)
		}
	}
	return sparse
}

// ImpactDetail is an impact link joined to its parent event.
type ImpactDetail struct {
	Link           models.ImpactLink `json:"link"`
	Matched        bool              `json:"matched"`
	EventIndicator string            `json:"event_indicator,omitempty"`
	EventCategory  string            `json:"event_category,omitempty"`
	EventDate      time.Time         `json:"event_date"`
}

// MergeImpacts left-joins every impact link to its parent event.
func (e *Explorer) MergeImpacts() []ImpactDetail {
	events := make(map[string]models.Record)
	for _, r := range e.data.Events() {
		if _, dup := events[r.RecordID]; !dup {
			events[r.RecordID] = r
		}
	}

	out := make([]ImpactDetail, 0, len(e.data.Impacts))
	for _, l := range e.data.Impacts {
		d := ImpactDetail{Link: l}
		if ev, ok := events[l.ParentID]; ok {
			d.Matched = true
			d.EventIndicator = ev.Indicator
			d.EventCategory = ev.Category
			d.EventDate = ev.ObservationDate
		}
		out = append(out, d)
	}
	return out
}

// Summary describes the observed values of one indicator.
type Summary struct {
	Indicator string  `json:"indicator"`
	Count     int     `json:"count"`
	FirstYear int     `json:"first_year"`
	LastYear  int     `json:"last_year"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Median    float64 `json:"median"`
	Last      float64 `json:"last"`
}

// DescribeIndicator computes summary statistics over the indicator's
// non-missing values.
func (e *Explorer) DescribeIndicator(code string) (*Summary, error) {
	var values stats.Float64Data
	s := &Summary{Indicator: code}
	for _, o := range e.data.Observations {
		if o.IndicatorCode != code || !o.HasValue() {
			continue
		}
		values = append(values, *o.Value)
		if s.FirstYear == 0 || o.Year < s.FirstYear {
			s.FirstYear = o.Year
		}
		if o.Year >= s.LastYear {
			s.LastYear = o.Year
			s.Last = *o.Value
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("indicator %s has no observed values", code)
	}

	var err error
	s.Count = values.Len()
	if s.Mean, err = values.Mean(); err != nil {
		return nil, err
	}
	if s.Min, err = values.Min(); err != nil {
		return nil, err
	}
	if s.Max, err = values.Max(); err != nil {
		return nil, err
	}
	if s.Median, err = values.Median(); err != nil {
		return nil, err
	}
	if s.Count > 1 {
		if s.StdDev, err = values.StandardDeviationSample(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DescribeAll summarises every indicator with at least one observed value.
func (e *Explorer) DescribeAll() []Summary {
	var out []Summary
	for _, code := range e.data.IndicatorCodes() {
		if s, err := e.DescribeIndicator(code); err == nil {
			out = append(out, *s)
		}
	}
	return out
}
