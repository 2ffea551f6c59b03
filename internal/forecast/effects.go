package forecast

import (
	"fmt"
	"time"

	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

const monthsPerYear = 12

// mergedLink is an impact link left-joined to its parent event.
type mergedLink struct {
	link      models.ImpactLink
	eventDate time.Time
	eventYear int
	matched   bool
}

func (f *Forecaster) invalidateMerged() {
	f.merged = nil
	f.mergedReady = false
}

// mergedLinks builds the joined view on first use and caches it until Reset.
func (f *Forecaster) mergedLinks() ([]mergedLink, error) {
	if f.mergedReady {
		return f.merged, nil
	}

	// The first row wins when an event ID repeats.
	eventDates := make(map[string]time.Time)
	for _, r := range f.data.Records {
		if !r.IsEvent() {
			continue
		}
		if _, dup := eventDates[r.RecordID]; dup {
			logger.Warn("Duplicate event %s: keeping the first date", r.RecordID)
			continue
		}
		eventDates[r.RecordID] = r.ObservationDate
	}

	merged := make([]mergedLink, 0, len(f.data.Impacts))
	dangling := 0
	for _, link := range f.data.Impacts {
		if f.strict {
			if err := link.Validate(); err != nil {
				return nil, fmt.Errorf("%w %s -> %s: %v", ErrInvalidLink, link.ParentID, link.RelatedIndicator, err)
			}
		}

		ml := mergedLink{link: link}
		if date, ok := eventDates[link.ParentID]; ok && !date.IsZero() {
			ml.eventDate = date
			ml.eventYear = date.Year()
			ml.matched = true
		} else {
			if f.strict {
				return nil, fmt.Errorf("%w: %s", ErrDanglingLink, link.ParentID)
			}
			dangling++
		}
		merged = append(merged, ml)
	}
	if dangling > 0 {
		logger.Warn("%d impact links have no dated parent event and are ignored", dangling)
	}

	f.merged = merged
	f.mergedReady = true
	return merged, nil
}

// CumulativeEventEffect sums the scaled effect of every impact link on
// indicator, evaluated at year. Links whose event lies after year, or whose
// parent event is unknown, contribute nothing.
func (f *Forecaster) CumulativeEventEffect(year int, indicator string, scale float64) (float64, error) {
	merged, err := f.mergedLinks()
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, ml := range merged {
		if !ml.matched || ml.link.RelatedIndicator != indicator {
			continue
		}
		t := float64(year-ml.eventYear) * monthsPerYear
		if t < 0 {
			continue
		}
		signed := ml.link.Magnitude.Weight() * ml.link.Direction.Sign()
		total += scale * f.impact.EventEffect(t, 0, ml.link.LagMonths, signed)
	}
	return total, nil
}
