// Package projection converts raw time intervals into the timezone-aware
// view model the timelog UI renders. Every function here is pure: inputs
// include the reference instant, and identical inputs produce identical
// output, which is what allows the live pipeline to re-run assembly on every
// notification instead of patching state incrementally.
package projection

import (
	"fmt"
	"time"

	"example.com/timelog/internal/domain"
)

// DayKey identifies a calendar date in the reference timezone, formatted as
// YYYY-MM-DD. The format sorts lexicographically in date order.
type DayKey string

// NewDayKey derives the key for an instant in the given location.
func NewDayKey(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(loc).Format("2006-01-02"))
}

// Time returns local midnight of the keyed date.
func (k DayKey) Time(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", string(k), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", k, err)
	}
	return t, nil
}

// DaySubInterval is one calendar-day slice of a source interval. Derived,
// never persisted.
type DaySubInterval struct {
	SourceID string
	Day      DayKey
	Start    time.Time
	End      *time.Time
	// PartialStart marks slices that begin at a midnight cut rather than
	// the interval's own start; PartialEnd marks slices cut at end of day.
	PartialStart bool
	PartialEnd   bool
	// StartDay is set on the single slice containing the original start
	// instant. Entries are attached to the UI only via that slice's day.
	StartDay bool
}

// Duration returns the slice's own length. Open slices are measured against
// the supplied now, clamped at zero.
func (s DaySubInterval) Duration(now time.Time) time.Duration {
	if s.End != nil {
		return s.End.Sub(s.Start)
	}
	d := now.Sub(s.Start)
	if d < 0 {
		return 0
	}
	return d
}

// endOfDayCut is subtracted from local midnight to land boundary cuts at
// 23:59:59.999, so per-day sums come out one millisecond short of the
// wall-clock span for each midnight crossed. Asserted-on behaviour, kept.
const endOfDayCut = time.Millisecond

// SplitByDay cuts an interval into per-calendar-day slices in loc.
//
// Open intervals never split: they produce a single open slice on the start
// day, and the whole live duration is attributed there. Closed intervals get
// one slice per local calendar day touched, with each boundary cut at
// 23:59:59.999 / 00:00:00.000.
func SplitByDay(iv domain.TimeInterval, loc *time.Location) ([]DaySubInterval, error) {
	if iv.StartAt.IsZero() {
		return nil, fmt.Errorf("interval %s: start is required", iv.ID)
	}

	start := iv.StartAt.In(loc)
	startKey := NewDayKey(start, loc)

	if iv.EndAt == nil {
		return []DaySubInterval{{
			SourceID: iv.ID,
			Day:      startKey,
			Start:    start,
			StartDay: true,
		}}, nil
	}

	end := iv.EndAt.In(loc)
	if end.Before(start) {
		return nil, fmt.Errorf("interval %s: %w", iv.ID, domain.ErrInvalidInterval)
	}

	var out []DaySubInterval
	cur := start
	for {
		dayStart := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, loc)
		// AddDate handles DST transitions, a flat +24h does not.
		nextMidnight := dayStart.AddDate(0, 0, 1)

		if !end.After(nextMidnight) {
			sliceEnd := end
			out = append(out, DaySubInterval{
				SourceID:     iv.ID,
				Day:          NewDayKey(cur, loc),
				Start:        cur,
				End:          &sliceEnd,
				PartialStart: len(out) > 0,
				StartDay:     len(out) == 0,
			})
			return out, nil
		}

		cutEnd := nextMidnight.Add(-endOfDayCut)
		out = append(out, DaySubInterval{
			SourceID:     iv.ID,
			Day:          NewDayKey(cur, loc),
			Start:        cur,
			End:          &cutEnd,
			PartialStart: len(out) > 0,
			PartialEnd:   true,
			StartDay:     len(out) == 0,
		})
		cur = nextMidnight
	}
}
