package projection

import (
	"fmt"
	"sort"
	"time"

	"example.com/timelog/internal/domain"
)

// Entry is one rendered row of a day bucket: a group of N>=1 intervals plus
// its overlap annotation. The annotation is only populated for single-member
// entries; collapsed groups render unflagged and members keep their own
// annotations for the expanded view.
type Entry struct {
	Group      EntryGroup
	Annotation OverlapAnnotation
	// MemberAnnotations maps member interval IDs to their own overlap
	// annotations, surfaced when the group is expanded.
	MemberAnnotations map[string]OverlapAnnotation
	// EndsOnLaterDay marks entries whose end falls on a different calendar
	// day than the bucket's; the UI renders a different-day marker.
	EndsOnLaterDay bool
}

// DayBucket lists the entries whose start day is the bucket's date.
type DayBucket struct {
	Day     DayKey
	Total   time.Duration
	Entries []Entry
}

// CurrentEntry surfaces the owner's single open interval for the
// always-visible timer display.
type CurrentEntry struct {
	Interval domain.TimeInterval
	Elapsed  time.Duration
}

// View is the assembled weekly projection.
type View struct {
	OwnerID     string
	Week        WeekRange
	WeeklyTotal time.Duration
	// Days is ordered descending by date, most recent first.
	Days    []DayBucket
	Current *CurrentEntry
	// AsOf is the instant the view was computed against.
	AsOf time.Time
}

// Assemble builds the weekly view from a full interval snapshot.
//
// The pipeline: filter to owner, split each interval at local midnights,
// keep the ones whose start day falls in the resolved week, bucket by start
// day, detect overlaps among each day's closed intervals, cluster into
// groups, then total per day and per week. Pure and idempotent: the same
// snapshot and now yield an identical view.
//
// An interval with end before start is an upstream contract violation and
// fails the whole assembly rather than corrupting totals.
func Assemble(ownerID string, intervals []domain.TimeInterval, now time.Time, loc *time.Location, startOfWeek time.Weekday) (*View, error) {
	week := ResolveWeek(now, loc, startOfWeek)

	type dayEntry struct {
		iv        domain.TimeInterval
		spansDays bool
	}
	buckets := make(map[DayKey][]dayEntry)
	var current *CurrentEntry

	for _, iv := range intervals {
		if iv.OwnerID != ownerID {
			continue
		}

		subs, err := SplitByDay(iv, loc)
		if err != nil {
			return nil, fmt.Errorf("assemble: %w", err)
		}
		startDay := subs[0].Day

		if iv.Open() {
			// At most one open interval per owner is guaranteed upstream;
			// keep the first one seen if that invariant is ever violated.
			if current == nil {
				current = &CurrentEntry{Interval: iv, Elapsed: LiveDuration(iv, now)}
			}
		}

		// Entries live only in the week holding their start day; a split
		// tail landing in a later week never shows there.
		if !week.Contains(startDay) {
			continue
		}
		buckets[startDay] = append(buckets[startDay], dayEntry{iv: iv, spansDays: len(subs) > 1})
	}

	days := make([]DayBucket, 0, len(buckets))
	keys := make([]DayKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	var weeklyTotal time.Duration
	for _, key := range keys {
		entries := buckets[key]
		raw := make([]domain.TimeInterval, 0, len(entries))
		spans := make(map[string]bool, len(entries))
		for _, e := range entries {
			raw = append(raw, e.iv)
			spans[e.iv.ID] = e.spansDays
		}

		annotations := DetectOverlaps(raw)
		groups := GroupEntries(raw, now)

		bucket := DayBucket{Day: key, Entries: make([]Entry, 0, len(groups))}
		for _, g := range groups {
			entry := Entry{
				Group:             g,
				MemberAnnotations: make(map[string]OverlapAnnotation, len(g.Members)),
				EndsOnLaterDay:    entrySpansDays(g, spans),
			}
			for _, m := range g.Members {
				if ann, ok := annotations[m.ID]; ok {
					entry.MemberAnnotations[m.ID] = ann
				}
			}
			if len(g.Members) == 1 {
				entry.Annotation = annotations[g.Members[0].ID]
			}
			bucket.Total += g.Total
			bucket.Entries = append(bucket.Entries, entry)
		}
		weeklyTotal += bucket.Total
		days = append(days, bucket)
	}

	return &View{
		OwnerID:     ownerID,
		Week:        week,
		WeeklyTotal: weeklyTotal,
		Days:        days,
		Current:     current,
		AsOf:        now,
	}, nil
}

// entrySpansDays reports whether the group's displayed end lands on a later
// calendar day than the bucket. For a single entry that is simply its own
// midnight crossing; for a group it is the member supplying the latest end.
func entrySpansDays(g EntryGroup, spans map[string]bool) bool {
	if g.LatestEnd == nil {
		return false
	}
	for _, m := range g.Members {
		if m.EndAt != nil && m.EndAt.Equal(*g.LatestEnd) {
			return spans[m.ID]
		}
	}
	return false
}

// GroupMembers answers the expansion query for a rendered group: the member
// intervals of the group with the given key on the given day, ordered by
// each member's own start descending.
func (v *View) GroupMembers(day DayKey, key GroupKey) []domain.TimeInterval {
	for _, bucket := range v.Days {
		if bucket.Day != day {
			continue
		}
		for _, entry := range bucket.Entries {
			if entry.Group.Key == key {
				return entry.Group.SortedMembers()
			}
		}
	}
	return nil
}

// DailyTotals sums tracked time per local calendar day using the day-split
// slices, so an interval crossing midnight contributes to both days. This is
// the day-local aggregation reports use; the weekly view's buckets instead
// attribute an entry's whole duration to its start day.
func DailyTotals(ownerID string, intervals []domain.TimeInterval, now time.Time, loc *time.Location) (map[DayKey]time.Duration, error) {
	totals := make(map[DayKey]time.Duration)
	for _, iv := range intervals {
		if iv.OwnerID != ownerID {
			continue
		}
		subs, err := SplitByDay(iv, loc)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			totals[sub.Day] += sub.Duration(now)
		}
	}
	return totals, nil
}
