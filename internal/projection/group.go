package projection

import (
	"sort"
	"strings"
	"time"

	"example.com/timelog/internal/domain"
)

// GroupKey identifies a display cluster: exact trimmed title plus the exact
// tag set, order-insensitive. No case folding on either part.
type GroupKey struct {
	Title string
	// Tags holds the sorted tag set joined with a unit separator, making
	// the key comparable and stable regardless of input tag order.
	Tags string
}

const tagSeparator = "\x1f"

// KeyFor derives the group key for an interval.
func KeyFor(iv domain.TimeInterval) GroupKey {
	return GroupKey{
		Title: strings.TrimSpace(iv.Title),
		Tags:  strings.Join(iv.SortedTags(), tagSeparator),
	}
}

// TagList splits the key back into its sorted tags.
func (k GroupKey) TagList() []string {
	if k.Tags == "" {
		return nil
	}
	return strings.Split(k.Tags, tagSeparator)
}

// EntryGroup is a cluster of same-title, same-tag-set intervals within one
// day. A cluster of size 1 is still a group; rendering decides whether to
// show group chrome based on member count.
type EntryGroup struct {
	Key           GroupKey
	Members       []domain.TimeInterval
	EarliestStart time.Time
	// LatestEnd is nil while any member is open.
	LatestEnd *time.Time
	// Total is the sum of member durations (live for an open member), not
	// the span from earliest start to latest end.
	Total     time.Duration
	HasActive bool
	// PositionKey is the latest member start instant; day ordering sorts
	// groups by it, descending.
	PositionKey time.Time
}

// SortedMembers returns the members ordered by their own start, most recent
// first, for the expanded detail view.
func (g EntryGroup) SortedMembers() []domain.TimeInterval {
	out := append([]domain.TimeInterval(nil), g.Members...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartAt.After(out[j].StartAt)
	})
	return out
}

// GroupEntries clusters one day's intervals. Input order is preserved as the
// tie-break: groups whose position keys are equal keep the relative order of
// their first members.
func GroupEntries(intervals []domain.TimeInterval, now time.Time) []EntryGroup {
	index := make(map[GroupKey]int, len(intervals))
	groups := make([]EntryGroup, 0, len(intervals))

	for _, iv := range intervals {
		key := KeyFor(iv)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, EntryGroup{
				Key:           key,
				EarliestStart: iv.StartAt,
				PositionKey:   iv.StartAt,
			})
		}
		g := &groups[i]
		g.Members = append(g.Members, iv)
		g.Total += LiveDuration(iv, now)

		if iv.StartAt.Before(g.EarliestStart) {
			g.EarliestStart = iv.StartAt
		}
		if iv.StartAt.After(g.PositionKey) {
			g.PositionKey = iv.StartAt
		}
		if iv.EndAt == nil {
			g.HasActive = true
			g.LatestEnd = nil
		} else if !g.HasActive && (g.LatestEnd == nil || iv.EndAt.After(*g.LatestEnd)) {
			end := *iv.EndAt
			g.LatestEnd = &end
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].PositionKey.After(groups[j].PositionKey)
	})
	return groups
}
