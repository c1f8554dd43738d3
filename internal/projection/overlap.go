package projection

import (
	"sort"
	"time"

	"example.com/timelog/internal/domain"
)

// overlapTolerance is the slack allowed before two closed intervals are
// flagged: ranges must intersect by strictly more than one second. Boundary
// touches and rounding slop stay silent.
const overlapTolerance = time.Second

// OverlapAnnotation marks an entry whose time range conflicts with a peer.
// PeerID references one conflicting entry, not an exhaustive list.
type OverlapAnnotation struct {
	HasWarning bool
	PeerID     string
}

// DetectOverlaps finds pairwise conflicts among one day's intervals, keyed by
// interval ID. Open intervals are exempt entirely: they are never flagged and
// never flag others. When an interval overlaps several peers, the annotation
// references the first conflicting peer in the day's chronological order,
// which keeps the result deterministic.
func DetectOverlaps(intervals []domain.TimeInterval) map[string]OverlapAnnotation {
	closed := make([]domain.TimeInterval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.EndAt != nil {
			closed = append(closed, iv)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		if !closed[i].StartAt.Equal(closed[j].StartAt) {
			return closed[i].StartAt.Before(closed[j].StartAt)
		}
		return closed[i].ID < closed[j].ID
	})

	out := make(map[string]OverlapAnnotation, len(closed))
	for i := range closed {
		for j := range closed {
			if i == j {
				continue
			}
			if overlaps(closed[i], closed[j]) {
				out[closed[i].ID] = OverlapAnnotation{HasWarning: true, PeerID: closed[j].ID}
				break
			}
		}
	}
	return out
}

// overlaps reports whether two closed intervals intersect by more than the
// tolerance. Containment satisfies the same inequality.
func overlaps(a, b domain.TimeInterval) bool {
	latestStart := a.StartAt
	if b.StartAt.After(latestStart) {
		latestStart = b.StartAt
	}
	earliestEnd := *a.EndAt
	if b.EndAt.Before(earliestEnd) {
		earliestEnd = *b.EndAt
	}
	return latestStart.Before(earliestEnd.Add(-overlapTolerance))
}
