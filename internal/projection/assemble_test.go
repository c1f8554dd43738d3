package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/timelog/internal/domain"
)

const owner = "owner-1"

func ownedInterval(id, title string, tags []string, start, end time.Time) domain.TimeInterval {
	iv := taggedInterval(id, title, tags, start, end)
	iv.OwnerID = owner
	return iv
}

func TestAssembleLoneEntry(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)
	now := day.Add(12 * time.Hour)

	intervals := []domain.TimeInterval{
		ownedInterval("iv-1", "Night shift", nil, day.Add(2*time.Hour+30*time.Minute), day.Add(3*time.Hour)),
	}

	view, err := Assemble(owner, intervals, now, loc, time.Monday)
	require.NoError(t, err)
	require.Len(t, view.Days, 1)

	bucket := view.Days[0]
	require.Equal(t, DayKey("2025-10-27"), bucket.Day)
	require.Equal(t, 30*time.Minute, bucket.Total)
	require.Len(t, bucket.Entries, 1)

	entry := bucket.Entries[0]
	require.Len(t, entry.Group.Members, 1)
	require.False(t, entry.Annotation.HasWarning)
	require.False(t, entry.EndsOnLaterDay)
	require.Equal(t, 30*time.Minute, view.WeeklyTotal)
	require.Nil(t, view.Current)
}

func TestAssembleGroupsDuplicateTitleAndTags(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)
	now := day.Add(12 * time.Hour)

	intervals := []domain.TimeInterval{
		ownedInterval("a", "Meeting", []string{"work", "urgent"}, day.Add(30*time.Minute), day.Add(time.Hour)),
		ownedInterval("b", "Meeting", []string{"urgent", "work"}, day.Add(90*time.Minute), day.Add(2*time.Hour)),
	}

	view, err := Assemble(owner, intervals, now, loc, time.Monday)
	require.NoError(t, err)
	require.Len(t, view.Days, 1)
	require.Len(t, view.Days[0].Entries, 1)

	g := view.Days[0].Entries[0].Group
	require.Len(t, g.Members, 2)
	require.True(t, g.EarliestStart.Equal(day.Add(30*time.Minute)))
	require.True(t, g.LatestEnd.Equal(day.Add(2*time.Hour)))
	require.Equal(t, "01:00:00", FormatHMS(g.Total))

	members := view.GroupMembers(DayKey("2025-10-27"), g.Key)
	require.Len(t, members, 2)
	require.Equal(t, "b", members[0].ID)
	require.Equal(t, "a", members[1].ID)
}

func TestAssembleCrossMidnightEntryStaysOnStartDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Friday 20:00 to Saturday 02:30; viewed on Saturday.
	start := time.Date(2025, time.October, 24, 20, 0, 0, 0, loc)
	end := time.Date(2025, time.October, 25, 2, 30, 0, 0, loc)
	now := time.Date(2025, time.October, 25, 12, 0, 0, 0, loc)

	view, err := Assemble(owner, []domain.TimeInterval{ownedInterval("iv-1", "Deploy", nil, start, end)}, now, loc, time.Monday)
	require.NoError(t, err)

	// The entry appears once, on Friday, with the full original duration and
	// a different-day end marker.
	require.Len(t, view.Days, 1)
	bucket := view.Days[0]
	require.Equal(t, DayKey("2025-10-24"), bucket.Day)
	require.Equal(t, "06:30:00", FormatHMS(bucket.Total))
	require.True(t, bucket.Entries[0].EndsOnLaterDay)
}

func TestAssembleExcludesPriorWeekStartDays(t *testing.T) {
	loc := time.UTC
	// Monday-start week of Oct 27; an interval starting Sunday Oct 26 and
	// ending inside the week is excluded entirely.
	start := time.Date(2025, time.October, 26, 23, 0, 0, 0, loc)
	end := time.Date(2025, time.October, 27, 2, 0, 0, 0, loc)
	now := time.Date(2025, time.October, 28, 9, 0, 0, 0, loc)

	view, err := Assemble(owner, []domain.TimeInterval{ownedInterval("iv-1", "Late", nil, start, end)}, now, loc, time.Monday)
	require.NoError(t, err)
	require.Empty(t, view.Days)
	require.Equal(t, time.Duration(0), view.WeeklyTotal)
}

func TestAssembleSurfacesCurrentEntry(t *testing.T) {
	loc := time.UTC
	start := time.Date(2025, time.October, 27, 3, 0, 0, 0, loc)
	now := start.Add(35 * time.Minute)

	open := ownedInterval("open", "Focus", nil, start, time.Time{})
	open.EndAt = nil

	view, err := Assemble(owner, []domain.TimeInterval{open}, now, loc, time.Monday)
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	require.Equal(t, "open", view.Current.Interval.ID)
	require.Equal(t, 35*time.Minute, view.Current.Elapsed)

	// A later tick only moves now; the stored interval is untouched.
	view2, err := Assemble(owner, []domain.TimeInterval{open}, start.Add(time.Hour), loc, time.Monday)
	require.NoError(t, err)
	require.Equal(t, time.Hour, view2.Current.Elapsed)
	require.Nil(t, open.EndAt)
}

func TestAssembleDayBucketsDescending(t *testing.T) {
	loc := time.UTC
	monday := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)
	now := monday.AddDate(0, 0, 3).Add(18 * time.Hour)

	intervals := []domain.TimeInterval{
		ownedInterval("mon", "Work", nil, monday.Add(9*time.Hour), monday.Add(10*time.Hour)),
		ownedInterval("wed", "Work", nil, monday.AddDate(0, 0, 2).Add(9*time.Hour), monday.AddDate(0, 0, 2).Add(10*time.Hour)),
		ownedInterval("thu", "Work", nil, monday.AddDate(0, 0, 3).Add(9*time.Hour), monday.AddDate(0, 0, 3).Add(10*time.Hour)),
	}

	view, err := Assemble(owner, intervals, now, loc, time.Monday)
	require.NoError(t, err)
	require.Len(t, view.Days, 3)
	require.Equal(t, DayKey("2025-10-30"), view.Days[0].Day)
	require.Equal(t, DayKey("2025-10-29"), view.Days[1].Day)
	require.Equal(t, DayKey("2025-10-27"), view.Days[2].Day)
	require.Equal(t, 3*time.Hour, view.WeeklyTotal)
}

func TestAssembleCollapsedGroupHidesOverlapFlag(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)
	now := day.Add(12 * time.Hour)

	intervals := []domain.TimeInterval{
		// Two "Standup" members, the second overlapping the unrelated entry.
		ownedInterval("s1", "Standup", nil, day.Add(1*time.Hour), day.Add(2*time.Hour)),
		ownedInterval("s2", "Standup", nil, day.Add(3*time.Hour), day.Add(4*time.Hour)),
		ownedInterval("x", "Review", nil, day.Add(3*time.Hour+30*time.Minute), day.Add(5*time.Hour)),
	}

	view, err := Assemble(owner, intervals, now, loc, time.Monday)
	require.NoError(t, err)
	require.Len(t, view.Days, 1)

	var standup, review *Entry
	for i := range view.Days[0].Entries {
		entry := &view.Days[0].Entries[i]
		switch entry.Group.Key.Title {
		case "Standup":
			standup = entry
		case "Review":
			review = entry
		}
	}
	require.NotNil(t, standup)
	require.NotNil(t, review)

	// The collapsed group is not flagged; its member keeps the annotation
	// for the expanded view. The plain entry is flagged directly.
	require.False(t, standup.Annotation.HasWarning)
	require.True(t, standup.MemberAnnotations["s2"].HasWarning)
	require.Equal(t, "x", standup.MemberAnnotations["s2"].PeerID)
	require.True(t, review.Annotation.HasWarning)
	require.Equal(t, "s2", review.Annotation.PeerID)
}

func TestAssembleEmptyOwnerYieldsEmptyView(t *testing.T) {
	now := time.Date(2025, time.October, 27, 12, 0, 0, 0, time.UTC)

	view, err := Assemble(owner, nil, now, time.UTC, time.Monday)
	require.NoError(t, err)
	require.Empty(t, view.Days)
	require.Nil(t, view.Current)
	require.Equal(t, time.Duration(0), view.WeeklyTotal)
	require.Equal(t, DayKey("2025-10-27"), view.Week.Start)
}

func TestAssembleFiltersOtherOwners(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)
	now := day.Add(12 * time.Hour)

	foreign := taggedInterval("other", "Work", nil, day.Add(time.Hour), day.Add(2*time.Hour))
	foreign.OwnerID = "owner-2"

	view, err := Assemble(owner, []domain.TimeInterval{foreign}, now, loc, time.Monday)
	require.NoError(t, err)
	require.Empty(t, view.Days)
}

func TestAssembleRejectsInvalidInterval(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)

	bad := ownedInterval("bad", "Broken", nil, day.Add(2*time.Hour), day.Add(time.Hour))
	_, err := Assemble(owner, []domain.TimeInterval{bad}, day.Add(12*time.Hour), loc, time.Monday)
	require.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestAssembleIsIdempotent(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	day := time.Date(2025, time.October, 27, 0, 0, 0, 0, loc)
	now := day.Add(14 * time.Hour)

	open := ownedInterval("open", "Focus", []string{"deep"}, day.Add(13*time.Hour), time.Time{})
	open.EndAt = nil
	intervals := []domain.TimeInterval{
		ownedInterval("a", "Meeting", []string{"work", "urgent"}, day.Add(9*time.Hour), day.Add(10*time.Hour)),
		ownedInterval("b", "Meeting", []string{"urgent", "work"}, day.Add(11*time.Hour), day.Add(12*time.Hour)),
		ownedInterval("c", "Review", nil, day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour+30*time.Minute)),
		open,
	}

	first, err := Assemble(owner, intervals, now, loc, time.Monday)
	require.NoError(t, err)
	second, err := Assemble(owner, intervals, now, loc, time.Monday)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDailyTotalsUseSplitSums(t *testing.T) {
	loc := time.UTC
	// 23:00 to 01:00: one hour minus the 1 ms cut on the first day, one
	// hour on the second.
	start := time.Date(2025, time.October, 24, 23, 0, 0, 0, loc)
	end := time.Date(2025, time.October, 25, 1, 0, 0, 0, loc)
	now := end.Add(time.Hour)

	totals, err := DailyTotals(owner, []domain.TimeInterval{ownedInterval("iv-1", "Night", nil, start, end)}, now, loc)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	require.Equal(t, time.Hour-time.Millisecond, totals["2025-10-24"])
	require.Equal(t, time.Hour, totals["2025-10-25"])
}
