package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveWeekDefaultMonday(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Thursday.
	now := time.Date(2025, time.October, 30, 15, 0, 0, 0, loc)
	week := ResolveWeek(now, loc, time.Monday)

	require.Equal(t, DayKey("2025-10-27"), week.Start)
	require.Equal(t, DayKey("2025-11-02"), week.End)
}

func TestResolveWeekNowOnStartDay(t *testing.T) {
	loc := time.UTC
	// A Sunday, with Sunday start: the week starts today.
	now := time.Date(2025, time.October, 26, 0, 0, 1, 0, loc)
	week := ResolveWeek(now, loc, time.Sunday)

	require.Equal(t, DayKey("2025-10-26"), week.Start)
	require.Equal(t, DayKey("2025-11-01"), week.End)
}

func TestResolveWeekSevenDayInvariant(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)

	base := time.Date(2025, time.January, 1, 12, 0, 0, 0, loc)
	for day := 0; day < 14; day++ {
		now := base.AddDate(0, 0, day)
		for sow := time.Sunday; sow <= time.Saturday; sow++ {
			week := ResolveWeek(now, loc, sow)

			start, err := week.Start.Time(loc)
			require.NoError(t, err)
			end, err := week.End.Time(loc)
			require.NoError(t, err)

			require.Equal(t, sow, start.Weekday())
			require.Equal(t, start.AddDate(0, 0, 6), end)
			require.True(t, week.Contains(NewDayKey(now, loc)))
		}
	}
}

func TestWeekContainsIsInclusive(t *testing.T) {
	week := WeekRange{Start: "2025-10-27", End: "2025-11-02"}

	require.True(t, week.Contains("2025-10-27"))
	require.True(t, week.Contains("2025-11-02"))
	require.True(t, week.Contains("2025-10-30"))
	require.False(t, week.Contains("2025-10-26"))
	require.False(t, week.Contains("2025-11-03"))
}

func TestTimezoneShiftsWeekMembership(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// Late Sunday evening UTC is already Monday in Tokyo but still Sunday
	// afternoon in Los Angeles.
	now := time.Date(2025, time.October, 26, 22, 0, 0, 0, time.UTC)

	require.Equal(t, DayKey("2025-10-27"), ResolveWeek(now, tokyo, time.Monday).Start)
	require.Equal(t, DayKey("2025-10-20"), ResolveWeek(now, la, time.Monday).Start)
}

func TestParseWeekday(t *testing.T) {
	wd, err := ParseWeekday("Sunday")
	require.NoError(t, err)
	require.Equal(t, time.Sunday, wd)

	wd, err = ParseWeekday(" monday ")
	require.NoError(t, err)
	require.Equal(t, time.Monday, wd)

	_, err = ParseWeekday("someday")
	require.Error(t, err)
}

func TestParseTimezoneFallsBackToUTC(t *testing.T) {
	require.Equal(t, time.UTC, ParseTimezone("Not/AZone"))
	loc := ParseTimezone("Europe/Berlin")
	require.Equal(t, "Europe/Berlin", loc.String())
}
