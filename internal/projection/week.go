package projection

import (
	"fmt"
	"strings"
	"time"
)

// WeekRange is a 7-day inclusive date range in the reference timezone.
type WeekRange struct {
	Start DayKey
	End   DayKey
}

// ResolveWeek computes the week containing now: the local date is walked
// backward (0-6 days) to the most recent date whose weekday equals
// startOfWeek, and the range spans that date plus six days.
func ResolveWeek(now time.Time, loc *time.Location, startOfWeek time.Weekday) WeekRange {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	back := (int(today.Weekday()) - int(startOfWeek) + 7) % 7
	start := today.AddDate(0, 0, -back)
	end := start.AddDate(0, 0, 6)

	return WeekRange{
		Start: NewDayKey(start, loc),
		End:   NewDayKey(end, loc),
	}
}

// Contains reports whether the date falls inside the week, inclusive on both
// ends. DayKey's format makes this a plain string comparison.
func (w WeekRange) Contains(day DayKey) bool {
	return day >= w.Start && day <= w.End
}

// ParseWeekday maps a weekday name ("monday", "Sunday", ...) to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Monday, fmt.Errorf("unknown weekday: %q", name)
}

// ParseTimezone loads an IANA timezone, falling back to UTC on failure.
func ParseTimezone(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
