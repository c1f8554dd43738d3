package projection

import (
	"fmt"
	"time"

	"example.com/timelog/internal/domain"
)

// LiveDuration returns the elapsed time of an interval as of now, in whole
// seconds (floor). Closed intervals ignore now. Clock skew that would yield a
// negative duration clamps to zero instead.
func LiveDuration(iv domain.TimeInterval, now time.Time) time.Duration {
	var d time.Duration
	if iv.EndAt != nil {
		d = iv.EndAt.Sub(iv.StartAt)
	} else {
		d = now.Sub(iv.StartAt)
	}
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// FormatHMS renders a duration as HH:MM:SS, floor-rounded to whole seconds.
func FormatHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
