package monitor

import (
	"fmt"
	"time"
)

// FormatDelay renders a duration as whole minutes and seconds, "5m 1s".
func FormatDelay(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// FormatLocal renders a timestamp in the configured display timezone,
// falling back to UTC when the zone cannot be loaded.
func FormatLocal(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}
