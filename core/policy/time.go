package policy

import "time"

// LowHours reports whether now falls outside the weekday peak window.
// Weekends are off-peak all day.
func LowHours(now time.Time, th Thresholds) bool {
	wd := now.Weekday()
	weekday := wd >= time.Monday && wd <= time.Friday
	h := now.Hour()
	peak := weekday && h >= th.PeakStartHour && h < th.PeakEndHour
	return !peak
}
