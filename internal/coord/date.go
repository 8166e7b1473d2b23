package coord

import (
	"fmt"
	"strings"
	"time"
)

const (
	layoutDay    = "20060102"
	layoutHour   = "2006010215"
	layoutMinute = "200601021504"
)

// ParseDate reads a start date written as YYYYMMDD, YYYYMMDDHH or
// YYYYMMDDHHMM. The result is always UTC.
func ParseDate(s string) (time.Time, error) {
	var layout string
	switch len(s) {
	case len(layoutDay):
		layout = layoutDay
	case len(layoutHour):
		layout = layoutHour
	case len(layoutMinute):
		layout = layoutMinute
	}
	if layout == "" || strings.ContainsFunc(s, notDigit) {
		return time.Time{}, fmt.Errorf("invalid start date %q: expected YYYYMMDD[HH[MM]]", s)
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q: %w", s, err)
	}
	return t, nil
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

// FormatDate renders d with the experiment date format: "" for days, "H" to
// include the hour and "M" to include hour and minute.
func FormatDate(d time.Time, format string) string {
	switch format {
	case "H":
		return d.Format(layoutHour)
	case "M":
		return d.Format(layoutMinute)
	default:
		return d.Format(layoutDay)
	}
}

// DateFormatFor picks the shortest format that keeps every date distinct.
func DateFormatFor(dates []time.Time) string {
	format := ""
	for _, d := range dates {
		if d.Minute() > 0 {
			return "M"
		}
		if d.Hour() > 0 {
			format = "H"
		}
	}
	return format
}
