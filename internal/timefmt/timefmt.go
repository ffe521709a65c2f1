// Package timefmt owns the client-facing timestamp layout and the
// human-readable duration rendering.
//
// Timestamps are naive local wall-clock values. They are parsed without a
// time zone (into a fixed DST-free frame), so calendar-day arithmetic is
// never skewed by a DST transition; zone conversion is out of scope.
package timefmt

import (
	"fmt"
	"time"
)

// Layout is the client input/output timestamp format.
const Layout = "02/01/2006 - 15:04"

// Parse parses a timestamp in Layout form.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Format renders t in Layout form.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// FormatPtr renders t, or nil when t is nil.
func FormatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(Layout)
	return &s
}

// CeilToMinute rounds seconds up to the next whole minute boundary.
// Zero or negative input collapses to 0.
func CeilToMinute(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return ((seconds + 59) / 60) * 60
}

// DHM renders a second count as "DD d HH h MM m", rounding seconds up to
// whole minutes first. Zero or negative input renders "00 d 00 h 00 m".
func DHM(seconds int64) string {
	minutes := CeilToMinute(seconds) / 60

	days := minutes / (24 * 60)
	minutes -= days * 24 * 60
	hours := minutes / 60
	minutes -= hours * 60

	return fmt.Sprintf("%02d d %02d h %02d m", days, hours, minutes)
}
