// Package calendar answers "is this calendar day a working day?" and
// integrates elapsed working seconds between two timestamps. Working time
// is the full 24h span of Monday-Friday days that are not national
// holidays (calendar "Model A").
package calendar

import (
	"sync"
	"time"
)

// Date is a calendar day, independent of clock time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day t falls on.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// HolidayProvider yields the national holidays of a region for a year.
// Implementations must be deterministic pure functions of the year.
type HolidayProvider interface {
	HolidaysForYear(year int) map[Date]struct{}
	Description() string
}

// Calendar caches per-year holiday sets from its provider. The cache is
// instance-owned and never invalidated; racing fillers would compute
// identical sets, the mutex just keeps the map write clean.
type Calendar struct {
	provider HolidayProvider

	mu    sync.Mutex
	cache map[int]map[Date]struct{}
}

func New(p HolidayProvider) *Calendar {
	return &Calendar{provider: p, cache: map[int]map[Date]struct{}{}}
}

// Mode describes the working-time model for evidence records.
func (c *Calendar) Mode() string {
	return "Model A (24h Mon-Fri) excluding weekends + " + c.provider.Description()
}

func (c *Calendar) holidays(year int) map[Date]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hs, ok := c.cache[year]; ok {
		return hs
	}
	hs := c.provider.HolidaysForYear(year)
	c.cache[year] = hs
	return hs
}

// IsWorkingDay reports whether d is Monday-Friday and not a holiday.
func (c *Calendar) IsWorkingDay(d Date) bool {
	wd := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays(d.Year)[d]
	return !holiday
}

// WorkingSeconds returns the seconds of overlap between [start, end) and
// the union of full-day [00:00, 24:00) windows of working days. It walks
// day by day, so partial first/last days need no special casing. Returns
// 0 when end <= start.
func (c *Calendar) WorkingSeconds(start, end time.Time) int64 {
	if !end.After(start) {
		return 0
	}

	var total int64
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for dayStart.Before(end) {
		dayEnd := dayStart.AddDate(0, 0, 1)

		segStart := start
		if dayStart.After(segStart) {
			segStart = dayStart
		}
		segEnd := end
		if dayEnd.Before(segEnd) {
			segEnd = dayEnd
		}

		if segEnd.After(segStart) && c.IsWorkingDay(DateOf(dayStart)) {
			total += int64(segEnd.Sub(segStart) / time.Second)
		}
		dayStart = dayEnd
	}
	return total
}
