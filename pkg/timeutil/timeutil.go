// Package timeutil provides clock and day-arithmetic helpers used by the
// progression engine and the bot presenters. All times are handled in UTC.
package timeutil

import (
	"strconv"
	"sync"
	"time"
)

// Day is the fixed length of a streak day. Streaks count elapsed 24h periods,
// not calendar boundaries.
const Day = 24 * time.Hour

// Clock abstracts the current time so that streak and expiry logic can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock set to t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t.UTC()}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ElapsedDays returns floor((to - from) / 24h).
// A negative interval (clock skew between writers) counts as zero days.
func ElapsedDays(from, to time.Time) int {
	if from.IsZero() {
		return 0
	}
	elapsed := to.Sub(from)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / Day)
}

// StartOfDay returns midnight UTC of the given day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Common date/time formats.
const (
	FormatDate     = "2006-01-02"
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(FormatDate)
}

// FormatRelative returns a human-readable relative time string.
func FormatRelative(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return pluralize(int(d/time.Minute), "minute") + " ago"
	case d < Day:
		return pluralize(int(d/time.Hour), "hour") + " ago"
	default:
		return pluralize(int(d/Day), "day") + " ago"
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
