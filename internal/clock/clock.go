// Package clock provides civil-timezone day boundaries and cancellable timers.
//
// Every timestamp the study modes and the progress aggregator compare is
// produced here. The day boundary is civil midnight in Asia/Seoul converted to
// UTC, not the host's local midnight.
package clock

import (
	"time"
)

// isoLayout matches the millisecond UTC format the remote table stores.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from firing.
	Stop() bool
}

// Clock produces timestamps and timers. Study modes receive a Clock so tests
// can drive Q-Memory timing with virtual time.
type Clock interface {
	Now() time.Time
	// NowISO returns the current instant as a millisecond UTC ISO-8601 string.
	NowISO() string
	// TodayStartISO returns civil midnight of today in Asia/Seoul as UTC ISO-8601.
	TodayStartISO() string
	// YesterdayStartISO returns civil midnight one civil day earlier.
	YesterdayStartISO() string
	// AfterFunc schedules fn to run once after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// seoul is fixed UTC+9; Korea has not observed DST since 1988, so a fixed zone
// is a safe fallback when the host has no tzdata.
func seoulLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// SystemClock is the production Clock over the wall clock.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock creates a SystemClock bound to Asia/Seoul.
func NewSystemClock() *SystemClock {
	return &SystemClock{loc: seoulLocation()}
}

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

func (c *SystemClock) NowISO() string {
	return FormatISO(time.Now())
}

func (c *SystemClock) TodayStartISO() string {
	return FormatISO(dayStart(time.Now(), c.loc, 0))
}

func (c *SystemClock) YesterdayStartISO() string {
	return FormatISO(dayStart(time.Now(), c.loc, -1))
}

func (c *SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// FormatISO renders t as a millisecond UTC ISO-8601 string.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO parses a millisecond UTC ISO-8601 string.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// dayStart returns civil midnight in loc, offset by days, as an instant.
func dayStart(now time.Time, loc *time.Location, days int) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, loc)
}
