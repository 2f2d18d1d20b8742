package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"periodbell/internal/model"
)

// ErrInvalidTime is returned for anything that is not a 24-hour "HH:MM".
var ErrInvalidTime = errors.New("period: invalid HH:MM time")

// ParseHHMM converts "HH:MM" (24h; a single-digit hour is tolerated) into
// minutes since midnight.
func ParseHHMM(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 || !digits(h) || !digits(m) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(m)
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour*60 + minute, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// span is a row's half-open interval [start, end) in minutes of the day.
type span struct {
	start int
	end   int
}

// rowSpan parses a row's bounds. Rows with malformed times or with
// start >= end are reported as unusable and take no part in matching.
func rowSpan(r model.Row) (span, bool) {
	start, err := ParseHHMM(r.Start)
	if err != nil {
		return span{}, false
	}
	end, err := ParseHHMM(r.End)
	if err != nil {
		return span{}, false
	}
	if start >= end {
		return span{}, false
	}
	return span{start: start, end: end}, true
}

// Bounds returns a row's start and end in minutes of the day, or false
// when the row is unusable.
func Bounds(r model.Row) (start, end int, ok bool) {
	sp, ok := rowSpan(r)
	return sp.start, sp.end, ok
}

// MinuteOfDay is t's wall-clock minute, seconds truncated.
func MinuteOfDay(t time.Time) int {
	return minuteOfDay(t)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// At returns the instant at minuteOfDay on now's calendar date, in now's
// location.
func At(now time.Time, minuteOfDay int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), minuteOfDay/60, minuteOfDay%60, 0, 0, now.Location())
}
