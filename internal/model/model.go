package model

import (
	"fmt"
	"strings"
	"time"
)

// DayOfWeek is a lowercase English weekday name as used in timetable
// files and day headers.
type DayOfWeek string

const (
	Sunday    DayOfWeek = "sunday"
	Monday    DayOfWeek = "monday"
	Tuesday   DayOfWeek = "tuesday"
	Wednesday DayOfWeek = "wednesday"
	Thursday  DayOfWeek = "thursday"
	Friday    DayOfWeek = "friday"
	Saturday  DayOfWeek = "saturday"
)

// DayOrder is indexed by time.Weekday (0=Sunday).
var DayOrder = [7]DayOfWeek{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// DayOf returns the weekday of t in t's own location.
func DayOf(t time.Time) DayOfWeek {
	return DayOrder[t.Weekday()]
}

// ParseDayOfWeek accepts a weekday name in any case.
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DayOrder {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("model: unknown weekday %q", s)
}

// Cell is the per-day content of a timetable slot. It is display data
// only; nothing in the resolver reads it.
type Cell struct {
	Subject string `yaml:"subject" json:"subject"`
	Teacher string `yaml:"teacher,omitempty" json:"teacher,omitempty"`
	Room    string `yaml:"room,omitempty" json:"room,omitempty"`
	Color   string `yaml:"color,omitempty" json:"color,omitempty"`
}

// Row is one lesson or break slot. Start and End are local wall-clock
// "HH:MM" strings. Whether a row is a break is derived from PeriodID and
// Title by period.Classifier and is deliberately not stored here.
type Row struct {
	PeriodID string `json:"period_id"`
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`

	Cells map[DayOfWeek]*Cell `json:"cells,omitempty"`
}

// DayView is the ordered set of rows for one group plus the weekdays the
// timetable covers. Rows are expected sorted by Start and non-overlapping.
type DayView struct {
	GroupID    string      `json:"group_id"`
	DayHeaders []DayOfWeek `json:"day_headers"`
	Rows       []Row       `json:"rows"`
}

// HasDay reports whether d is one of the view's day headers.
func (v *DayView) HasDay(d DayOfWeek) bool {
	if v == nil || d == "" {
		return false
	}
	for _, h := range v.DayHeaders {
		if h == d {
			return true
		}
	}
	return false
}

// OnlyDay returns a copy of v restricted to day d: DayHeaders becomes
// [d] and every row keeps only d's cell. It returns false when d is not a
// day header, in which case there is nothing to show.
func (v *DayView) OnlyDay(d DayOfWeek) (*DayView, bool) {
	if !v.HasDay(d) {
		return nil, false
	}
	out := &DayView{
		GroupID:    v.GroupID,
		DayHeaders: []DayOfWeek{d},
		Rows:       make([]Row, 0, len(v.Rows)),
	}
	for _, r := range v.Rows {
		filtered := r
		filtered.Cells = nil
		if c, ok := r.Cells[d]; ok && c != nil {
			filtered.Cells = map[DayOfWeek]*Cell{d: c}
		}
		out.Rows = append(out.Rows, filtered)
	}
	return out, true
}
