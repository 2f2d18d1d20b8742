// Package period resolves "now" against a day's timetable rows: which row
// is active, how long until the next break and how long until the day
// ends. Everything here is a pure function of (now, view); nothing is
// cached between calls, so callers may invoke it at any cadence.
package period

import (
	"time"

	"periodbell/internal/model"
)

// Today is the result of ResolveToday.
type Today struct {
	// Day is now's weekday, whether or not the view covers it.
	Day model.DayOfWeek
	// Applicable is false when Day is not one of the view's day headers.
	Applicable bool
	// PeriodID and Index identify the active row; Index is -1 when no row
	// contains now.
	PeriodID string
	Index    int
}

// BreakCountdown is the time left until the next break starts.
type BreakCountdown struct {
	Minutes int    `json:"minutes"`
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// Remaining is the time left until the last row of the day ends.
type Remaining struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// State is the derived temporal snapshot shown to the UI. A nil pointer
// or empty string means "none".
type State struct {
	Day        model.DayOfWeek `json:"day,omitempty"`
	PeriodID   string          `json:"period_id,omitempty"`
	NextBreak  *BreakCountdown `json:"next_break"`
	EndOfDay   *Remaining      `json:"end_of_day"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Resolver answers temporal questions about a DayView.
type Resolver struct {
	breaks *Classifier
}

// NewResolver returns a Resolver using c for break detection. A nil c
// means NewClassifier().
func NewResolver(c *Classifier) *Resolver {
	if c == nil {
		c = NewClassifier()
	}
	return &Resolver{breaks: c}
}

// Classifier exposes the classifier the resolver was built with.
func (r *Resolver) Classifier() *Classifier {
	return r.breaks
}

// Applicable reports whether now's weekday is covered by v.
func (r *Resolver) Applicable(now time.Time, v *model.DayView) bool {
	return v.HasDay(model.DayOf(now))
}

// ResolveToday finds the first row whose [start, end) contains now's
// minute of the day.
func (r *Resolver) ResolveToday(now time.Time, v *model.DayView) Today {
	out := Today{Day: model.DayOf(now), Index: -1}
	if !v.HasDay(out.Day) {
		return out
	}
	out.Applicable = true

	mins := minuteOfDay(now)
	for i, row := range v.Rows {
		sp, ok := rowSpan(row)
		if !ok {
			continue
		}
		if mins >= sp.start && mins < sp.end {
			out.PeriodID = row.PeriodID
			out.Index = i
			break
		}
	}
	return out
}

// ActiveRow is the second-granularity lookup: the first row whose
// [start*60, end*60) contains now's second of the day. It ignores day
// applicability; callers that care check Applicable first.
func (r *Resolver) ActiveRow(now time.Time, v *model.DayView) (int, bool) {
	if v == nil {
		return -1, false
	}
	secs := secondOfDay(now)
	for i, row := range v.Rows {
		sp, ok := rowSpan(row)
		if !ok {
			continue
		}
		if secs >= sp.start*60 && secs < sp.end*60 {
			return i, true
		}
	}
	return -1, false
}

// NextBreak counts down to the first break strictly after the active row.
// When the active row is itself a break, the break after it is reported,
// not the time left in the current one.
func (r *Resolver) NextBreak(now time.Time, v *model.DayView) (BreakCountdown, bool) {
	if !r.Applicable(now, v) {
		return BreakCountdown{}, false
	}
	idx, ok := r.ActiveRow(now, v)
	if !ok {
		return BreakCountdown{}, false
	}

	secs := secondOfDay(now)
	for _, row := range v.Rows[idx+1:] {
		if !r.breaks.IsBreak(row.PeriodID, row.Title) {
			continue
		}
		sp, ok := rowSpan(row)
		if !ok {
			continue
		}
		total := sp.start*60 - secs
		if total < 0 {
			// Out-of-order input; keep looking.
			continue
		}
		return BreakCountdown{
			Minutes: total / 60,
			Seconds: total % 60,
			Label:   row.Title,
		}, true
	}
	return BreakCountdown{}, false
}

// EndOfDay counts down to the end of the last usable row. It reports none
// for an empty view or once that end has been reached.
func (r *Resolver) EndOfDay(now time.Time, v *model.DayView) (Remaining, bool) {
	if !r.Applicable(now, v) {
		return Remaining{}, false
	}
	end, ok := lastEnd(v)
	if !ok {
		return Remaining{}, false
	}

	secs := secondOfDay(now)
	if secs >= end*60 {
		return Remaining{}, false
	}
	total := end*60 - secs
	return Remaining{
		Hours:   total / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}, true
}

// Compute derives a complete State for now. Either every field is freshly
// derived or it is left at "none"; nothing carries over from a previous
// call.
func (r *Resolver) Compute(now time.Time, v *model.DayView) State {
	st := State{ComputedAt: now}
	today := r.ResolveToday(now, v)
	if !today.Applicable {
		return st
	}
	st.Day = today.Day
	st.PeriodID = today.PeriodID

	if nb, ok := r.NextBreak(now, v); ok {
		st.NextBreak = &nb
	}
	if eod, ok := r.EndOfDay(now, v); ok {
		st.EndOfDay = &eod
	}
	return st
}

func lastEnd(v *model.DayView) (int, bool) {
	for i := len(v.Rows) - 1; i >= 0; i-- {
		if sp, ok := rowSpan(v.Rows[i]); ok {
			return sp.end, true
		}
	}
	return 0, false
}
