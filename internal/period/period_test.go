package period

import (
	"errors"
	"testing"
	"time"

	"periodbell/internal/model"
)

// 2025-09-08 is a Monday.
func monday(h, m, s int) time.Time {
	return time.Date(2025, 9, 8, h, m, s, 0, time.Local)
}

func scenarioView() *model.DayView {
	return &model.DayView{
		GroupID:    "10a",
		DayHeaders: []model.DayOfWeek{model.Sunday, model.Monday, model.Tuesday},
		Rows: []model.Row{
			{PeriodID: "P1", Title: "Math", Start: "08:00", End: "08:45"},
			{PeriodID: "B1", Title: "Break", Start: "08:45", End: "09:00"},
			{PeriodID: "P2", Title: "History", Start: "09:00", End: "09:45"},
		},
	}
}

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "08:45", want: 8*60 + 45},
		{in: "8:05", want: 8*60 + 5},
		{in: "23:59", want: 23*60 + 59},
		{in: " 09:00 ", want: 9 * 60},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseHHMM(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTime) {
				t.Errorf("ParseHHMM(%q): expected ErrInvalidTime, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseHHMM(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		id, title string
		want      bool
	}{
		{"B1", "Recess", true},
		{"b12", "", true},
		{"B", "Lunch", false},
		{"B1a", "Lunch", false},
		{"P3", "Long BREAK", true},
		{"P3", "הפסקה גדולה", true},
		{"P3", "Math", false},
		{"XB1", "Art", false},
	}
	for _, tt := range tests {
		if got := c.IsBreak(tt.id, tt.title); got != tt.want {
			t.Errorf("IsBreak(%q, %q) = %v, want %v", tt.id, tt.title, got, tt.want)
		}
	}

	custom := NewClassifier("Pause", " ")
	if !custom.IsBreak("P1", "Grosse PAUSE") {
		t.Error("custom keyword should match case-insensitively")
	}
	if custom.IsBreak("P1", "Break") {
		t.Error("default keywords should not apply when custom ones are given")
	}
	if custom.Kind(model.Row{PeriodID: "B2"}) != KindBreak {
		t.Error("id rule applies regardless of keywords")
	}
}

func TestRowIntervalsAreHalfOpen(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()

	tests := []struct {
		now  time.Time
		want string
	}{
		{monday(7, 59, 59), ""},
		{monday(8, 0, 0), "P1"},
		{monday(8, 44, 59), "P1"},
		{monday(8, 45, 0), "B1"},
		{monday(9, 0, 0), "P2"},
		{monday(9, 44, 59), "P2"},
		{monday(9, 45, 0), ""},
	}
	for _, tt := range tests {
		got := r.ResolveToday(tt.now, v)
		if got.PeriodID != tt.want {
			t.Errorf("ResolveToday(%s) = %q, want %q", tt.now.Format("15:04:05"), got.PeriodID, tt.want)
		}
		idx, ok := r.ActiveRow(tt.now, v)
		if tt.want == "" {
			if ok {
				t.Errorf("ActiveRow(%s) = %d, want none", tt.now.Format("15:04:05"), idx)
			}
			continue
		}
		if !ok || v.Rows[idx].PeriodID != tt.want {
			t.Errorf("ActiveRow(%s) = %d,%v; want %s", tt.now.Format("15:04:05"), idx, ok, tt.want)
		}
	}
}

func TestScenarioA_InLesson(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	now := monday(8, 10, 0)

	today := r.ResolveToday(now, v)
	if !today.Applicable || today.PeriodID != "P1" || today.Index != 0 {
		t.Fatalf("ResolveToday = %+v", today)
	}

	nb, ok := r.NextBreak(now, v)
	if !ok || nb != (BreakCountdown{Minutes: 35, Seconds: 0, Label: "Break"}) {
		t.Errorf("NextBreak = %+v, %v", nb, ok)
	}

	eod, ok := r.EndOfDay(now, v)
	if !ok || eod != (Remaining{Hours: 1, Minutes: 35, Seconds: 0}) {
		t.Errorf("EndOfDay = %+v, %v", eod, ok)
	}
}

func TestScenarioA_SecondsCarry(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	now := monday(8, 10, 20)

	nb, ok := r.NextBreak(now, v)
	if !ok || nb.Minutes != 34 || nb.Seconds != 40 {
		t.Errorf("NextBreak = %+v, %v; want 34m40s", nb, ok)
	}
	eod, ok := r.EndOfDay(now, v)
	if !ok || eod != (Remaining{Hours: 1, Minutes: 34, Seconds: 40}) {
		t.Errorf("EndOfDay = %+v, %v", eod, ok)
	}
}

func TestScenarioB_InsideBreak(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	now := monday(8, 50, 0)

	today := r.ResolveToday(now, v)
	if today.PeriodID != "B1" {
		t.Fatalf("active = %q, want B1", today.PeriodID)
	}
	if r.Classifier().Kind(v.Rows[today.Index]) != KindBreak {
		t.Error("B1 should classify as break")
	}
	if nb, ok := r.NextBreak(now, v); ok {
		t.Errorf("NextBreak = %+v, want none", nb)
	}
}

func TestNextBreakSkipsCurrentBreak(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	v.Rows = append(v.Rows,
		model.Row{PeriodID: "B2", Title: "Lunch break", Start: "09:45", End: "10:15"},
	)
	now := monday(8, 50, 0)

	nb, ok := r.NextBreak(now, v)
	if !ok || nb.Label != "Lunch break" || nb.Minutes != 55 {
		t.Errorf("NextBreak = %+v, %v; want Lunch break in 55m", nb, ok)
	}
}

func TestScenarioC_AfterDayEnded(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	now := monday(10, 0, 0)

	if today := r.ResolveToday(now, v); today.PeriodID != "" || today.Index != -1 {
		t.Errorf("ResolveToday = %+v, want no row", today)
	}
	if eod, ok := r.EndOfDay(now, v); ok {
		t.Errorf("EndOfDay = %+v, want none", eod)
	}
	if _, ok := r.EndOfDay(monday(9, 45, 0), v); ok {
		t.Error("EndOfDay at exactly the last end must be none")
	}
	if eod, ok := r.EndOfDay(monday(9, 44, 59), v); !ok || eod != (Remaining{Seconds: 1}) {
		t.Errorf("EndOfDay one second before end = %+v, %v", eod, ok)
	}
}

func TestScenarioD_DayNotApplicable(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	v.DayHeaders = []model.DayOfWeek{model.Sunday, model.Tuesday}
	now := monday(8, 10, 0)

	today := r.ResolveToday(now, v)
	if today.Applicable || today.PeriodID != "" {
		t.Errorf("ResolveToday = %+v, want not applicable", today)
	}
	if _, ok := r.NextBreak(now, v); ok {
		t.Error("NextBreak should be none on a non-applicable day")
	}
	if _, ok := r.EndOfDay(now, v); ok {
		t.Error("EndOfDay should be none on a non-applicable day")
	}

	st := r.Compute(now, v)
	if st.Day != "" || st.PeriodID != "" || st.NextBreak != nil || st.EndOfDay != nil {
		t.Errorf("Compute = %+v, want empty state", st)
	}
}

func TestEndOfDayEmptyView(t *testing.T) {
	r := NewResolver(nil)
	v := &model.DayView{DayHeaders: []model.DayOfWeek{model.Monday}}
	if _, ok := r.EndOfDay(monday(8, 0, 0), v); ok {
		t.Error("EndOfDay should be none without rows")
	}
}

func TestNextBreakInGapIsNone(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	v.Rows[0].End = "08:30" // gap 08:30-08:45
	if nb, ok := r.NextBreak(monday(8, 35, 0), v); ok {
		t.Errorf("NextBreak in a gap = %+v, want none", nb)
	}
}

func TestNextBreakNeverLooksBackwards(t *testing.T) {
	r := NewResolver(nil)
	v := scenarioView()
	// Now in P2, the only break is before it.
	if nb, ok := r.NextBreak(monday(9, 10, 0), v); ok {
		t.Errorf("NextBreak = %+v, want none", nb)
	}
}

func TestMalformedRowsAreExcluded(t *testing.T) {
	r := NewResolver(nil)
	v := &model.DayView{
		DayHeaders: []model.DayOfWeek{model.Monday},
		Rows: []model.Row{
			{PeriodID: "P1", Title: "Math", Start: "8h00", End: "08:45"},
			{PeriodID: "B1", Title: "Break", Start: "08:45", End: "09:00"},
			{PeriodID: "P2", Title: "Art", Start: "09:30", End: "09:00"},
			{PeriodID: "P3", Title: "Gym", Start: "09:00", End: "bad"},
		},
	}

	if today := r.ResolveToday(monday(8, 10, 0), v); today.PeriodID != "" {
		t.Errorf("malformed row matched: %+v", today)
	}
	if today := r.ResolveToday(monday(8, 50, 0), v); today.PeriodID != "B1" {
		t.Errorf("valid row not matched: %+v", today)
	}
	// Last usable end is B1's 09:00.
	eod, ok := r.EndOfDay(monday(8, 50, 0), v)
	if !ok || eod != (Remaining{Minutes: 10}) {
		t.Errorf("EndOfDay = %+v, %v", eod, ok)
	}
}

func TestComputeFillsState(t *testing.T) {
	r := NewResolver(nil)
	now := monday(8, 10, 0)
	st := r.Compute(now, scenarioView())

	if st.Day != model.Monday || st.PeriodID != "P1" {
		t.Errorf("state = %+v", st)
	}
	if st.NextBreak == nil || st.NextBreak.Minutes != 35 {
		t.Errorf("next break = %+v", st.NextBreak)
	}
	if st.EndOfDay == nil || st.EndOfDay.Hours != 1 {
		t.Errorf("end of day = %+v", st.EndOfDay)
	}
	if !st.ComputedAt.Equal(now) {
		t.Errorf("computed at = %s", st.ComputedAt)
	}
}

func TestComputeNilView(t *testing.T) {
	r := NewResolver(nil)
	st := r.Compute(monday(8, 0, 0), nil)
	if st.Day != "" || st.NextBreak != nil || st.EndOfDay != nil {
		t.Errorf("nil view state = %+v", st)
	}
}

func TestAt(t *testing.T) {
	now := monday(7, 0, 0)
	got := At(now, 8*60+45)
	want := monday(8, 45, 0)
	if !got.Equal(want) {
		t.Errorf("At = %s, want %s", got, want)
	}
}
