package model

import (
	"testing"
	"time"
)

func TestDayOf(t *testing.T) {
	// 2025-09-07 is a Sunday.
	sun := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	for i, want := range DayOrder {
		got := DayOf(sun.AddDate(0, 0, i))
		if got != want {
			t.Errorf("day %d: got %s, want %s", i, got, want)
		}
	}
}

func TestParseDayOfWeek(t *testing.T) {
	d, err := ParseDayOfWeek(" Monday ")
	if err != nil || d != Monday {
		t.Fatalf("ParseDayOfWeek: got %q, %v", d, err)
	}
	if _, err := ParseDayOfWeek("funday"); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

func TestOnlyDay(t *testing.T) {
	v := &DayView{
		GroupID:    "10a",
		DayHeaders: []DayOfWeek{Sunday, Monday},
		Rows: []Row{
			{PeriodID: "P1", Title: "1", Start: "08:00", End: "08:45", Cells: map[DayOfWeek]*Cell{
				Sunday: {Subject: "Math"},
				Monday: {Subject: "History"},
			}},
			{PeriodID: "B1", Title: "Break", Start: "08:45", End: "09:00"},
		},
	}

	got, ok := v.OnlyDay(Monday)
	if !ok {
		t.Fatal("expected monday to be available")
	}
	if len(got.DayHeaders) != 1 || got.DayHeaders[0] != Monday {
		t.Errorf("headers = %v", got.DayHeaders)
	}
	if c := got.Rows[0].Cells[Monday]; c == nil || c.Subject != "History" {
		t.Errorf("monday cell = %+v", c)
	}
	if _, ok := got.Rows[0].Cells[Sunday]; ok {
		t.Error("sunday cell should be filtered out")
	}
	if got.Rows[1].Cells != nil {
		t.Errorf("break row should have no cells, got %v", got.Rows[1].Cells)
	}
	// Source view untouched.
	if len(v.Rows[0].Cells) != 2 {
		t.Error("OnlyDay mutated the source view")
	}

	if _, ok := v.OnlyDay(Friday); ok {
		t.Error("friday is not a header; expected no view")
	}
}

func TestHasDayNilView(t *testing.T) {
	var v *DayView
	if v.HasDay(Monday) {
		t.Error("nil view has no days")
	}
}
