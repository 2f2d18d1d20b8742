package timetable

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "periodbell/internal/log"
	"periodbell/internal/model"
)

// fileTimetable is the on-disk YAML shape:
//
//	groups:
//	  - id: 10a
//	    name: Grade 10A
//	    days: [sunday, monday, tuesday, wednesday, thursday]
//	    periods:
//	      - {id: P1, title: "1", start: "08:00", end: "08:45"}
//	      - {id: B1, title: Break, start: "08:45", end: "09:00"}
//	    cells:
//	      monday:
//	        P1: {subject: Math, teacher: Cohen, color: "#ffd54f"}
type fileTimetable struct {
	Groups []fileGroup `yaml:"groups"`
}

type fileGroup struct {
	ID      string                            `yaml:"id"`
	Name    string                            `yaml:"name"`
	Days    []string                          `yaml:"days"`
	Periods []filePeriod                      `yaml:"periods"`
	Cells   map[string]map[string]*model.Cell `yaml:"cells"`
}

type filePeriod struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// FileProvider reads a YAML timetable. The file is re-read on every call
// so edits are picked up on the next reload.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) TodayView(_ context.Context, groupID string) (*model.DayView, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("timetable: read %s: %w", p.path, err)
	}
	return parseFileTimetable(data, groupID)
}

func parseFileTimetable(data []byte, groupID string) (*model.DayView, error) {
	var tt fileTimetable
	if err := yaml.Unmarshal(data, &tt); err != nil {
		return nil, fmt.Errorf("timetable: parse yaml: %w", err)
	}

	for _, g := range tt.Groups {
		if !strings.EqualFold(strings.TrimSpace(g.ID), groupID) {
			continue
		}
		return g.view()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
}

func (g fileGroup) view() (*model.DayView, error) {
	v := &model.DayView{
		GroupID:    g.ID,
		DayHeaders: make([]model.DayOfWeek, 0, len(g.Days)),
		Rows:       make([]model.Row, 0, len(g.Periods)),
	}
	for _, d := range g.Days {
		day, err := model.ParseDayOfWeek(d)
		if err != nil {
			return nil, fmt.Errorf("timetable: group %s: %w", g.ID, err)
		}
		v.DayHeaders = append(v.DayHeaders, day)
	}

	cells := make(map[string]map[model.DayOfWeek]*model.Cell)
	for d, byPeriod := range g.Cells {
		day, err := model.ParseDayOfWeek(d)
		if err != nil {
			appLog.Warn("timetable: ignoring cells for unknown day", "group", g.ID, "day", d)
			continue
		}
		for pid, c := range byPeriod {
			if cells[pid] == nil {
				cells[pid] = make(map[model.DayOfWeek]*model.Cell)
			}
			cells[pid][day] = c
		}
	}

	for _, p := range g.Periods {
		v.Rows = append(v.Rows, model.Row{
			PeriodID: p.ID,
			Title:    p.Title,
			Start:    p.Start,
			End:      p.End,
			Cells:    cells[p.ID],
		})
	}
	sortRows(v.Rows)
	return v, nil
}
