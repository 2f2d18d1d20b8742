// Package timetable loads a group's day view from a YAML periods file or
// an iCalendar feed.
package timetable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"periodbell/internal/config"
	"periodbell/internal/model"
	"periodbell/internal/period"
)

// ErrUnknownGroup is returned when the source has no timetable for the
// requested group.
var ErrUnknownGroup = errors.New("timetable: unknown group")

// Provider returns today's view for a group. Rows must come back sorted
// by start time.
type Provider interface {
	TodayView(ctx context.Context, groupID string) (*model.DayView, error)
}

// New builds the provider selected by cfg.Format. loc is the wall clock
// used to decide what "today" is for calendar sources.
func New(cfg config.TimetableConfig, loc *time.Location) (Provider, error) {
	switch cfg.Format {
	case config.FormatYAML, "":
		if cfg.Path == "" {
			return nil, errors.New("timetable: yaml source needs a path")
		}
		return NewFileProvider(cfg.Path), nil
	case config.FormatICS:
		if cfg.Path == "" && cfg.URL == "" {
			return nil, errors.New("timetable: ics source needs a path or url")
		}
		p := NewICSProvider(ICSSource{Path: cfg.Path, URL: cfg.URL}, NewFetcher(cfg.CacheDir))
		p.Location = loc
		return p, nil
	default:
		return nil, fmt.Errorf("timetable: unsupported format %q", cfg.Format)
	}
}

// sortRows orders rows by parsed start time. The sort is stable, and rows
// whose start does not parse keep their relative order after the rest.
func sortRows(rows []model.Row) {
	keyed := make([]struct {
		row   model.Row
		start int
	}, len(rows))
	for i, r := range rows {
		start, err := period.ParseHHMM(r.Start)
		if err != nil {
			start = 24 * 60
		}
		keyed[i].row = r
		keyed[i].start = start
	}
	sort.SliceStable(keyed, func(i, j int) bool { return keyed[i].start < keyed[j].start })
	for i := range keyed {
		rows[i] = keyed[i].row
	}
}
