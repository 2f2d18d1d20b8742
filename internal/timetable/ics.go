package timetable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "periodbell/internal/log"
	"periodbell/internal/model"
)

// periodIDProperty lets a feed name the period explicitly; otherwise the
// event UID is used.
const periodIDProperty = "X-PERIOD-ID"

// ICSSource names a local file or a remote feed. URL wins when both are set.
type ICSSource struct {
	Path string
	URL  string
}

// ICSProvider builds day views from an iCalendar feed in which every
// lesson and break is a timed VEVENT, usually repeating weekly. An event
// whose CATEGORIES are set only applies to the listed groups.
type ICSProvider struct {
	source  ICSSource
	fetcher *Fetcher

	// Location is the wall clock occurrences are converted to. Nil means
	// time.Local.
	Location *time.Location
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func NewICSProvider(src ICSSource, fetcher *Fetcher) *ICSProvider {
	return &ICSProvider{source: src, fetcher: fetcher}
}

// lessonEvent is a parsed timed VEVENT.
type lessonEvent struct {
	UID        string
	PeriodID   string
	Title      string
	Categories []string
	Start      time.Time
	End        time.Time
	RawRRule   string
	ExDates    []time.Time
}

func (p *ICSProvider) TodayView(ctx context.Context, groupID string) (*model.DayView, error) {
	body, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	events, err := parseLessonEvents(body)
	if err != nil {
		return nil, err
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	v := buildDayView(events, groupID, now().In(loc))
	if len(v.DayHeaders) == 0 {
		return nil, fmt.Errorf("%w: %q has no events this week", ErrUnknownGroup, groupID)
	}
	return v, nil
}

func (p *ICSProvider) load(ctx context.Context) ([]byte, error) {
	if p.source.URL != "" {
		body, _, err := p.fetcher.Fetch(ctx, p.source.URL)
		return body, err
	}
	body, err := os.ReadFile(p.source.Path)
	if err != nil {
		return nil, fmt.Errorf("timetable: read %s: %w", p.source.Path, err)
	}
	return body, nil
}

// parseLessonEvents extracts timed events. All-day events and events
// without a usable start/end are skipped with a log line.
func parseLessonEvents(body []byte) ([]lessonEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("timetable: empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("timetable: parse ICS: %w", err)
	}

	out := make([]lessonEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseLessonEvent(ve)
		if err != nil {
			appLog.Warn("timetable: skipping event", "reason", err.Error())
			continue
		}
		out = append(out, ev)
	}
	appLog.Debug("timetable: ICS parsed", "events", len(out))
	return out, nil
}

func parseLessonEvent(ve *ical.VEvent) (lessonEvent, error) {
	var ev lessonEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value
	ev.PeriodID = ev.UID
	if p := ve.GetProperty(periodIDProperty); p != nil && strings.TrimSpace(p.Value) != "" {
		ev.PeriodID = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				ev.Categories = append(ev.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", ev.UID)
	}
	if !strings.Contains(dtStart.Value, "T") || isDateValue(dtStart.ICalParameters) {
		return ev, fmt.Errorf("%s: all-day events are not timetable rows", ev.UID)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.UID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return ev, fmt.Errorf("%s: DTEND: %w", ev.UID, err)
	}
	if !end.After(start) {
		return ev, fmt.Errorf("%s: end is not after start", ev.UID)
	}
	ev.Start = start
	ev.End = end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	return ev, nil
}

func isDateValue(params map[string][]string) bool {
	vs := params["VALUE"]
	return len(vs) > 0 && strings.EqualFold(vs[0], "DATE")
}

// parseICSTime handles the bare DATE-TIME forms used by EXDATE.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// occurrences returns the event's starts within [from, to).
func (ev lessonEvent) occurrences(from, to time.Time) []time.Time {
	if ev.RawRRule == "" {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			return []time.Time{ev.Start}
		}
		return nil
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("timetable: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	var out []time.Time
	for _, t := range set.Between(from.In(ev.Start.Location()), to.In(ev.Start.Location()), true) {
		if t.Before(to) {
			out = append(out, t)
		}
	}
	return out
}

func (ev lessonEvent) appliesTo(groupID string) bool {
	if len(ev.Categories) == 0 {
		return true
	}
	for _, c := range ev.Categories {
		if strings.EqualFold(c, groupID) {
			return true
		}
	}
	return false
}

// buildDayView expands events over the Sunday-started week containing now.
// Weekdays with any occurrence become day headers; today's occurrences
// become rows, sorted by start.
func buildDayView(events []lessonEvent, groupID string, now time.Time) *model.DayView {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 7)
	tomorrow := today.AddDate(0, 0, 1)

	seen := make(map[model.DayOfWeek]bool)
	v := &model.DayView{GroupID: groupID}

	for _, ev := range events {
		if !ev.appliesTo(groupID) {
			continue
		}
		dur := ev.End.Sub(ev.Start)
		for _, occ := range ev.occurrences(weekStart, weekEnd) {
			local := occ.In(loc)
			seen[model.DayOf(local)] = true
			if local.Before(today) || !local.Before(tomorrow) {
				continue
			}
			v.Rows = append(v.Rows, model.Row{
				PeriodID: ev.PeriodID,
				Title:    ev.Title,
				Start:    local.Format("15:04"),
				End:      local.Add(dur).Format("15:04"),
			})
		}
	}

	for _, d := range model.DayOrder {
		if seen[d] {
			v.DayHeaders = append(v.DayHeaders, d)
		}
	}
	sortRows(v.Rows)
	return v
}
