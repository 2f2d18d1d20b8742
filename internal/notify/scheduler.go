package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appLog "periodbell/internal/log"
	"periodbell/internal/model"
	"periodbell/internal/period"
)

// Ongoing describes what the ongoing notification slot currently shows.
type Ongoing struct {
	ID       int         `json:"id"`
	PeriodID string      `json:"period_id"`
	Kind     period.Kind `json:"kind"`
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	// Stale is set when the last update was rejected; the backend may
	// still show the previous content.
	Stale bool `json:"stale,omitempty"`
}

// Scheduler owns the set of scheduled point-in-time alerts and the ongoing
// slot. Calls are expected to be serialized by the caller's tick model;
// the internal mutex only protects readers such as Pending.
type Scheduler struct {
	backend   Backend
	ongoing   OngoingBackend // nil when the capability is absent
	resolver  *period.Resolver
	ongoingID int

	mu        sync.Mutex
	pending   map[int]Alert
	attempted []int
	slot      *Ongoing
}

// NewScheduler wires a Scheduler to backend. The ongoing capability is
// checked once, here. ongoingID <= 0 selects DefaultOngoingID.
func NewScheduler(backend Backend, resolver *period.Resolver, ongoingID int) *Scheduler {
	if resolver == nil {
		resolver = period.NewResolver(nil)
	}
	if ongoingID <= 0 {
		ongoingID = DefaultOngoingID
	}
	s := &Scheduler{
		backend:   backend,
		resolver:  resolver,
		ongoingID: ongoingID,
		pending:   make(map[int]Alert),
	}
	if ob, ok := ongoingOf(backend); ok {
		s.ongoing = ob
	}
	return s
}

// OngoingSupported reports the result of the capability check.
func (s *Scheduler) OngoingSupported() bool {
	return s.ongoing != nil
}

// RequestPermission asks the backend for permission. The answer is only
// logged; scheduling proceeds either way.
func (s *Scheduler) RequestPermission(ctx context.Context) {
	granted, err := s.backend.RequestPermission(ctx)
	if err != nil {
		appLog.Error("notify: permission request failed", err)
		return
	}
	if !granted {
		appLog.Warn("notify: permission denied; alerts may not be delivered")
		return
	}
	appLog.Debug("notify: permission granted")
}

// ScheduleBreakAlerts replaces the scheduled alert set with one alert per
// future break boundary of today. Previously scheduled alerts are always
// cancelled first, so repeated calls converge on the same set. It returns
// the number of alerts the backend accepted.
func (s *Scheduler) ScheduleBreakAlerts(ctx context.Context, now time.Time, v *model.DayView) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelAllLocked(ctx)

	if !s.resolver.Applicable(now, v) {
		appLog.Debug("notify: today not in timetable; no break alerts", "day", model.DayOf(now))
		return 0
	}

	breaks := s.resolver.Classifier()
	nextID := 1
	for _, row := range v.Rows {
		if !breaks.IsBreak(row.PeriodID, row.Title) {
			continue
		}
		start, end, ok := period.Bounds(row)
		if !ok {
			appLog.Warn("notify: skipping break with invalid times", "period_id", row.PeriodID, "start", row.Start, "end", row.End)
			continue
		}

		boundaries := []struct {
			at    time.Time
			title string
			body  string
		}{
			{period.At(now, start), "Break started", fmt.Sprintf("%s started!", row.Title)},
			{period.At(now, end), "Break ended", fmt.Sprintf("%s ended!", row.Title)},
		}
		for _, b := range boundaries {
			if !b.at.After(now) {
				continue
			}
			a := Alert{ID: nextID, Title: b.title, Body: b.body, At: b.at}
			nextID++
			s.attempted = append(s.attempted, a.ID)

			if err := s.backend.ScheduleAt(ctx, a); err != nil {
				appLog.Error("notify: schedule alert failed", err, "id", a.ID, "at", a.At, "period_id", row.PeriodID)
				continue
			}
			s.pending[a.ID] = a
		}
	}

	appLog.Info("notify: break alerts scheduled", "count", len(s.pending), "day", model.DayOf(now))
	return len(s.pending)
}

// cancelAllLocked drops every scheduled point-in-time alert. s.mu must
// be held.
func (s *Scheduler) cancelAllLocked(ctx context.Context) {
	if len(s.attempted) > 0 {
		ids := append([]int(nil), s.attempted...)
		if err := s.backend.Cancel(ctx, ids); err != nil {
			appLog.Error("notify: cancel alerts failed", err, "count", len(ids))
		}
	}
	s.attempted = nil
	s.pending = make(map[int]Alert)
}

// Pending returns the currently scheduled alerts ordered by id.
func (s *Scheduler) Pending() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, 0, len(s.pending))
	for _, a := range s.pending {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RefreshOngoing points the ongoing notification at the row active at
// now, or clears it when no row is active. Without the ongoing capability
// it does nothing.
func (s *Scheduler) RefreshOngoing(ctx context.Context, now time.Time, v *model.DayView) {
	if s.ongoing == nil {
		return
	}

	today := s.resolver.ResolveToday(now, v)
	if today.Index < 0 {
		s.ClearOngoing(ctx)
		return
	}

	row := v.Rows[today.Index]
	start, end, _ := period.Bounds(row)
	mins := period.MinuteOfDay(now)
	elapsed := mins - start
	left := end - mins

	kind := s.resolver.Classifier().Kind(row)
	var title, body string
	if kind == period.KindBreak {
		title = "Break: " + row.Title
		body = fmt.Sprintf("Break ongoing. %d min passed, %d min left.", elapsed, left)
	} else {
		title = "Period: " + row.Title
		body = fmt.Sprintf("Lesson ongoing. %d min passed, %d min left.", elapsed, left)
	}

	if err := s.ongoing.ScheduleOngoing(ctx, s.ongoingID, title, body); err != nil {
		appLog.Error("notify: ongoing update failed", err, "id", s.ongoingID, "period_id", row.PeriodID)
		s.mu.Lock()
		if s.slot != nil {
			s.slot.Stale = true
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.slot = &Ongoing{ID: s.ongoingID, PeriodID: row.PeriodID, Kind: kind, Title: title, Body: body}
	s.mu.Unlock()
}

// ClearOngoing cancels the ongoing notification. It is a no-op when the
// slot is already clear or the capability is absent. A failed cancel
// leaves the slot set so the next call retries.
func (s *Scheduler) ClearOngoing(ctx context.Context) {
	if s.ongoing == nil {
		return
	}
	s.mu.Lock()
	shown := s.slot != nil
	s.mu.Unlock()
	if !shown {
		return
	}
	if err := s.ongoing.CancelOne(ctx, s.ongoingID); err != nil {
		appLog.Error("notify: clear ongoing failed", err, "id", s.ongoingID)
		return
	}
	s.mu.Lock()
	s.slot = nil
	s.mu.Unlock()
}

// CurrentOngoing returns what the ongoing slot shows, if anything.
func (s *Scheduler) CurrentOngoing() (Ongoing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return Ongoing{}, false
	}
	return *s.slot, true
}
