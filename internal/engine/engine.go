// Package engine drives the resolver and the notification scheduler from
// cron ticks: a fast tick recomputes the temporal state, a slow tick
// refreshes the ongoing notification and a daily tick reloads the view.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "periodbell/internal/log"
	"periodbell/internal/model"
	"periodbell/internal/notify"
	"periodbell/internal/period"
	"periodbell/internal/timetable"
)

// ErrMissingGroup is returned by New when no group id is configured.
var ErrMissingGroup = errors.New("engine: group id is required")

const (
	DefaultFastSpec   = "@every 1s"
	DefaultSlowSpec   = "@every 60s"
	DefaultReloadSpec = "0 0 0 * * *"
)

// Phase is the scheduler state shown to the UI.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseAlertsScheduled Phase = "alerts_scheduled"
)

type Options struct {
	GroupID   string
	Provider  timetable.Provider
	Scheduler *notify.Scheduler
	Resolver  *period.Resolver

	// Location is the wall clock; nil means time.Local.
	Location *time.Location
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	FastSpec   string
	SlowSpec   string
	ReloadSpec string
}

// Engine owns the current view and the last computed state. Tick handlers
// and view assignment are serialized by mu.
type Engine struct {
	opts     Options
	resolver *period.Resolver
	sched    *notify.Scheduler
	loc      *time.Location

	mu       sync.Mutex
	view     *model.DayView
	snapshot period.State
	phase    Phase
	loadErr  error

	runMu   sync.Mutex
	cron    *cron.Cron
	kickoff *time.Timer
	kickWG  sync.WaitGroup
}

func New(opts Options) (*Engine, error) {
	opts.GroupID = strings.TrimSpace(opts.GroupID)
	if opts.GroupID == "" {
		return nil, ErrMissingGroup
	}
	if opts.Provider == nil {
		return nil, errors.New("engine: timetable provider is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("engine: notification scheduler is required")
	}
	if opts.Resolver == nil {
		opts.Resolver = period.NewResolver(nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FastSpec == "" {
		opts.FastSpec = DefaultFastSpec
	}
	if opts.SlowSpec == "" {
		opts.SlowSpec = DefaultSlowSpec
	}
	if opts.ReloadSpec == "" {
		opts.ReloadSpec = DefaultReloadSpec
	}

	return &Engine{
		opts:     opts,
		resolver: opts.Resolver,
		sched:    opts.Scheduler,
		loc:      opts.Location,
		phase:    PhaseIdle,
	}, nil
}

func (e *Engine) now() time.Time {
	return e.opts.Now().In(e.loc)
}

// Start loads today's view, schedules alerts and registers the ticks. A
// failed initial load is logged and retried by the reload tick; the
// engine still runs with an empty state.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cron != nil {
		return errors.New("engine: already started")
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(e.loc),
		cron.WithLogger(appLog.CronLogger()),
		cron.WithChain(cron.Recover(appLog.CronLogger())),
	)
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"fast", e.opts.FastSpec, e.Tick},
		{"slow", e.opts.SlowSpec, func() { e.RefreshTick(ctx) }},
		{"reload", e.opts.ReloadSpec, func() {
			if err := e.Reload(ctx); err != nil {
				appLog.Error("engine: scheduled reload failed", err)
			}
		}},
	}
	for _, j := range jobs {
		if _, err := c.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("engine: %s tick %q: %w", j.name, j.spec, err)
		}
	}

	e.sched.RequestPermission(ctx)
	if err := e.Reload(ctx); err != nil {
		appLog.Error("engine: initial timetable load failed", err, "group", e.opts.GroupID)
	}

	c.Start()
	e.cron = c

	// One immediate pass so the UI does not wait for the first tick.
	e.kickWG.Add(1)
	e.kickoff = time.AfterFunc(0, func() {
		defer e.kickWG.Done()
		defer func() {
			if r := recover(); r != nil {
				appLog.Error("engine: kickoff panic", fmt.Errorf("%v", r))
			}
		}()
		e.Tick()
		e.RefreshTick(ctx)
	})

	appLog.Info("engine started",
		"group", e.opts.GroupID,
		"fast", e.opts.FastSpec,
		"slow", e.opts.SlowSpec,
		"reload", e.opts.ReloadSpec,
		"ongoing", e.sched.OngoingSupported(),
	)
	return nil
}

// Stop cancels the ticks and the kickoff pass, waits for running jobs
// (bounded by ctx) and clears the ongoing notification.
func (e *Engine) Stop(ctx context.Context) {
	e.runMu.Lock()
	c, kick := e.cron, e.kickoff
	e.cron, e.kickoff = nil, nil
	e.runMu.Unlock()

	if c == nil {
		return
	}
	if kick != nil && kick.Stop() {
		// Never ran; release its WaitGroup slot.
		e.kickWG.Done()
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		e.kickWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		appLog.Warn("engine: stop timed out waiting for jobs")
	}

	e.sched.ClearOngoing(ctx)
	appLog.Info("engine stopped")
}

// Reload fetches today's view from the provider and assigns it. On error
// the previous view is kept.
func (e *Engine) Reload(ctx context.Context) error {
	v, err := e.opts.Provider.TodayView(ctx, e.opts.GroupID)

	e.mu.Lock()
	e.loadErr = err
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("engine: load timetable for %s: %w", e.opts.GroupID, err)
	}
	e.SetView(ctx, v)
	return nil
}

// SetView assigns v as today's view: pending alerts are cancelled and
// re-derived, then the state and ongoing slot are refreshed.
func (e *Engine) SetView(ctx context.Context, v *model.DayView) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.view = v
	e.phase = PhaseIdle
	now := e.now()
	n := e.sched.ScheduleBreakAlerts(ctx, now, v)
	e.phase = PhaseAlertsScheduled
	e.snapshot = e.resolver.Compute(now, v)
	e.sched.RefreshOngoing(ctx, now, v)

	rows := 0
	if v != nil {
		rows = len(v.Rows)
	}
	appLog.Info("engine: view assigned", "group", e.opts.GroupID, "rows", rows, "alerts", n)
}

// Tick recomputes the temporal state.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = e.resolver.Compute(e.now(), e.view)
}

// RefreshTick refreshes the ongoing notification.
func (e *Engine) RefreshTick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseIdle {
		return
	}
	e.sched.RefreshOngoing(ctx, e.now(), e.view)
}

// Snapshot returns a copy of the last computed state.
func (e *Engine) Snapshot() period.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.snapshot
	if s.NextBreak != nil {
		nb := *s.NextBreak
		s.NextBreak = &nb
	}
	if s.EndOfDay != nil {
		eod := *s.EndOfDay
		s.EndOfDay = &eod
	}
	return s
}

// View returns the current view. Callers must not modify it.
func (e *Engine) View() *model.DayView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// LastLoadError is the error from the most recent Reload, if any.
func (e *Engine) LastLoadError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

func (e *Engine) Scheduler() *notify.Scheduler {
	return e.sched
}

// Pending lists the scheduled break alerts.
func (e *Engine) Pending() []notify.Alert {
	return e.sched.Pending()
}

func (e *Engine) Ongoing() (notify.Ongoing, bool) {
	return e.sched.CurrentOngoing()
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) GroupID() string {
	return e.opts.GroupID
}
