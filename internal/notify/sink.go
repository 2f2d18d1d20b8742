package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	appLog "periodbell/internal/log"
)

// Sink is where LocalBackend hands alerts that have come due.
type Sink interface {
	Deliver(a Alert)
}

// OngoingSink is a Sink that can also show a persistent notification,
// replaced in place on every ShowOngoing with the same id.
type OngoingSink interface {
	Sink
	ShowOngoing(id int, title, body string)
	ClearOngoing(id int)
}

// LogSink writes alerts to the application log. It supports ongoing
// notifications and remembers what each ongoing slot currently shows.
type LogSink struct {
	mu    sync.Mutex
	shown map[int]string
}

func NewLogSink() *LogSink {
	return &LogSink{shown: make(map[int]string)}
}

func (s *LogSink) Deliver(a Alert) {
	appLog.Info("alert", "id", a.ID, "title", a.Title, "body", a.Body, "at", a.At)
}

func (s *LogSink) ShowOngoing(id int, title, body string) {
	s.mu.Lock()
	prev, had := s.shown[id]
	s.shown[id] = title + "\n" + body
	s.mu.Unlock()

	if had && prev == title+"\n"+body {
		return
	}
	appLog.Info("ongoing", "id", id, "title", title, "body", body)
}

func (s *LogSink) ClearOngoing(id int) {
	s.mu.Lock()
	_, had := s.shown[id]
	delete(s.shown, id)
	s.mu.Unlock()

	if had {
		appLog.Info("ongoing cleared", "id", id)
	}
}

// ErrCommandUnavailable is returned by NewCommandSink when the configured
// program cannot be found on PATH.
var ErrCommandUnavailable = errors.New("notify: notification command not found")

const defaultCommandTimeout = 10 * time.Second

// CommandSink runs an external program for every alert, e.g.
//
//	notify-send {title} {body}
//
// The placeholders {title}, {body}, {id} and {at} are substituted in each
// argument. Commands run in their own goroutine so a slow program never
// delays the delivery loop.
type CommandSink struct {
	path    string
	args    []string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewCommandSink resolves command[0] on PATH. The lookup happens here so a
// missing program is reported once at startup, not on every alert.
func NewCommandSink(command []string) (*CommandSink, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("%w: empty command", ErrCommandUnavailable)
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCommandUnavailable, command[0], err)
	}
	return &CommandSink{
		path:    path,
		args:    append([]string(nil), command[1:]...),
		timeout: defaultCommandTimeout,
	}, nil
}

func (s *CommandSink) Deliver(a Alert) {
	args := expandArgs(s.args, a)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		out, err := exec.CommandContext(ctx, s.path, args...).CombinedOutput()
		if err != nil {
			appLog.Error("notify: command failed", err, "id", a.ID, "cmd", s.path, "output", strings.TrimSpace(string(out)))
			return
		}
		appLog.Debug("notify: command delivered alert", "id", a.ID, "cmd", s.path)
	}()
}

// Wait blocks until every started command has exited. Callers must stop
// calling Deliver first; for a LocalBackend that means waiting on Done.
func (s *CommandSink) Wait() {
	s.wg.Wait()
}

func expandArgs(args []string, a Alert) []string {
	r := strings.NewReplacer(
		"{title}", a.Title,
		"{body}", a.Body,
		"{id}", fmt.Sprint(a.ID),
		"{at}", a.At.Format(time.RFC3339),
	)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = r.Replace(arg)
	}
	return out
}

var (
	_ OngoingSink = (*LogSink)(nil)
	_ Sink        = (*CommandSink)(nil)
)
