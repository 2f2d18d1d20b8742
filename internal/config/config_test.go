package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"periodbell/internal/period"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ticks.Fast != "@every 1s" || cfg.Ticks.Slow != "@every 60s" {
		t.Errorf("ticks = %+v", cfg.Ticks)
	}
	if cfg.Notifications.OngoingID != 9999 {
		t.Errorf("ongoing id = %d", cfg.Notifications.OngoingID)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
group: " 10a "
timetable:
  format: ICS
  url: https://example.com/10a.ics
ticks:
  fast: "*/2 * * * * *"
notifications:
  sink: command
  command: ["notify-send", "{title}", "{body}"]
break_keywords: ["Pause"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Group != "10a" {
		t.Errorf("group = %q", cfg.Group)
	}
	if cfg.Timetable.Format != FormatICS {
		t.Errorf("format = %q", cfg.Timetable.Format)
	}
	if cfg.Ticks.Fast != "*/2 * * * * *" || cfg.Ticks.Slow != "@every 60s" {
		t.Errorf("ticks = %+v", cfg.Ticks)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if len(cfg.BreakKeywords) != 1 || cfg.BreakKeywords[0] != "Pause" {
		t.Errorf("keywords = %v", cfg.BreakKeywords)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("group: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	c := &Config{
		Timetable:     TimetableConfig{Format: "xml", URL: "https://example.com/a.ics"},
		Notifications: NotificationsConfig{Sink: "pager"},
	}
	c.Normalize()

	if c.Timetable.Format != FormatICS {
		t.Errorf("format = %q, want ics (URL present)", c.Timetable.Format)
	}
	if c.Notifications.Sink != SinkLog || c.Notifications.OngoingID != 9999 {
		t.Errorf("notifications = %+v", c.Notifications)
	}
	if c.Ticks.Reload != "0 0 0 * * *" {
		t.Errorf("reload = %q", c.Ticks.Reload)
	}
	if !slices.Equal(c.BreakKeywords, period.DefaultBreakKeywords) {
		t.Errorf("keywords = %v, want %v", c.BreakKeywords, period.DefaultBreakKeywords)
	}

	// The defaults are a copy; editing them leaves the classifier's list alone.
	c.BreakKeywords[0] = "recess"
	if period.DefaultBreakKeywords[0] != "break" {
		t.Errorf("shared keywords mutated: %v", period.DefaultBreakKeywords)
	}
}

func TestValidate(t *testing.T) {
	c := DefaultConfig()
	c.Notifications.Sink = SinkCommand
	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "group is required") || !strings.Contains(msg, "notifications.command") {
		t.Errorf("Validate = %v", err)
	}

	c.Group = "10a"
	c.Notifications.Command = []string{"notify-send"}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate = %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := DefaultConfig()
	c.Group = "11b"
	c.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	if err := Save(path, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Group != "11b" || got.BasicAuth == nil || got.BasicAuth.Username != "admin" {
		t.Errorf("reloaded = %+v", got)
	}
}

func TestSaveErrors(t *testing.T) {
	if err := Save("", DefaultConfig()); err == nil {
		t.Error("expected error for empty path")
	}
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("expected error for nil config")
	}
}
