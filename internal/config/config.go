package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"periodbell/internal/period"
)

// NOTE: Load creates a default config on first run; Save writes
// atomically with 0600 permissions.

const (
	FormatYAML = "yaml"
	FormatICS  = "ics"

	SinkLog     = "log"
	SinkCommand = "command"
)

// TimetableConfig describes where the timetable comes from.
type TimetableConfig struct {
	// Format is "yaml" (periods file) or "ics" (iCalendar feed).
	Format string `yaml:"format" json:"format"`
	// Path is a local file. For "ics" it is used when URL is empty.
	Path string `yaml:"path" json:"path"`
	// URL is an HTTP(S) iCalendar endpoint (format "ics" only).
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// CacheDir holds the ETag/Last-Modified cache for URL fetches.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

// TickConfig holds cron specs (seconds field enabled) for the periodic
// triggers.
type TickConfig struct {
	// Fast recomputes the countdown state (default every second).
	Fast string `yaml:"fast" json:"fast"`
	// Slow refreshes the ongoing notification (default every minute).
	Slow string `yaml:"slow" json:"slow"`
	// Reload re-reads today's view and reschedules break alerts (default
	// midnight).
	Reload string `yaml:"reload" json:"reload"`
}

// NotificationsConfig selects the notification sink.
type NotificationsConfig struct {
	// Sink is "log" (default) or "command".
	Sink string `yaml:"sink" json:"sink"`
	// Command is argv for the "command" sink; {title} {body} {id} {at}
	// are substituted.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`
	// OngoingID is the fixed id of the ongoing notification slot.
	OngoingID int `yaml:"ongoing_id" json:"ongoing_id"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone names the wall clock used for "now". "Local" (default)
	// uses the host's zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Group is the timetable group (class) to follow. Required.
	Group string `yaml:"group" json:"group"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Timetable     TimetableConfig     `yaml:"timetable" json:"timetable"`
	Ticks         TickConfig          `yaml:"ticks" json:"ticks"`
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`

	// BreakKeywords are matched (case-folded) against row titles to
	// detect breaks in addition to the B<digits> id rule.
	BreakKeywords []string `yaml:"break_keywords" json:"break_keywords"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Local"
	defaultFastTick    = "@every 1s"
	defaultSlowTick    = "@every 60s"
	defaultReloadTick  = "0 0 0 * * *"
	defaultOngoingID   = 9999
	defaultLogLevel    = "info"
	defaultTimetable   = "/etc/periodbell/timetable.yaml"
	defaultICSCacheDir = "/var/lib/periodbell/ics-cache"
)

func defaultBreakKeywords() []string {
	return append([]string(nil), period.DefaultBreakKeywords...)
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		LogLevel: defaultLogLevel,
		Timetable: TimetableConfig{
			Format:   FormatYAML,
			Path:     defaultTimetable,
			CacheDir: defaultICSCacheDir,
		},
		Ticks: TickConfig{
			Fast:   defaultFastTick,
			Slow:   defaultSlowTick,
			Reload: defaultReloadTick,
		},
		Notifications: NotificationsConfig{
			Sink:      SinkLog,
			OngoingID: defaultOngoingID,
		},
		BreakKeywords: defaultBreakKeywords(),
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.Group = strings.TrimSpace(c.Group)

	switch strings.ToLower(c.Timetable.Format) {
	case FormatYAML, FormatICS:
		c.Timetable.Format = strings.ToLower(c.Timetable.Format)
	default:
		// Unknown or empty; a URL implies ICS.
		if c.Timetable.URL != "" {
			c.Timetable.Format = FormatICS
		} else {
			c.Timetable.Format = FormatYAML
		}
	}
	if c.Timetable.CacheDir == "" {
		c.Timetable.CacheDir = defaultICSCacheDir
	}

	if c.Ticks.Fast == "" {
		c.Ticks.Fast = defaultFastTick
	}
	if c.Ticks.Slow == "" {
		c.Ticks.Slow = defaultSlowTick
	}
	if c.Ticks.Reload == "" {
		c.Ticks.Reload = defaultReloadTick
	}

	switch c.Notifications.Sink {
	case SinkLog, SinkCommand:
	default:
		c.Notifications.Sink = SinkLog
	}
	if c.Notifications.OngoingID <= 0 {
		c.Notifications.OngoingID = defaultOngoingID
	}

	if c.BreakKeywords == nil {
		c.BreakKeywords = defaultBreakKeywords()
	}
}

// Validate reports configuration that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Group == "" {
		errs = append(errs, errors.New("config: group is required"))
	}
	if c.Timetable.Format == FormatYAML && c.Timetable.Path == "" {
		errs = append(errs, errors.New("config: timetable.path is required for yaml timetables"))
	}
	if c.Timetable.Format == FormatICS && c.Timetable.Path == "" && c.Timetable.URL == "" {
		errs = append(errs, errors.New("config: timetable.path or timetable.url is required for ics timetables"))
	}
	if c.Notifications.Sink == SinkCommand && len(c.Notifications.Command) == 0 {
		errs = append(errs, errors.New("config: notifications.command is required for the command sink"))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms (creating the directory)
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".periodbell-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
