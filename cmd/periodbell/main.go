package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periodbell/internal/config"
	"periodbell/internal/engine"
	appLog "periodbell/internal/log"
	"periodbell/internal/notify"
	"periodbell/internal/period"
	"periodbell/internal/timetable"
	"periodbell/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	group      string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.group != "" {
		conf.Group = flags.group
	}
	conf.Normalize()
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(2)
	}

	appLog.Info("periodbell starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"group", conf.Group,
		"timetable_format", conf.Timetable.Format,
		"sink", conf.Notifications.Sink,
		"once", flags.once,
	)

	if err := run(conf, flags.once); err != nil {
		appLog.Error("periodbell failed", err)
		os.Exit(1)
	}
	appLog.Info("periodbell exiting")
}

func run(conf *config.Config, once bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc := resolveLocationOrLocal(conf.Timezone)

	provider, err := timetable.New(conf.Timetable, loc)
	if err != nil {
		return err
	}

	sink, wait := newSink(conf.Notifications)
	// The backend outlives ctx so Stop can still clear the ongoing slot.
	backendCtx, stopBackend := context.WithCancel(context.Background())
	backend := notify.NewLocalBackend(backendCtx, sink)
	defer func() {
		stopBackend()
		<-backend.Done()
		wait()
	}()

	resolver := period.NewResolver(period.NewClassifier(conf.BreakKeywords...))
	eng, err := engine.New(engine.Options{
		GroupID:    conf.Group,
		Provider:   provider,
		Scheduler:  notify.NewScheduler(backend, resolver, conf.Notifications.OngoingID),
		Resolver:   resolver,
		Location:   loc,
		FastSpec:   conf.Ticks.Fast,
		SlowSpec:   conf.Ticks.Slow,
		ReloadSpec: conf.Ticks.Reload,
	})
	if err != nil {
		return err
	}

	if once {
		return runOnce(ctx, eng)
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.Stop(stopCtx)
	}()

	if conf.Listen == "" {
		<-ctx.Done()
		return nil
	}
	return web.NewServer(conf, eng).Serve(ctx)
}

// runOnce loads today's view, prints the computed state and exits.
func runOnce(ctx context.Context, eng *engine.Engine) error {
	if err := eng.Reload(ctx); err != nil {
		return err
	}
	out := struct {
		Group  string         `json:"group"`
		State  period.State   `json:"state"`
		Alerts []notify.Alert `json:"alerts"`
	}{
		Group:  eng.GroupID(),
		State:  eng.Snapshot(),
		Alerts: eng.Pending(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// newSink builds the configured sink. A command sink whose executable is
// missing falls back to the log sink. The returned func waits for
// in-flight deliveries.
func newSink(cfg config.NotificationsConfig) (notify.Sink, func()) {
	if cfg.Sink == config.SinkCommand {
		cs, err := notify.NewCommandSink(cfg.Command)
		if err == nil {
			return cs, cs.Wait
		}
		if errors.Is(err, notify.ErrCommandUnavailable) {
			appLog.Warn("notification command unavailable; falling back to log sink", "command", cfg.Command[0])
		} else {
			appLog.Error("notification command sink failed; falling back to log sink", err)
		}
	}
	return notify.NewLogSink(), func() {}
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" || name == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/periodbell/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.group, "group", "", "Timetable group to follow (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print today's state as JSON and exit")

	flag.Parse()

	return cfg
}
