package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/civil"

	"github.com/chaosshowdown/mitsuha/config"
	"github.com/chaosshowdown/mitsuha/daily"
	"github.com/chaosshowdown/mitsuha/runlog"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const usageText = `Usage: mitsuha <command> [flags]

Commands:
  holiday              wish members a happy special day (channel post + DMs)
  daily                post the time-of-day greeting embed
  preview <user-id>    send the day's DM and channel embed to one user
  calendars [ids...]   check which calendar IDs the API key can read
  runs                 list recent runs
  logs                 show log lines recorded by past runs

Run "mitsuha <command> -h" for the flags of a command.
`

// options are the flags shared by every command.
type options struct {
	logLevel   string
	logFormat  string
	configPath string
	date       string
	timeOfDay  string
	dryRun     bool
	test       bool
	once       bool
	kind       string
	limit      int
	runID      int64
	level      string
	offset     int
}

func newFlagSet(cmd string, stderr io.Writer, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("mitsuha "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&o.configPath, "config", "", "Path to config file")
	switch cmd {
	case "holiday", "daily", "preview":
		fs.StringVar(&o.date, "date", "", "Override the IST date (YYYY-MM-DD)")
		fs.BoolVar(&o.test, "test", false, "Print intended messages instead of sending them")
		fs.BoolVar(&o.once, "once", false, "Skip the run if one already succeeded for this date")
		if cmd != "preview" {
			fs.BoolVar(&o.dryRun, "dry-run", false, "Do not connect to Discord; only generate and print the wish")
		}
		if cmd != "holiday" {
			fs.StringVar(&o.timeOfDay, "time", "", "Override time of day: Morning, Noon, Afternoon, Evening or Night")
		}
	case "calendars":
		fs.StringVar(&o.date, "date", "", "Date to query (YYYY-MM-DD)")
	case "runs":
		fs.StringVar(&o.kind, "kind", "", "Only list runs of this kind")
		fs.IntVar(&o.limit, "limit", 20, "Number of runs to list")
	case "logs":
		fs.Int64Var(&o.runID, "run", 0, "Only show logs of this run id")
		fs.StringVar(&o.level, "level", "", "Minimum level: debug, info, warn, error")
		fs.IntVar(&o.limit, "limit", 50, "Number of log lines to show")
		fs.IntVar(&o.offset, "offset", 0, "Skip this many of the newest lines")
	}
	return fs
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usageText)
		return exitConfig
	}
	cmd := args[0]
	switch cmd {
	case "holiday", "daily", "preview", "calendars", "runs", "logs":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usageText)
		return exitConfig
	}

	var o options
	fs := newFlagSet(cmd, stderr, &o)
	if err := fs.Parse(args[1:]); err != nil {
		return exitConfig
	}

	base := setupLogger(o.logLevel, o.logFormat, stderr)

	loc := daily.Location()
	now := time.Now()
	date, err := parseDate(o.date, now, loc)
	if err != nil {
		slog.Error("invalid --date, use YYYY-MM-DD (e.g. 2026-01-01)", "date", o.date)
		return exitConfig
	}
	if o.timeOfDay != "" && !validTimeOfDay(o.timeOfDay) {
		slog.Error("invalid --time", "time", o.timeOfDay)
		return exitConfig
	}

	var userID string
	if cmd == "preview" {
		userID = fs.Arg(0)
		if _, err := strconv.ParseUint(userID, 10, 64); err != nil {
			slog.Error("preview needs a numeric user id", "user_id", userID)
			return exitConfig
		}
	}

	// Config path: --config flag > MITSUHA_CONFIG env > default
	cfgPath := config.Resolve()
	if o.configPath != "" {
		cfgPath = o.configPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("configuration error", "error", err, "path", cfgPath)
		return exitConfig
	}
	if cmd == "holiday" || cmd == "preview" || cmd == "calendars" {
		if err := cfg.RequireCalendars(); err != nil {
			slog.Error("configuration error", "error", err)
			return exitConfig
		}
	}
	slog.Debug("config loaded", "path", cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Dry runs and calendar probes leave no state behind.
	var store *runlog.Store
	if usesLedger(cmd, o) {
		store, err = runlog.Open(cfg.State.DBPath)
		if err != nil {
			slog.Warn("run ledger unavailable, continuing without it", "error", err, "path", cfg.State.DBPath)
			store = nil
		} else {
			defer store.Close()
			slog.SetDefault(slog.New(runlog.NewHandler(base, store)))
		}
	}

	app := &app{
		cfg:    cfg,
		store:  store,
		loc:    loc,
		now:    now,
		date:   date,
		opts:   o,
		stdout: stdout,
	}

	switch cmd {
	case "calendars":
		return app.calendars(ctx, fs.Args())
	case "runs":
		return app.runs(ctx)
	case "logs":
		return app.logs(ctx)
	case "preview":
		return app.preview(ctx, userID)
	case "daily":
		return app.daily(ctx)
	default:
		return app.holiday(ctx)
	}
}

func usesLedger(cmd string, o options) bool {
	switch cmd {
	case "runs", "logs", "preview":
		return true
	case "holiday", "daily":
		return !o.dryRun
	}
	return false
}

func parseDate(s string, now time.Time, loc *time.Location) (civil.Date, error) {
	if s == "" {
		return civil.DateOf(now.In(loc)), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, err
	}
	if !d.IsValid() {
		return civil.Date{}, errors.New("invalid date")
	}
	return d, nil
}

func validTimeOfDay(s string) bool {
	switch s {
	case "Morning", "Noon", "Afternoon", "Evening", "Night":
		return true
	}
	return false
}

// setupLogger installs the default logger and returns its handler so it can be
// wrapped once the run ledger is open.
func setupLogger(level, format string, w io.Writer) slog.Handler {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return h
}
