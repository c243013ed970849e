package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"

	"github.com/chaosshowdown/mitsuha/bot"
	"github.com/chaosshowdown/mitsuha/config"
	"github.com/chaosshowdown/mitsuha/daily"
	"github.com/chaosshowdown/mitsuha/decor"
	"github.com/chaosshowdown/mitsuha/holiday"
	"github.com/chaosshowdown/mitsuha/llm"
	"github.com/chaosshowdown/mitsuha/persona"
	"github.com/chaosshowdown/mitsuha/runlog"
	"github.com/chaosshowdown/mitsuha/wisher"
)

type app struct {
	cfg    *config.Config
	store  *runlog.Store
	loc    *time.Location
	now    time.Time
	date   civil.Date
	opts   options
	stdout io.Writer
}

func (a *app) timeOfDay() string {
	if a.opts.timeOfDay != "" {
		return a.opts.timeOfDay
	}
	return daily.TimeOfDay(a.now.In(a.loc))
}

// newWisher wires the generator, calendar and delivery settings into a Wisher.
// The returned func releases the generator.
func (a *app) newWisher(ctx context.Context, withCalendar bool) (*wisher.Wisher, func(), error) {
	gen, err := llm.New(ctx, &a.cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm client: %w", err)
	}
	release := func() {
		if c, ok := gen.(io.Closer); ok {
			c.Close()
		}
	}

	var cal wisher.Calendar
	if withCalendar {
		f, err := holiday.NewFetcher(ctx, &a.cfg.Google, a.loc)
		if err != nil {
			release()
			return nil, nil, err
		}
		cal = f
	}

	writer := &decor.Writer{Gen: gen, Persona: persona.Load(a.cfg.LLM.PersonaFile)}
	w := wisher.New(writer, cal, wisher.Options{
		Date:      a.date,
		Now:       a.now,
		TimeOfDay: a.timeOfDay(),
		Test:      a.opts.test,
		Sticker: decor.StickerOptions{
			ID:       a.cfg.Discord.StickerID,
			Prefix:   a.cfg.Discord.StickerPrefix,
			PickMode: a.cfg.Discord.StickerPickMode,
		},
		StatePath:    a.cfg.State.DMDisabledPath,
		AssetsDir:    a.cfg.Assets.Dir,
		SuccessDelay: time.Duration(a.cfg.Delivery.SuccessDelayMillis) * time.Millisecond,
		FailureDelay: time.Duration(a.cfg.Delivery.FailureDelayMillis) * time.Millisecond,
		Out:          a.stdout,
	})
	return w, release, nil
}

// ledgerKind names a run in the ledger. Daily greetings are tracked per time of day.
func (a *app) ledgerKind(cmd string) string {
	if cmd == "daily" {
		return "daily/" + a.timeOfDay()
	}
	return cmd
}

// onDiscord runs fn inside a gateway session, recording the run in the ledger.
func (a *app) onDiscord(ctx context.Context, kind string, fn func(context.Context, wisher.Discord) (wisher.Report, error)) int {
	if a.opts.once && a.store != nil && !a.opts.test {
		done, err := a.store.LastSuccess(ctx, kind, a.date)
		if err != nil {
			slog.Warn("check previous runs failed", "error", err)
		} else if done {
			slog.Info("run already completed for this date, skipping", "kind", kind, "date", a.date)
			return exitOK
		}
	}

	var runID int64
	if a.store != nil {
		id, err := a.store.Begin(ctx, kind, a.date)
		if err != nil {
			slog.Warn("record run start failed", "error", err)
		}
		runID = id
	}

	b, err := bot.New(&a.cfg.Discord)
	var rep wisher.Report
	if err == nil {
		err = b.Run(ctx, func(ctx context.Context, g *bot.Guild) error {
			var runErr error
			rep, runErr = fn(ctx, g)
			return runErr
		})
	}

	if a.store != nil && runID != 0 {
		// The signal context may already be done; the ledger update must still land.
		if ferr := a.store.Finish(context.WithoutCancel(ctx), runID, rep, err); ferr != nil {
			slog.Warn("record run finish failed", "error", ferr)
		}
	}
	if err != nil {
		slog.Error("run failed", "kind", kind, "error", err)
		return exitRuntime
	}
	return exitOK
}

func (a *app) holiday(ctx context.Context) int {
	w, release, err := a.newWisher(ctx, true)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return exitRuntime
	}
	defer release()

	if a.opts.dryRun {
		w.DryRun(ctx)
		return exitOK
	}
	return a.onDiscord(ctx, a.ledgerKind("holiday"), func(ctx context.Context, dc wisher.Discord) (wisher.Report, error) {
		return w.HolidayRun(ctx, dc)
	})
}

func (a *app) daily(ctx context.Context) int {
	w, release, err := a.newWisher(ctx, false)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return exitRuntime
	}
	defer release()

	if a.opts.dryRun {
		w.DailyDryRun(ctx)
		return exitOK
	}
	return a.onDiscord(ctx, a.ledgerKind("daily"), func(ctx context.Context, dc wisher.Discord) (wisher.Report, error) {
		return w.DailyRun(ctx, dc)
	})
}

func (a *app) preview(ctx context.Context, userID string) int {
	w, release, err := a.newWisher(ctx, true)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return exitRuntime
	}
	defer release()

	return a.onDiscord(ctx, a.ledgerKind("preview"), func(ctx context.Context, dc wisher.Discord) (wisher.Report, error) {
		return w.Preview(ctx, dc, userID)
	})
}

func (a *app) calendars(ctx context.Context, ids []string) int {
	f, err := holiday.NewFetcher(ctx, &a.cfg.Google, a.loc)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return exitRuntime
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tEVENTS\tCALENDAR")
	for _, r := range f.Probe(ctx, ids, a.date) {
		status := fmt.Sprint(r.Status)
		if r.Status == 0 {
			status = "ERR"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", status, r.Events, r.CalendarID)
		if r.Err != nil {
			slog.Debug("calendar probe failed", "calendar_id", r.CalendarID, "error", r.Err)
		}
	}
	if err := tw.Flush(); err != nil {
		slog.Error("write output failed", "error", err)
		return exitRuntime
	}
	return exitOK
}

func (a *app) runs(ctx context.Context) int {
	if a.store == nil {
		slog.Error("run ledger unavailable", "path", a.cfg.State.DBPath)
		return exitRuntime
	}
	rows, err := a.store.ListRuns(ctx, a.opts.kind, a.opts.limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		return exitRuntime
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tDATE\tSTARTED\tSTATUS\tSUMMARY")
	for _, r := range rows {
		detail := r.Summary
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Date, r.StartedAt.In(a.loc).Format(time.DateTime), r.Status, detail)
	}
	if err := tw.Flush(); err != nil {
		slog.Error("write output failed", "error", err)
		return exitRuntime
	}
	return exitOK
}

func (a *app) logs(ctx context.Context) int {
	if a.store == nil {
		slog.Error("run ledger unavailable", "path", a.cfg.State.DBPath)
		return exitRuntime
	}
	rows, total, err := a.store.ListLogs(ctx, a.opts.runID, a.opts.level, a.opts.limit, a.opts.offset)
	if err != nil {
		slog.Error("list logs failed", "error", err)
		return exitRuntime
	}

	// Oldest first, like a log file.
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.CreatedAt.In(a.loc).Format(time.DateTime), r.Level, r.RunID, r.Msg, r.Attrs)
	}
	if err := tw.Flush(); err != nil {
		slog.Error("write output failed", "error", err)
		return exitRuntime
	}
	fmt.Fprintf(a.stdout, "%d of %d lines\n", len(rows), total)
	return exitOK
}
