package wisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/chaosshowdown/mitsuha/bot"
	"github.com/chaosshowdown/mitsuha/decor"
	"github.com/chaosshowdown/mitsuha/deliverystate"
)

// HolidayRun posts the special-day wish to the channel and DMs every human
// member. A day without special days is a normal, empty run.
func (w *Wisher) HolidayRun(ctx context.Context, dc Discord) (Report, error) {
	rep := Report{Kind: "holiday", Date: w.opts.Date, Test: w.opts.Test}

	_, names := w.specialDays(ctx)
	if len(names) == 0 {
		slog.Info("no special day found", "date", w.opts.Date)
		return rep, nil
	}
	rep.SpecialDays = names
	slog.Info("found special days", "date", w.opts.Date, "days", names)

	dmBody := w.writer.DMWish(ctx, names, w.opts.Date)
	channelWish := w.writer.ChannelWish(ctx, names, w.opts.Date)
	slog.Info("generated wishes", "dm_len", len(dmBody), "channel_len", len(channelWish))

	var sticker *decor.Sticker
	if s, ok := w.writer.ResolveSticker(ctx, dc, w.opts.Sticker, names, w.opts.Date); ok {
		sticker = &s
		rep.Sticker = s.Name
	}

	post := decor.Message{Content: channelWish, Sticker: sticker, Mentions: decor.MentionEveryone}
	if w.opts.Test {
		fmt.Fprintf(w.opts.Out, "[TEST] Channel message (sticker: %s):\n%s\n\n", orNone(stickerName(sticker)), channelWish)
	} else if err := dc.PostChannel(ctx, post); err != nil {
		slog.Error("post channel wish failed", "error", err)
	} else {
		rep.ChannelPosted = true
	}

	members, err := dc.Members(ctx)
	if err != nil {
		return rep, fmt.Errorf("list members: %w", err)
	}

	tracker := deliverystate.Load(w.opts.StatePath)
	newly := w.deliver(ctx, dc, members, dmBody, tracker, &rep)

	if w.opts.Test {
		fmt.Fprintf(w.opts.Out, "[TEST] Would DM %d members\n", rep.Members)
		return rep, nil
	}

	if err := tracker.Save(); err != nil {
		slog.Warn("save delivery state failed", "path", tracker.Path(), "error", err)
	}

	if notice := decor.BlockedNotice(newly); notice != "" {
		if err := dc.PostChannel(ctx, decor.Message{Content: notice, Mentions: decor.MentionUsers}); err != nil {
			slog.Error("post blocked notice failed", "error", err)
		}
	}

	slog.Info("holiday run finished",
		"members", rep.Members,
		"delivered", rep.Delivered,
		"blocked", rep.Blocked,
		"newly_blocked", rep.NewlyBlocked,
		"failed", rep.Failed,
	)
	return rep, nil
}

// deliver DMs each human member in order, pausing after every attempt, and
// records the outcome in tracker. It returns the mentions of members whose
// DMs failed for the first time.
func (w *Wisher) deliver(ctx context.Context, dc Discord, members []decor.Member, body string, tracker *deliverystate.Tracker, rep *Report) []string {
	var newly []string
	for _, m := range members {
		if m.Bot {
			continue
		}
		if ctx.Err() != nil {
			slog.Warn("delivery interrupted", "error", ctx.Err(), "remaining_from", m.ID)
			break
		}
		rep.Members++

		text := decor.PersonalizeDM(body, m.DisplayName)
		if w.opts.Test {
			fmt.Fprintf(w.opts.Out, "[TEST] DM to %s (%s), %d chars\n", m.DisplayName, m.ID, len(text))
			continue
		}

		id, idErr := strconv.ParseUint(m.ID, 10, 64)
		if idErr != nil {
			slog.Warn("member id is not numeric, outcome not tracked", "member_id", m.ID)
		}

		err := dc.SendDM(ctx, m.ID, decor.Message{Content: text})
		switch {
		case err == nil:
			rep.Delivered++
			if idErr == nil {
				tracker.RecordSuccess(id)
			}
			w.sleep(ctx, w.opts.SuccessDelay)
		case errors.Is(err, bot.ErrDMForbidden):
			rep.Blocked++
			if idErr == nil && tracker.RecordFailure(id) {
				rep.NewlyBlocked++
				newly = append(newly, m.Mention())
			}
			slog.Debug("dm forbidden", "member_id", m.ID)
			w.sleep(ctx, w.opts.FailureDelay)
		default:
			rep.Failed++
			slog.Error("dm failed", "member_id", m.ID, "error", err)
			w.sleep(ctx, w.opts.FailureDelay)
		}
	}
	return newly
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
