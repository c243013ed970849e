package wisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaosshowdown/mitsuha/daily"
	"github.com/chaosshowdown/mitsuha/decor"
)

const (
	previewEmojis = 4
	previewPause  = time.Second
)

const previewHeader = "**[Server Wish Preview]** this is how the channel embed would look:"

// Preview sends the day's personal DM and the channel embed to a single user.
func (w *Wisher) Preview(ctx context.Context, dc Discord, userID string) (Report, error) {
	rep := Report{Kind: "preview", Date: w.opts.Date, Test: w.opts.Test}

	days, names := w.specialDays(ctx)
	if len(names) == 0 {
		slog.Info("no special day found, nothing to preview", "date", w.opts.Date)
		return rep, nil
	}
	rep.SpecialDays = names

	dmBody := w.writer.DMWish(ctx, names, w.opts.Date)
	channelWish := w.writer.ChannelWish(ctx, names, w.opts.Date)
	description := w.writer.DayDescription(ctx, names, descriptions(days), w.opts.Date)

	info, err := dc.GuildInfo(ctx)
	if err != nil {
		return rep, err
	}
	emojis, _ := decorations(ctx, dc)
	picked := daily.Sample(w.opts.Date, emojis, previewEmojis)

	var sticker *decor.Sticker
	if s, ok := w.writer.ResolveSticker(ctx, dc, w.opts.Sticker, names, w.opts.Date); ok {
		sticker = &s
		rep.Sticker = s.Name
	}

	user, err := dc.User(ctx, userID)
	if err != nil {
		return rep, err
	}
	rep.Members = 1

	dm := decor.PersonalizePreviewDM(dmBody, user.DisplayName, names, description)
	embeds := decor.OccasionEmbeds(decor.EmbedInput{
		Guild:     info,
		TimeOfDay: w.timeOfDay(),
		Text:      channelWish,
		Emojis:    decor.Tokens(picked),
		Signer:    w.writer.Persona.Name,
		Now:       w.opts.Now,
	}, names, description)

	if w.opts.Test {
		fmt.Fprintf(w.opts.Out, "[TEST] Preview DM to %s (%s):\n%s\n\n[TEST] Preview embed: %s (sticker: %s)\n",
			user.DisplayName, user.ID, dm, embeds[len(embeds)-1].Title, orNone(rep.Sticker))
		return rep, nil
	}

	if err := dc.SendDM(ctx, user.ID, decor.Message{Content: dm}); err != nil {
		slog.Error("preview dm failed", "user_id", user.ID, "error", err)
		rep.Failed++
	} else {
		rep.Delivered++
	}

	w.sleep(ctx, previewPause)

	err = dc.SendDM(ctx, user.ID, decor.Message{Content: previewHeader, Embeds: embeds, Sticker: sticker})
	if err != nil {
		slog.Error("preview embed failed", "user_id", user.ID, "error", err)
		rep.Failed++
	}
	if rep.Failed == 2 {
		return rep, fmt.Errorf("preview to %s: %w", user.ID, err)
	}
	return rep, nil
}
