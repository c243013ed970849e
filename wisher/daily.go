package wisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chaosshowdown/mitsuha/daily"
	"github.com/chaosshowdown/mitsuha/decor"
)

const maxAllowedEmojis = 25

func (w *Wisher) timeOfDay() string {
	if w.opts.TimeOfDay != "" {
		return w.opts.TimeOfDay
	}
	return daily.TimeOfDay(w.opts.Now.In(daily.Location()))
}

// decorations loads the guild's emojis and stickers. Failures leave the
// greeting undecorated rather than failing the run.
func decorations(ctx context.Context, dc Discord) ([]decor.Emoji, []decor.Sticker) {
	emojis, err := dc.Emojis(ctx)
	if err != nil {
		slog.Warn("fetch guild emojis failed", "error", err)
	}
	stickers, err := dc.Stickers(ctx)
	if err != nil {
		slog.Warn("fetch guild stickers failed", "error", err)
	}
	return emojis, stickers
}

// image returns the asset for the time of day, or "" when it is missing.
func (w *Wisher) image(timeOfDay string) string {
	path := filepath.Join(w.opts.AssetsDir, decor.ImageName(timeOfDay))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("greeting image not found, sending without it", "path", path)
		} else {
			slog.Warn("stat greeting image failed", "path", path, "error", err)
		}
		return ""
	}
	return path
}

// DailyRun posts the time-of-day greeting embed to the channel.
func (w *Wisher) DailyRun(ctx context.Context, dc Discord) (Report, error) {
	tod := w.timeOfDay()
	rep := Report{Kind: "daily", Date: w.opts.Date, TimeOfDay: tod, Test: w.opts.Test}

	info, err := dc.GuildInfo(ctx)
	if err != nil {
		return rep, err
	}

	wish := w.writer.Greeting(ctx, tod)
	emojis, stickers := decorations(ctx, dc)
	allowed := decor.Tokens(emojis[:min(len(emojis), maxAllowedEmojis)])
	wish = w.writer.RewriteWithCustomEmojis(ctx, tod, wish, allowed)

	picked, sticker := w.writer.PickDecorationsByAI(ctx, tod, wish, emojis, stickers)
	rep.Sticker = stickerName(sticker)

	imagePath := w.image(tod)
	imageName := ""
	if imagePath != "" {
		imageName = filepath.Base(imagePath)
	}
	embeds := decor.WishEmbeds(decor.EmbedInput{
		Guild:     info,
		TimeOfDay: tod,
		Text:      wish,
		Emojis:    decor.Tokens(picked),
		ImageFile: imageName,
		Signer:    w.writer.Persona.Name,
		Now:       w.opts.Now,
	})

	if w.opts.Test {
		last := embeds[len(embeds)-1]
		fmt.Fprintf(w.opts.Out, "[TEST] Channel embed (%d embeds)\n  Title: %s\n  Description: %s\n  Sticker: %s\n  Image: %s\n",
			len(embeds), last.Title, last.Description, orNone(rep.Sticker), orNone(imageName))
		return rep, nil
	}

	err = dc.PostChannel(ctx, decor.Message{
		Embeds:   embeds,
		Sticker:  sticker,
		FilePath: imagePath,
		Mentions: decor.MentionNone,
		Silent:   true,
	})
	if err != nil {
		return rep, err
	}
	rep.ChannelPosted = true
	slog.Info("daily greeting posted", "time_of_day", tod, "emojis", len(picked), "sticker", rep.Sticker)
	return rep, nil
}
