// Package wisher runs the holiday, daily and preview greetings against a guild.
package wisher

import (
	"context"
	"io"
	"os"
	"time"

	"cloud.google.com/go/civil"

	"github.com/chaosshowdown/mitsuha/decor"
	"github.com/chaosshowdown/mitsuha/holiday"
)

// Discord is the connection handle a run operates on.
type Discord interface {
	GuildInfo(ctx context.Context) (decor.GuildInfo, error)
	Emojis(ctx context.Context) ([]decor.Emoji, error)
	Stickers(ctx context.Context) ([]decor.Sticker, error)
	Sticker(ctx context.Context, id string) (decor.Sticker, error)
	Members(ctx context.Context) ([]decor.Member, error)
	User(ctx context.Context, id string) (decor.Member, error)
	PostChannel(ctx context.Context, msg decor.Message) error
	SendDM(ctx context.Context, userID string, msg decor.Message) error
}

// Calendar returns the special days of a date.
type Calendar interface {
	SpecialDays(ctx context.Context, d civil.Date) []holiday.Day
}

// Options configure a Wisher.
type Options struct {
	Date      civil.Date
	Now       time.Time // used for time of day and embed timestamps
	TimeOfDay string    // overrides the bucket derived from Now
	Test      bool      // print intended actions instead of sending

	Sticker      decor.StickerOptions
	StatePath    string
	AssetsDir    string
	SuccessDelay time.Duration
	FailureDelay time.Duration

	Out io.Writer
}

// Wisher performs one greeting run.
type Wisher struct {
	writer *decor.Writer
	cal    Calendar
	opts   Options
	sleep  func(context.Context, time.Duration)
}

// New creates a Wisher. cal may be nil for runs that need no special days.
func New(writer *decor.Writer, cal Calendar, opts Options) *Wisher {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &Wisher{writer: writer, cal: cal, opts: opts, sleep: sleepCtx}
}

// Report summarizes a run.
type Report struct {
	Kind          string     `json:"kind"`
	Date          civil.Date `json:"date"`
	SpecialDays   []string   `json:"special_days,omitempty"`
	TimeOfDay     string     `json:"time_of_day,omitempty"`
	Sticker       string     `json:"sticker,omitempty"`
	ChannelPosted bool       `json:"channel_posted"`
	Members       int        `json:"members"`
	Delivered     int        `json:"delivered"`
	Blocked       int        `json:"blocked"`
	NewlyBlocked  int        `json:"newly_blocked"`
	Failed        int        `json:"failed"`
	Test          bool       `json:"test,omitempty"`
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Wisher) specialDays(ctx context.Context) ([]holiday.Day, []string) {
	if w.cal == nil {
		return nil, nil
	}
	days := w.cal.SpecialDays(ctx, w.opts.Date)
	return days, holiday.Names(days)
}

func descriptions(days []holiday.Day) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Description)
	}
	return out
}

func stickerName(s *decor.Sticker) string {
	if s == nil {
		return ""
	}
	return s.Name
}
