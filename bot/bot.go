// Package bot wraps the Discord session used for one greeting run.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chaosshowdown/mitsuha/config"
)

const readyTimeout = 30 * time.Second

// Bot wraps the Discord session.
type Bot struct {
	session *discordgo.Session
	cfg     *config.DiscordConfig
}

// New creates a Bot with the intents needed to list guild members.
func New(cfg *config.DiscordConfig) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.Client = &http.Client{Timeout: time.Duration(cfg.RESTTimeoutSeconds) * time.Second}

	return &Bot{session: session, cfg: cfg}, nil
}

// Run opens the gateway, waits for Ready, calls fn once with the configured
// guild and closes the connection again, whatever fn returns.
func (b *Bot) Run(ctx context.Context, fn func(context.Context, *Guild) error) error {
	ready := make(chan struct{})
	b.session.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
		close(ready)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer func() {
		if err := b.session.Close(); err != nil {
			slog.Warn("close discord session", "error", err)
		}
	}()

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(readyTimeout):
		return errors.New("timed out waiting for discord ready")
	}

	return fn(ctx, NewGuild(b.session, b.cfg))
}
