package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/chaosshowdown/mitsuha/config"
	"github.com/chaosshowdown/mitsuha/decor"
)

// ErrDMForbidden is returned by SendDM when Discord refuses to deliver to the
// user, typically because they disabled DMs from server members.
var ErrDMForbidden = errors.New("direct messages to this user are forbidden")

// Guild performs the REST calls of a run against one guild and channel.
type Guild struct {
	s         *discordgo.Session
	guildID   string
	channelID string
	pageSize  int
}

// NewGuild binds a session to the configured guild and channel.
func NewGuild(s *discordgo.Session, cfg *config.DiscordConfig) *Guild {
	pageSize := cfg.MemberPageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	return &Guild{s: s, guildID: cfg.GuildID, channelID: cfg.ChannelID, pageSize: pageSize}
}

// GuildInfo returns the guild name and its icon and banner URLs.
func (g *Guild) GuildInfo(ctx context.Context) (decor.GuildInfo, error) {
	guild, err := g.s.Guild(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return decor.GuildInfo{}, fmt.Errorf("fetch guild %s: %w", g.guildID, err)
	}
	info := decor.GuildInfo{ID: guild.ID, Name: guild.Name}
	if guild.Icon != "" {
		info.IconURL = discordgo.EndpointGuildIcon(guild.ID, guild.Icon)
	}
	if guild.Banner != "" {
		info.BannerURL = discordgo.EndpointGuildBanner(guild.ID, guild.Banner)
	}
	return info, nil
}

// Emojis returns the guild's custom emojis.
func (g *Guild) Emojis(ctx context.Context) ([]decor.Emoji, error) {
	emojis, err := g.s.GuildEmojis(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild emojis: %w", err)
	}
	out := make([]decor.Emoji, 0, len(emojis))
	for _, e := range emojis {
		if e == nil || e.ID == "" || e.Name == "" {
			continue
		}
		out = append(out, decor.Emoji{ID: e.ID, Name: e.Name, Animated: e.Animated})
	}
	return out, nil
}

func (g *Guild) getJSON(ctx context.Context, url string, v any) error {
	body, err := g.s.Request(http.MethodGet, url, nil, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Stickers returns the guild's stickers.
func (g *Guild) Stickers(ctx context.Context) ([]decor.Sticker, error) {
	var stickers []*discordgo.Sticker
	if err := g.getJSON(ctx, discordgo.EndpointGuild(g.guildID)+"/stickers", &stickers); err != nil {
		return nil, fmt.Errorf("fetch guild stickers: %w", err)
	}
	out := make([]decor.Sticker, 0, len(stickers))
	for _, s := range stickers {
		if s != nil && s.ID != "" {
			out = append(out, decor.Sticker{ID: s.ID, Name: s.Name})
		}
	}
	return out, nil
}

// Sticker fetches any sticker by ID.
func (g *Guild) Sticker(ctx context.Context, id string) (decor.Sticker, error) {
	var s discordgo.Sticker
	if err := g.getJSON(ctx, discordgo.EndpointAPI+"stickers/"+id, &s); err != nil {
		return decor.Sticker{}, fmt.Errorf("fetch sticker %s: %w", id, err)
	}
	return decor.Sticker{ID: s.ID, Name: s.Name}, nil
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func toMember(m *discordgo.Member) (decor.Member, bool) {
	if m == nil || m.User == nil {
		return decor.Member{}, false
	}
	return decor.Member{ID: m.User.ID, DisplayName: displayName(m), Bot: m.User.Bot}, true
}

// Members lists the guild's human members page by page. If the REST listing
// fails, the members cached from the gateway are used instead.
func (g *Guild) Members(ctx context.Context) ([]decor.Member, error) {
	var out []decor.Member
	after := ""
	for {
		page, err := g.s.GuildMembers(g.guildID, after, g.pageSize, discordgo.WithContext(ctx))
		if err != nil {
			slog.Warn("fetch guild members failed, falling back to cached members", "error", err)
			return g.cachedMembers(err)
		}
		for _, m := range page {
			if hm, ok := toMember(m); ok && !hm.Bot {
				out = append(out, hm)
			}
		}
		if len(page) < g.pageSize || page[len(page)-1].User == nil {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (g *Guild) cachedMembers(cause error) ([]decor.Member, error) {
	guild, err := g.s.State.Guild(g.guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild members: %w", cause)
	}
	var out []decor.Member
	for _, m := range guild.Members {
		if hm, ok := toMember(m); ok && !hm.Bot {
			out = append(out, hm)
		}
	}
	return out, nil
}

// User looks up a single user, for previews sent outside the member loop.
func (g *Guild) User(ctx context.Context, id string) (decor.Member, error) {
	u, err := g.s.User(id, discordgo.WithContext(ctx))
	if err != nil {
		return decor.Member{}, fmt.Errorf("fetch user %s: %w", id, err)
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return decor.Member{ID: u.ID, DisplayName: name, Bot: u.Bot}, nil
}

func allowedMentions(m decor.Mentions) *discordgo.MessageAllowedMentions {
	switch m {
	case decor.MentionEveryone:
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone}}
	case decor.MentionUsers:
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}}
	default:
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	}
}

func (g *Guild) send(ctx context.Context, channelID string, msg decor.Message, withSticker bool) error {
	data := &discordgo.MessageSend{
		Content:         msg.Content,
		Embeds:          msg.Embeds,
		AllowedMentions: allowedMentions(msg.Mentions),
	}
	if msg.Silent {
		data.Flags = discordgo.MessageFlagsSuppressNotifications
	}
	if withSticker && msg.Sticker != nil {
		data.StickerIDs = []string{msg.Sticker.ID}
	}
	if msg.FilePath != "" {
		f, err := os.Open(msg.FilePath)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		defer f.Close()
		data.Files = []*discordgo.File{{
			Name:        filepath.Base(msg.FilePath),
			ContentType: contentType(msg.FilePath),
			Reader:      f,
		}}
	}
	_, err := g.s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	return err
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

// sendWithFallback sends msg with its sticker. When Discord rejects the
// message, it is sent again without the sticker.
func (g *Guild) sendWithFallback(ctx context.Context, channelID string, msg decor.Message) error {
	err := g.send(ctx, channelID, msg, true)
	var restErr *discordgo.RESTError
	if err != nil && msg.Sticker != nil && errors.As(err, &restErr) {
		slog.Warn("sticker send failed, retrying without sticker", "channel_id", channelID, "sticker", msg.Sticker.Name, "error", err)
		err = g.send(ctx, channelID, msg, false)
	}
	return err
}

// PostChannel posts msg to the configured channel, dropping the sticker if
// Discord rejects it.
func (g *Guild) PostChannel(ctx context.Context, msg decor.Message) error {
	if err := g.sendWithFallback(ctx, g.channelID, msg); err != nil {
		return fmt.Errorf("post to channel %s: %w", g.channelID, err)
	}
	return nil
}

// SendDM sends msg to a user's DM channel, with the same sticker fallback as
// PostChannel. Errors meaning the user does not accept DMs wrap ErrDMForbidden.
func (g *Guild) SendDM(ctx context.Context, userID string, msg decor.Message) error {
	ch, err := g.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify(fmt.Errorf("open dm channel: %w", err))
	}
	if err := g.sendWithFallback(ctx, ch.ID, msg); err != nil {
		return classify(fmt.Errorf("send dm: %w", err))
	}
	return nil
}

// classify marks errors that mean "this user cannot receive DMs".
func classify(err error) error {
	if IsForbidden(err) {
		return fmt.Errorf("%w: %w", ErrDMForbidden, err)
	}
	return err
}

// IsForbidden reports whether err is Discord's "cannot send messages to this
// user" error or any other HTTP 403 response.
func IsForbidden(err error) bool {
	if errors.Is(err, ErrDMForbidden) {
		return true
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}
