// Package decor builds the text, embeds and decorations of greeting messages.
package decor

import (
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"
)

// Emoji is a guild custom emoji.
type Emoji struct {
	ID       string
	Name     string
	Animated bool
}

// Token returns the message form of the emoji, e.g. <:wave:123>.
func (e Emoji) Token() string {
	if e.Animated {
		return "<a:" + e.Name + ":" + e.ID + ">"
	}
	return "<:" + e.Name + ":" + e.ID + ">"
}

// Sticker is a guild sticker. Only ID and Name are needed to send one.
type Sticker struct {
	ID   string
	Name string
}

// Member is a guild member that may receive a DM.
type Member struct {
	ID          string
	DisplayName string
	Bot         bool
}

// Mention returns the <@id> form of the member.
func (m Member) Mention() string { return "<@" + m.ID + ">" }

// GuildInfo carries the branding shown in embeds. IconURL and BannerURL are
// empty when the guild has none.
type GuildInfo struct {
	ID        string
	Name      string
	IconURL   string
	BannerURL string
}

// Mentions selects which mentions in a message may ping.
type Mentions int

const (
	MentionNone Mentions = iota
	MentionEveryone
	MentionUsers
)

// Message is one outgoing channel message or DM.
type Message struct {
	Content  string
	Embeds   []*discordgo.MessageEmbed
	Sticker  *Sticker
	FilePath string // attached as-is, referenced by embeds as attachment://<base name>
	Mentions Mentions
	Silent   bool
}

// Tokens returns the message form of each emoji.
func Tokens(emojis []Emoji) []string {
	out := make([]string, 0, len(emojis))
	for _, e := range emojis {
		if e.Name != "" && e.ID != "" {
			out = append(out, e.Token())
		}
	}
	return out
}

// uniqueNonEmpty keeps the first occurrence of every non-blank string.
func uniqueNonEmpty(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if strings.TrimSpace(it) == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// NormalizeName lowercases name and keeps only letters, digits, '_' and '-'.
func NormalizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SuffixAfterPrefix returns name without a case-insensitive prefix and any
// separators that follow it. Names without the prefix are returned unchanged.
func SuffixAfterPrefix(name, prefix string) string {
	if !hasPrefixFold(name, prefix) {
		return name
	}
	return strings.TrimLeft(name[len(prefix):], " _-:")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// StickerCandidates returns the stickers whose name starts with prefix,
// ignoring case. An empty prefix matches nothing.
func StickerCandidates(stickers []Sticker, prefix string) []Sticker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	var out []Sticker
	for _, s := range stickers {
		if hasPrefixFold(s.Name, prefix) {
			out = append(out, s)
		}
	}
	return out
}
