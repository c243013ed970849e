package decor

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/chaosshowdown/mitsuha/persona"
	"github.com/chaosshowdown/mitsuha/sanitize"
)

// Theme is the look of a time-of-day embed.
type Theme struct {
	Color    int
	Emoji    string
	Greeting string
}

var themes = map[string]Theme{
	"Morning":   {Color: 0xFFD700, Emoji: "🌅", Greeting: "Rise & Shine!"},
	"Noon":      {Color: 0xFF6B35, Emoji: "☀️", Greeting: "Midday Vibes!"},
	"Afternoon": {Color: 0xFFA500, Emoji: "🌤️", Greeting: "Afternoon Bliss!"},
	"Evening":   {Color: 0x9B59B6, Emoji: "🌆", Greeting: "Evening Serenity!"},
	"Night":     {Color: 0x2C3E50, Emoji: "🌙", Greeting: "Sweet Dreams!"},
}

// ThemeFor returns the theme of a time-of-day bucket, defaulting to Morning.
func ThemeFor(timeOfDay string) Theme {
	if t, ok := themes[timeOfDay]; ok {
		return t
	}
	return themes["Morning"]
}

// ImageName is the asset file shown in the daily embed, e.g. good-morning.png.
func ImageName(timeOfDay string) string {
	return "good-" + strings.ToLower(timeOfDay) + ".png"
}

const sparkleLine = "･ﾟ✧ ━━━━━━━━━━━━━━ ✧ﾟ･"

// EmbedInput is what a wish embed is built from.
type EmbedInput struct {
	Guild     GuildInfo
	TimeOfDay string
	Text      string
	Emojis    []string // custom emoji tokens
	ImageFile string   // attachment name, empty for none
	Signer    string   // name in the footer, persona.Name when empty
	Now       time.Time
}

func (in EmbedInput) signer() string {
	if in.Signer != "" {
		return in.Signer
	}
	return persona.Name
}

func orDefault(items []string, i int, def string) string {
	if i < len(items) {
		return items[i]
	}
	return def
}

// bannerEmbed returns the guild banner embed, or nil when the guild has no banner.
func bannerEmbed(g GuildInfo, color int) *discordgo.MessageEmbed {
	if g.BannerURL == "" {
		return nil
	}
	return &discordgo.MessageEmbed{
		Color: color,
		Image: &discordgo.MessageEmbedImage{URL: g.BannerURL},
	}
}

func brand(e *discordgo.MessageEmbed, in EmbedInput, footer string) {
	e.Author = &discordgo.MessageEmbedAuthor{Name: "『 " + in.Guild.Name + " 』", IconURL: in.Guild.IconURL}
	e.Footer = &discordgo.MessageEmbedFooter{Text: footer, IconURL: in.Guild.IconURL}
	if in.Guild.IconURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: in.Guild.IconURL}
	}
	if in.ImageFile != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + in.ImageFile}
	}
	if !in.Now.IsZero() {
		e.Timestamp = in.Now.Format(time.RFC3339)
	}
}

// WishEmbeds builds the daily greeting: an optional banner embed followed by
// the main wish embed.
func WishEmbeds(in EmbedInput) []*discordgo.MessageEmbed {
	theme := ThemeFor(in.TimeOfDay)
	emojis := uniqueNonEmpty(in.Emojis)

	var embeds []*discordgo.MessageEmbed
	if b := bannerEmbed(in.Guild, theme.Color); b != nil {
		embeds = append(embeds, b)
	}

	emojiRow := theme.Emoji + " ✨ 💫 🌟"
	if len(emojis) > 0 {
		emojiRow = strings.Join(emojis[:min(len(emojis), 4)], " ")
	}

	main := &discordgo.MessageEmbed{
		Color: theme.Color,
		Title: fmt.Sprintf("%s ─ %s 𝑮𝒐𝒐𝒅 %s %s ─ %s",
			orDefault(emojis, 0, "✦"), theme.Emoji, in.TimeOfDay, theme.Emoji, orDefault(emojis, 1, "✦")),
		Description: strings.Join([]string{
			sparkleLine,
			"",
			fmt.Sprintf("%s **%s** %s", theme.Emoji, theme.Greeting, theme.Emoji),
			"",
			sanitize.Clean(in.Text),
			"",
			sparkleLine,
			"",
			emojiRow,
		}, "\n"),
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "💝 ── Today's Blessing ── 💝",
			Value: fmt.Sprintf("> *May your %s be filled with joy and positivity!*", strings.ToLower(in.TimeOfDay)),
		}},
	}
	brand(main, in, fmt.Sprintf("✿ %s • %s ✿ • Happy %s!", in.signer(), in.Guild.Name, in.TimeOfDay))
	return append(embeds, main)
}

// Discord's limits on embed title and field value length.
const (
	maxTitle      = 256
	maxFieldValue = 1024
)

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// occasionColor is used for special-day embeds regardless of time of day.
const occasionColor = 0xFF69B4

// OccasionEmbeds builds the special-day embed previewed to a single user: the
// channel wish (without @everyone) plus a short description of the day.
func OccasionEmbeds(in EmbedInput, days []string, description string) []*discordgo.MessageEmbed {
	theme := ThemeFor(in.TimeOfDay)
	emojis := uniqueNonEmpty(in.Emojis)

	var embeds []*discordgo.MessageEmbed
	if b := bannerEmbed(in.Guild, occasionColor); b != nil {
		embeds = append(embeds, b)
	}

	title := "Special Day"
	if len(days) > 0 {
		title = strings.Join(days, " • ")
	}
	body := []string{sparkleLine, "", WithoutEveryone(in.Text), "", sparkleLine}
	if len(emojis) > 0 {
		body = append(body, "", strings.Join(emojis[:min(len(emojis), 4)], " "))
	}

	left, right := orDefault(emojis, 0, "✦")+" ─ 🎉 ", " 🎉 ─ "+orDefault(emojis, 1, "✦")
	room := maxTitle - utf8.RuneCountInString(left+right)
	main := &discordgo.MessageEmbed{
		Color:       occasionColor,
		Title:       left + clipRunes(title, room) + right,
		Description: strings.Join(body, "\n"),
	}
	if d := strings.TrimSpace(description); d != "" {
		main.Fields = append(main.Fields, &discordgo.MessageEmbedField{
			Name:  "📖 ── About Today ── 📖",
			Value: clipRunes("> "+strings.ReplaceAll(d, "\n", "\n> "), maxFieldValue),
		})
	}
	brand(main, in, fmt.Sprintf("✿ %s • %s ✿ • Have a lovely %s %s", in.signer(), in.Guild.Name, strings.ToLower(in.TimeOfDay), theme.Emoji))
	return append(embeds, main)
}
