package decor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/chaosshowdown/mitsuha/llm"
	"github.com/chaosshowdown/mitsuha/persona"
	"github.com/chaosshowdown/mitsuha/sanitize"
)

// Writer generates greeting text in the persona's voice.
type Writer struct {
	Gen     llm.Generator
	Persona persona.Persona
}

func displayDate(d civil.Date) string {
	return d.In(time.UTC).Format("02 Jan 2006")
}

// DMWish generates one universal DM body; only the greeting name changes per member.
func (w *Writer) DMWish(ctx context.Context, days []string, d civil.Date) string {
	joined := strings.Join(days, ", ")
	prompt := w.Persona.Text + "\n\n" +
		"Write ONE heartwarming, elaborate, human-sounding DM wish that can be sent to any member. " +
		"Make it feel like you're talking directly to one person, warmly and a bit shy, like you're trying to make a new friend. " +
		"Style: short poem / lyrical message (not rhymes required), with cute decorative lines. " +
		"No hashtags. No @everyone. Use emojis and decorations, but keep it tasteful (about 5-10 emojis total). " +
		"Prefer festival/holiday-relevant emojis (based on the holiday names). " +
		fmt.Sprintf("End with a tiny signature like '%s'.\n\n", w.Persona.Signature) +
		fmt.Sprintf("Date (IST): %s\n", displayDate(d)) +
		fmt.Sprintf("Today's globally relevant holiday/special day(s): %s\n\n", joined) +
		"Message requirements:\n" +
		"- Mention the holiday name(s) naturally\n" +
		"- Make the reader feel seen and special (but keep it wholesome)\n" +
		"- Invite them to say hi / be friends\n" +
		"- 8-14 short lines (not one huge paragraph)\n" +
		"- Include 1-2 decorative separators like '⋆｡°✩' or '╰(*´︶`*)╯'\n" +
		"- Keep it under 1800 characters\n"

	fallback := fmt.Sprintf("Happy %s! Hope your day feels a little brighter. %s", joined, w.Persona.Signature)
	out := llm.GenerateWithRetry(ctx, w.Gen, prompt, fallback)
	// DMs go to one person; never let a stray mention through.
	return sanitize.StripMentions(out)
}

// ChannelWish generates the channel announcement. The first line is always @everyone.
func (w *Writer) ChannelWish(ctx context.Context, days []string, d civil.Date) string {
	joined := strings.Join(days, ", ")
	prompt := w.Persona.Text + "\n\n" +
		"Write ONE channel announcement message for the whole Discord server audience. " +
		"It must start with '@everyone' on the first line. " +
		"Make it warm, inclusive, and make everyone feel special together. " +
		"No hashtags. Keep emojis to 0-3 max. " +
		fmt.Sprintf("End with a tiny signature like '%s'.\n\n", w.Persona.Signature) +
		fmt.Sprintf("Date (IST): %s\n", displayDate(d)) +
		fmt.Sprintf("Today's globally relevant holiday/special day(s): %s\n\n", joined) +
		"Message requirements:\n" +
		"- Mention the holiday name(s) naturally\n" +
		"- Speak to the whole community (plural: everyone / you all / friends)\n" +
		"- 4-8 short lines (not one huge paragraph)\n" +
		"- Keep it under 1200 characters\n"

	fallback := fmt.Sprintf("@everyone\nHappy %s! Wishing you all a bright day together. %s", joined, w.Persona.Signature)
	return EnsureEveryone(llm.GenerateWithRetry(ctx, w.Gen, prompt, fallback))
}

// EnsureEveryone prefixes an @everyone line unless the first line already starts with it.
func EnsureEveryone(text string) string {
	text = strings.TrimSpace(text)
	first, _, _ := strings.Cut(text, "\n")
	if strings.HasPrefix(strings.TrimSpace(first), "@everyone") {
		return text
	}
	return "@everyone\n" + text
}

// WithoutEveryone removes @everyone for places where it must not ping, such as previews.
func WithoutEveryone(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "@everyone", ""))
}

// DayDescription generates a short explanation of what today's special days are about.
func (w *Writer) DayDescription(ctx context.Context, days []string, notes []string, d civil.Date) string {
	prompt := "In 2-3 friendly sentences, explain what the following special day(s) are about and how people " +
		"usually celebrate them. No mentions, no hashtags, no emojis.\n\n" +
		fmt.Sprintf("Date (IST): %s\n", displayDate(d)) +
		fmt.Sprintf("Special day(s): %s\n", strings.Join(days, ", "))
	if ctxNotes := uniqueNonEmpty(notes); len(ctxNotes) > 0 {
		prompt += "Calendar notes: " + strings.Join(ctxNotes, " | ") + "\n"
	}
	fallback := fmt.Sprintf("Today is %s.", strings.Join(days, " and "))
	return sanitize.Clean(llm.GenerateWithRetry(ctx, w.Gen, prompt, fallback))
}

// Greeting generates the plain time-of-day server wish. Emojis are stripped;
// guild emojis are added later.
func (w *Writer) Greeting(ctx context.Context, timeOfDay string) string {
	prompt := fmt.Sprintf("Write a cheerful %s wish for a Discord server. ", timeOfDay) +
		"Keep it friendly and short (1-2 paragraphs max). Do not add emojis (they will be added later). " +
		"Do NOT mention or tag any users or roles. " +
		"Do NOT use @everyone or @here. " +
		"Do NOT include any user names. " +
		"Avoid addressing it as 'everyone'."
	fallback := fmt.Sprintf("Wishing you a lovely %s! Stay safe, stay strong, and have a beautiful rest ahead.", timeOfDay)
	return sanitize.Clean(llm.GenerateWithRetry(ctx, w.Gen, prompt, fallback))
}

// RewriteWithCustomEmojis asks the model to decorate text using only the
// allowed custom emoji tokens. Any other emoji in the answer is removed.
// With no allowed tokens the cleaned input is returned without a model call.
func (w *Writer) RewriteWithCustomEmojis(ctx context.Context, timeOfDay, text string, allowed []string) string {
	text = sanitize.Clean(text)
	allowed = uniqueNonEmpty(allowed)
	if len(allowed) == 0 {
		return text
	}
	prompt := "Rewrite this Discord server wish to be decorative using ONLY the provided custom emoji tokens. " +
		"Do not use any Unicode emojis at all. " +
		"Do not mention any users or roles. Do not use @everyone or @here. " +
		"Avoid addressing the message as 'everyone'. Keep it friendly and not annoying.\n\n" +
		fmt.Sprintf("Time of day: %s\n\n", timeOfDay) +
		fmt.Sprintf("Allowed custom emoji tokens (use only these): %s\n\n", strings.Join(allowed, " ")) +
		fmt.Sprintf("Wish to rewrite:\n%s\n\n", text) +
		"Return ONLY the rewritten wish text."

	out := llm.GenerateWithRetry(ctx, w.Gen, prompt, text)
	out = sanitize.Clean(out)
	return strings.TrimSpace(sanitize.EnforceAllowedCustomEmojis(out, allowed))
}
