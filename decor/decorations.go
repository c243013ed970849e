package decor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chaosshowdown/mitsuha/sanitize"
)

const (
	maxPromptEmojis   = 25
	maxPromptStickers = 10
	maxPickedEmojis   = 3
)

type decorationAnswer struct {
	Emojis  []any `json:"emojis"`
	Sticker any   `json:"sticker"`
}

// PickDecorationsByAI lets the model choose up to three distinct emojis and at
// most one sticker for the wish. Only names from the offered lists are
// accepted; anything else in the answer is ignored.
func (w *Writer) PickDecorationsByAI(ctx context.Context, timeOfDay, wish string, emojis []Emoji, stickers []Sticker) ([]Emoji, *Sticker) {
	var emojiNames, stickerNames []string
	for _, e := range emojis[:min(len(emojis), maxPromptEmojis)] {
		if e.Name != "" {
			emojiNames = append(emojiNames, e.Name)
		}
	}
	for _, s := range stickers[:min(len(stickers), maxPromptStickers)] {
		if s.Name != "" {
			stickerNames = append(stickerNames, s.Name)
		}
	}
	if len(emojiNames) == 0 && len(stickerNames) == 0 {
		return nil, nil
	}

	prompt := "Pick up to THREE distinct custom emoji names and optionally ONE sticker name to match a daily server wish. " +
		"You must choose only from the provided lists. If none fit, return an empty list for emojis and null for sticker. " +
		"Never output @everyone, @here, or any mentions.\n\n" +
		fmt.Sprintf("Time of day: %s\n", timeOfDay) +
		fmt.Sprintf("Wish text: %s\n\n", wish) +
		fmt.Sprintf("Available custom emoji names: %s\n", quoteList(emojiNames)) +
		fmt.Sprintf("Available sticker names: %s\n\n", quoteList(stickerNames)) +
		`Return STRICT JSON ONLY in this shape: {"emojis": [string, ...], "sticker": string|null}`

	raw, err := w.Gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("ai decoration pick failed", "error", err)
		return nil, nil
	}
	return parseDecorations(sanitize.Clean(raw), emojis, stickers)
}

func parseDecorations(raw string, emojis []Emoji, stickers []Sticker) ([]Emoji, *Sticker) {
	var ans decorationAnswer
	if !sanitize.FirstJSONObject(raw, &ans) {
		return nil, nil
	}

	var picked []Emoji
	seen := make(map[string]bool)
	for _, v := range ans.Emojis {
		name, ok := v.(string)
		if !ok || seen[name] {
			continue
		}
		for _, e := range emojis {
			if e.Name == name {
				seen[name] = true
				picked = append(picked, e)
				break
			}
		}
		if len(picked) >= maxPickedEmojis {
			break
		}
	}

	var sticker *Sticker
	if name, ok := ans.Sticker.(string); ok && name != "" {
		for i := range stickers {
			if stickers[i].Name == name {
				s := stickers[i]
				sticker = &s
				break
			}
		}
	}
	return picked, sticker
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "'" + it + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
