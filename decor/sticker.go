package decor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/chaosshowdown/mitsuha/daily"
)

const maxStickerCandidates = 100

// PickStickerByAI asks the model to pick the candidate whose name best fits
// the special days. The answer may be the full name or the part after prefix.
// It returns false when the model answers NONE, fails, or names no candidate.
func (w *Writer) PickStickerByAI(ctx context.Context, candidates []Sticker, prefix string, days []string, d civil.Date) (Sticker, bool) {
	if len(candidates) > maxStickerCandidates {
		candidates = candidates[:maxStickerCandidates]
	}
	var lines []string
	for _, s := range candidates {
		if s.Name == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s  (suffix: '%s')", s.Name, SuffixAfterPrefix(s.Name, prefix)))
	}
	if len(lines) == 0 {
		return Sticker{}, false
	}

	prompt := "You are selecting ONE Discord sticker to attach to a server greeting.\n" +
		"Pick the sticker whose NAME best matches the vibe for today's holiday/special day(s).\n" +
		"Rules:\n" +
		"- Output ONLY the sticker name (exactly as listed), nothing else.\n" +
		"- If none fit, output 'NONE'.\n\n" +
		fmt.Sprintf("Date (IST): %s\n", displayDate(d)) +
		fmt.Sprintf("Holiday/special day(s): %s\n\n", strings.Join(days, ", ")) +
		"Sticker candidates:\n" + strings.Join(lines, "\n")

	answer, err := w.Gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("ai sticker selection failed", "error", err)
		return Sticker{}, false
	}
	return matchSticker(answer, candidates, prefix)
}

func matchSticker(answer string, candidates []Sticker, prefix string) (Sticker, bool) {
	choice := strings.Trim(strings.TrimSpace(answer), `"'`)
	if choice == "" || strings.EqualFold(choice, "NONE") {
		return Sticker{}, false
	}
	norm := NormalizeName(choice)
	for _, s := range candidates {
		if s.Name != "" && NormalizeName(s.Name) == norm {
			return s, true
		}
	}
	for _, s := range candidates {
		if s.Name != "" && NormalizeName(SuffixAfterPrefix(s.Name, prefix)) == norm {
			return s, true
		}
	}
	return Sticker{}, false
}

// StickerSource looks up guild stickers.
type StickerSource interface {
	Stickers(ctx context.Context) ([]Sticker, error)
	Sticker(ctx context.Context, id string) (Sticker, error)
}

// StickerOptions selects how the day's sticker is chosen.
type StickerOptions struct {
	ID       string // explicit sticker, bypasses selection
	Prefix   string
	PickMode string // "daily" or "ai"
}

// ResolveSticker returns the sticker for d. An explicit ID wins; otherwise
// the prefix candidates are offered to the model in "ai" mode and the daily
// pick is used when that yields nothing. Lookup failures mean no sticker.
func (w *Writer) ResolveSticker(ctx context.Context, src StickerSource, opts StickerOptions, days []string, d civil.Date) (Sticker, bool) {
	if opts.ID != "" {
		s, err := src.Sticker(ctx, opts.ID)
		if err != nil {
			slog.Warn("fetch sticker failed", "sticker_id", opts.ID, "error", err)
			return Sticker{}, false
		}
		return s, true
	}
	if strings.TrimSpace(opts.Prefix) == "" {
		return Sticker{}, false
	}

	all, err := src.Stickers(ctx)
	if err != nil {
		slog.Warn("fetch guild stickers failed", "error", err)
		return Sticker{}, false
	}
	candidates := StickerCandidates(all, opts.Prefix)
	if len(candidates) == 0 {
		slog.Info("no guild stickers match prefix", "prefix", opts.Prefix)
		return Sticker{}, false
	}

	if opts.PickMode == "ai" && w.Gen != nil {
		if s, ok := w.PickStickerByAI(ctx, candidates, strings.TrimSpace(opts.Prefix), days, d); ok {
			return s, true
		}
	}
	return daily.Pick(d, candidates)
}
