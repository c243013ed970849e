// Package sanitize cleans model output before it is re-sent to Discord.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	mentionRE     = regexp.MustCompile(`<@[!&]?\d+>`)
	customEmojiRE = regexp.MustCompile(`<a?:[A-Za-z0-9_~]+:\d+>`)
)

// StripMentions defuses @everyone/@here and removes user and role mentions.
func StripMentions(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "@everyone", "everyone")
	text = strings.ReplaceAll(text, "@here", "here")
	text = mentionRE.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "@", "")
	return strings.TrimSpace(text)
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF, // pictographs, regional indicators
		r >= 0x2600 && r <= 0x26FF,
		r >= 0x2700 && r <= 0x27BF,
		r >= 0xFE00 && r <= 0xFE0F:
		return true
	}
	return false
}

// StripUnicodeEmojis removes most emoji and pictograph ranges. Server custom
// emoji tokens such as <:name:id> are plain ASCII and survive.
func StripUnicodeEmojis(text string) string {
	return strings.Map(func(r rune) rune {
		if isEmojiRune(r) {
			return -1
		}
		return r
	}, text)
}

// Clean strips mentions and Unicode emojis and trims the result.
func Clean(text string) string {
	return strings.TrimSpace(StripUnicodeEmojis(StripMentions(text)))
}

// EnforceAllowedCustomEmojis drops every custom emoji token not in allowed.
func EnforceAllowedCustomEmojis(text string, allowed []string) string {
	if text == "" {
		return ""
	}
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) != "" {
			set[a] = true
		}
	}
	return customEmojiRE.ReplaceAllStringFunc(text, func(tok string) string {
		if set[tok] {
			return tok
		}
		return ""
	})
}

// FirstJSONObject decodes the span between the first '{' and the last '}'
// into v. It reports false when there is no such span or it does not decode.
func FirstJSONObject(text string, v any) bool {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}
