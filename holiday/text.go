package holiday

import (
	"strings"

	"golang.org/x/net/html"
)

const maxDescriptionChars = 400

// skipTags is the set of HTML elements whose subtrees are dropped from descriptions.
var skipTags = map[string]bool{
	"script": true,
	"style":  true,
	"a":      true, // "To hide observances, go to Google Calendar Settings" links
}

// plainText parses an event description, which Google Calendar stores as
// loose HTML, and returns its visible text.
func plainText(htmlContent string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlContent))
	var sb strings.Builder
	var skipStack []string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			text := strings.TrimSpace(collapseWhitespace(sb.String()))
			if r := []rune(text); len(r) > maxDescriptionChars {
				text = string(r[:maxDescriptionChars]) + "…"
			}
			return text

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "br" {
				sb.WriteByte('\n')
				continue
			}
			if tt == html.StartTagToken && skipTags[tag] {
				skipStack = append(skipStack, tag)
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if skipTags[tag] && len(skipStack) > 0 {
				for i := len(skipStack) - 1; i >= 0; i-- {
					if skipStack[i] == tag {
						skipStack = append(skipStack[:i], skipStack[i+1:]...)
						break
					}
				}
			}
			if isBlockTag(tag) && len(skipStack) == 0 {
				sb.WriteByte('\n')
			}

		case html.TextToken:
			if len(skipStack) == 0 {
				text := strings.TrimSpace(tokenizer.Token().Data)
				if text != "" {
					sb.WriteString(text)
					sb.WriteByte(' ')
				}
			}
		}
	}
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "li", "tr", "blockquote", "pre", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// collapseWhitespace reduces runs of whitespace to a single space per line
// and drops blank lines.
func collapseWhitespace(s string) string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.Join(strings.Fields(line), " "); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return strings.Join(result, "\n")
}
