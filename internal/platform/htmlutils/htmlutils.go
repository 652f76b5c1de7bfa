// Package htmlutils normalizes the messy HTML fragments RSS feeds ship in
// description and summary fields.
package htmlutils

import (
	"strings"

	"golang.org/x/net/html"
)

// StripTags removes all markup from an HTML fragment, keeping text content.
// Invalid markup degrades gracefully: the tokenizer treats trailing garbage
// as text.
func StripTags(fragment string) string {
	if fragment == "" {
		return ""
	}

	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}

	var sb strings.Builder

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.Write(tokenizer.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			// Block-level boundaries become spaces so adjacent
			// paragraphs do not run together.
			switch string(name) {
			case "p", "br", "div", "li":
				sb.WriteByte(' ')
			}
		}
	}
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and
// trims the result.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanFragment strips markup, normalizes whitespace and truncates to
// maxRunes. Truncation counts runes, not bytes.
func CleanFragment(fragment string, maxRunes int) string {
	cleaned := NormalizeWhitespace(StripTags(fragment))
	if maxRunes <= 0 {
		return cleaned
	}

	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}

	return string(runes[:maxRunes])
}
