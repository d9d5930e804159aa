// Package sanitize cleans free text before it is stored or sent to a lead.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

var entities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&#39;", "'")

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entities.Replace(result)
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Message prepares generated text for delivery to a lead: markup is removed,
// runs of spaces collapse, wrapping quotes are dropped and the result is cut
// to maxRunes on a word boundary when possible. maxRunes <= 0 disables the cut.
func Message(s string, maxRunes int) string {
	out := StripHTML(strings.ReplaceAll(s, "\r\n", "\n"))
	out = spaceRegex.ReplaceAllString(out, " ")
	out = blankLines.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)
	out = strings.Trim(out, "\"'“”")
	out = strings.TrimSpace(out)

	if maxRunes <= 0 || utf8.RuneCountInString(out) <= maxRunes {
		return out
	}
	runes := []rune(out)[:maxRunes]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, " \n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
