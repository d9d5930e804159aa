package sanitize

import (
	"strings"
	"unicode"
)

// Words lowercases s and splits it on anything that is not a letter or digit.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MatchPhrases returns the distinct phrases found in text on whole-word
// boundaries, in the order given. Case and punctuation are ignored, so
// "legal" matches "Legal?" but not "illegal".
func MatchPhrases(text string, phrases []string) []string {
	normalized := " " + strings.Join(Words(text), " ") + " "
	seen := make(map[string]bool, len(phrases))
	matched := make([]string, 0)
	for _, p := range phrases {
		phrase := strings.Join(Words(p), " ")
		if phrase == "" || seen[phrase] {
			continue
		}
		seen[phrase] = true
		if strings.Contains(normalized, " "+phrase+" ") {
			matched = append(matched, phrase)
		}
	}
	return matched
}
