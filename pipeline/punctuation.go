package pipeline

import (
	"strings"
	"unicode"
)

// spokenMarks lists spoken punctuation, longest phrases first so
// "exclamation point" is tried before any shorter suffix.
var spokenMarks = []struct {
	phrase string
	mark   string
}{
	{"exclamation point", "!"},
	{"exclamation mark", "!"},
	{"question mark", "?"},
	{"full stop", "."},
	{"semi colon", ";"},
	{"semicolon", ";"},
	{"period", "."},
	{"comma", ","},
	{"colon", ":"},
}

// TranslatePunctuation converts spoken punctuation. An utterance that is
// only a punctuation phrase becomes the mark itself; a trailing phrase is
// replaced by its mark appended to the preceding text. A phrase already
// followed by its own mark ("period.", "comma,") is literal text that was
// translated before, and is left alone.
func TranslatePunctuation(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = strings.ToLower(strings.TrimFunc(w, isEnginePunct))
	}

	for _, m := range spokenMarks {
		phrase := strings.Fields(m.phrase)
		n := len(phrase)
		if n > len(words) || !equalWords(norm[len(norm)-n:], phrase) {
			continue
		}
		if strings.HasSuffix(words[len(words)-1], m.mark) {
			return text
		}
		if n == len(words) {
			return m.mark
		}
		rest := strings.Join(words[:len(words)-n], " ")
		rest = strings.TrimRightFunc(rest, isEnginePunct)
		if rest == "" {
			return m.mark
		}
		return rest + m.mark
	}
	return text
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isEnginePunct matches punctuation a recognizer may attach to a spoken
// punctuation word ("Period." or "comma,").
func isEnginePunct(r rune) bool {
	return strings.ContainsRune(".,!?;:", r)
}

// IsPunctuationOnly reports whether text has no letters or digits.
func IsPunctuationOnly(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
