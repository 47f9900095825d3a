package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Capitalize applies the sentence-case policy. The first word is
// capitalized when capitalizeStart is set and lowercased otherwise. Words
// following . ! ? are capitalized. Protected terms in either position are
// rendered uppercase; words with internal capitals and the pronoun I keep
// their case.
func Capitalize(text string, capitalizeStart bool, protected func(string) bool) string {
	if protected == nil {
		protected = func(string) bool { return false }
	}
	words := strings.Split(text, " ")
	first := true
	sentenceStart := false
	for i, w := range words {
		if w == "" || !hasLetter(w) {
			if endsSentence(w) {
				sentenceStart = true
			}
			continue
		}
		switch {
		case protected(w):
			if first || sentenceStart {
				words[i] = strings.ToUpper(w)
			}
		case keepCase(w):
		case first && capitalizeStart, sentenceStart:
			words[i] = upperFirst(w)
		case first:
			words[i] = lowerFirst(w)
		}
		first = false
		sentenceStart = endsSentence(w)
	}
	return strings.Join(words, " ")
}

func hasLetter(w string) bool {
	for _, r := range w {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]’”`)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
}

// keepCase is true for words whose casing carries meaning: internal
// capitals (iPhone, McDonald, NASA) and the pronoun I.
func keepCase(w string) bool {
	core := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
	if core == "I" || strings.HasPrefix(core, "I'") || strings.HasPrefix(core, "I’") {
		return true
	}
	for i, r := range core {
		if i > 0 && unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// upperFirst uppercases the first letter, skipping leading punctuation
// such as an opening quote.
func upperFirst(w string) string {
	return mapFirstLetter(w, unicode.ToUpper)
}

func lowerFirst(w string) string {
	return mapFirstLetter(w, unicode.ToLower)
}

func mapFirstLetter(w string, f func(rune) rune) string {
	for i, r := range w {
		if unicode.IsLetter(r) {
			return w[:i] + string(f(r)) + w[i+utf8.RuneLen(r):]
		}
	}
	return w
}
