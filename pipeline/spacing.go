package pipeline

import "dictate/cursor"

// Spacing decides the leading and trailing space for text inserted at a
// cursor in ctx. Pure punctuation attaches to the previous word and is
// followed by a space. Otherwise a leading space is added unless the
// cursor is at the start of the document, after a paragraph break, or
// already after whitespace. Unknown contexts get a leading space.
func Spacing(text string, ctx cursor.Context) (leading, trailing bool) {
	if IsPunctuationOnly(text) {
		return false, true
	}
	switch ctx.Class {
	case cursor.DocumentStart, cursor.AfterParagraph, cursor.AfterWhitespace:
		return false, false
	case cursor.Unknown:
		return true, false
	}
	return !ctx.EndsInSpace(), false
}
