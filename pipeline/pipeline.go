// Package pipeline turns a committed utterance into deliverable text or a
// voice command. Every stage is a pure function of its input, the cursor
// context and the vocabulary.
package pipeline

import (
	"strings"

	"dictate/cursor"
)

// Vocabulary corrects domain terms and identifies protected abbreviations.
type Vocabulary interface {
	Correct(text string, categories []string) string
	IsProtectedTerm(word string) bool
}

type noVocabulary struct{}

func (noVocabulary) Correct(text string, _ []string) string { return text }
func (noVocabulary) IsProtectedTerm(string) bool           { return false }

type Kind int

const (
	KindText Kind = iota
	KindCommand
	KindUnrecognizedCommand
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCommand:
		return "command"
	case KindUnrecognizedCommand:
		return "unrecognized_command"
	default:
		return "empty"
	}
}

type Result struct {
	Kind          Kind
	Text          string
	LeadingSpace  bool
	TrailingSpace bool
	// UndoCount is set for KindCommand.
	UndoCount int
}

// Output is Text with the decided spacing applied.
func (r Result) Output() string {
	if r.Kind != KindText {
		return ""
	}
	out := r.Text
	if r.LeadingSpace {
		out = " " + out
	}
	if r.TrailingSpace {
		out += " "
	}
	return out
}

type Pipeline struct {
	vocab      Vocabulary
	categories []string
}

// New builds a pipeline. categories selects the enabled vocabulary
// categories; nil enables all of them.
func New(vocab Vocabulary, categories []string) *Pipeline {
	if vocab == nil {
		vocab = noVocabulary{}
	}
	return &Pipeline{vocab: vocab, categories: categories}
}

func (p *Pipeline) Process(utterance string, ctx cursor.Context) Result {
	text := strings.Join(strings.Fields(utterance), " ")
	if text == "" {
		return Result{Kind: KindEmpty}
	}

	switch cmd := DetectCommand(text); cmd.Kind {
	case CommandUndo:
		return Result{Kind: KindCommand, Text: text, UndoCount: cmd.UndoCount}
	case CommandUnknown:
		return Result{Kind: KindUnrecognizedCommand, Text: text}
	}

	text = p.vocab.Correct(text, p.categories)
	text = TranslatePunctuation(text)
	if text == "" {
		return Result{Kind: KindEmpty}
	}
	if IsPunctuationOnly(text) {
		leading, trailing := Spacing(text, ctx)
		return Result{Kind: KindText, Text: text, LeadingSpace: leading, TrailingSpace: trailing}
	}
	text = Capitalize(text, ctx.CapitalizeStart(), p.vocab.IsProtectedTerm)
	leading, trailing := Spacing(text, ctx)
	return Result{Kind: KindText, Text: text, LeadingSpace: leading, TrailingSpace: trailing}
}
