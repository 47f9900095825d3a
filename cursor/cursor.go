// Package cursor classifies the text in front of the insertion point so
// formatting can decide on capitalization and spacing.
package cursor

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

type Class int

const (
	Unknown Class = iota
	DocumentStart
	AfterSentence
	AfterClause
	AfterParagraph
	AfterWhitespace
	AfterText
)

func (c Class) String() string {
	switch c {
	case DocumentStart:
		return "document_start"
	case AfterSentence:
		return "after_sentence"
	case AfterClause:
		return "after_clause"
	case AfterParagraph:
		return "after_paragraph"
	case AfterWhitespace:
		return "after_whitespace"
	case AfterText:
		return "after_text"
	default:
		return "unknown"
	}
}

type Context struct {
	Class     Class
	Preceding string
}

// CapitalizeStart reports whether the next word begins a sentence.
// Clause punctuation and unknown positions do not.
func (c Context) CapitalizeStart() bool {
	switch c.Class {
	case DocumentStart, AfterSentence, AfterParagraph:
		return true
	}
	return false
}

// EndsInSpace reports whether the characters right before the cursor are
// already whitespace.
func (c Context) EndsInSpace() bool {
	if c.Preceding == "" {
		return false
	}
	r := []rune(c.Preceding)
	return unicode.IsSpace(r[len(r)-1])
}

// closers may trail sentence punctuation without changing the class.
const closers = `"')]’”`

// Classify maps the text preceding the cursor to a Class.
func Classify(preceding string) Context {
	ctx := Context{Preceding: preceding}
	trimmed := strings.TrimRight(preceding, " \t")
	switch {
	case strings.TrimSpace(preceding) == "":
		if strings.ContainsAny(preceding, "\r\n") {
			ctx.Class = AfterParagraph
		} else {
			ctx.Class = DocumentStart
		}
		return ctx
	case strings.HasSuffix(trimmed, "\n") || strings.HasSuffix(trimmed, "\r"):
		ctx.Class = AfterParagraph
		return ctx
	}

	last := strings.TrimRight(trimmed, closers)
	if last == "" {
		ctx.Class = AfterText
		return ctx
	}
	switch last[len(last)-1] {
	case '.', '!', '?':
		ctx.Class = AfterSentence
	case ':', ';':
		ctx.Class = AfterClause
	default:
		if len(trimmed) < len(preceding) {
			ctx.Class = AfterWhitespace
		} else {
			ctx.Class = AfterText
		}
	}
	return ctx
}

// Detector reports the cursor context for a delivery target. Implementations
// are best effort and return Unknown when they cannot tell.
type Detector interface {
	Detect(target string) Context
}

// Fixed always reports the same context.
type Fixed Context

func (f Fixed) Detect(string) Context { return Context(f) }

const (
	DefaultStaleAfter = 2 * time.Minute
	tailLimit         = 64
)

type history struct {
	tail string
	at   time.Time
}

// Tracker infers the cursor context from what this process delivered to
// each target. Targets never written to, or not written to within
// StaleAfter, report Unknown since the user may have moved the cursor.
type Tracker struct {
	StaleAfter time.Duration
	Now        func() time.Time

	mu      sync.Mutex
	targets map[string]history
}

func NewTracker(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{StaleAfter: staleAfter, Now: time.Now, targets: make(map[string]history)}
}

func (t *Tracker) Record(target, delivered string) {
	if delivered == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.targets[target]
	if t.Now().Sub(h.at) > t.StaleAfter {
		h.tail = ""
	}
	tail := h.tail + delivered
	if r := []rune(tail); len(r) > tailLimit {
		tail = string(r[len(r)-tailLimit:])
	}
	t.targets[target] = history{tail: tail, at: t.Now()}
}

// Forget drops the history for target, e.g. after an undo.
func (t *Tracker) Forget(target string) {
	t.mu.Lock()
	delete(t.targets, target)
	t.mu.Unlock()
}

func (t *Tracker) Detect(target string) Context {
	t.mu.Lock()
	h, ok := t.targets[target]
	t.mu.Unlock()
	if !ok || t.Now().Sub(h.at) > t.StaleAfter {
		return Context{Class: Unknown}
	}
	return Classify(h.tail)
}
