package pipeline

import (
	"strings"
	"unicode"
)

// Undo counts. Together with undoVerbs and commonLeads below they decide
// which two-word phrases are commands; extend commonLeads when ordinary
// dictation is reported as an unrecognized command.
const (
	MaxUndoRepeat = 5
	UndoAllCount  = 20
)

type CommandKind int

const (
	NotCommand CommandKind = iota
	CommandUndo
	CommandUnknown
)

type Command struct {
	Kind      CommandKind
	UndoCount int
}

var undoVerbs = map[string]bool{
	"scratch": true,
	"undo":    true,
	"delete":  true,
}

// Ordinary two-word phrases ending in "that"/"all" that are dictated as
// text and must not be mistaken for a command.
var commonLeads = map[string]bool{
	"after": true, "before": true, "about": true, "like": true, "all": true,
	"and": true, "but": true, "or": true, "so": true, "not": true, "that": true,
	"this": true, "is": true, "was": true, "are": true, "were": true, "be": true,
	"at": true, "of": true, "for": true, "in": true, "on": true, "to": true,
	"with": true, "by": true, "from": true, "than": true, "then": true,
	"do": true, "did": true, "does": true, "done": true, "what": true,
	"what's": true, "how": true, "why": true, "who": true, "where": true,
	"see": true, "saw": true, "said": true, "say": true, "know": true,
	"think": true, "thought": true, "hear": true, "heard": true, "love": true,
	"hate": true, "want": true, "need": true, "get": true, "got": true,
	"take": true, "took": true, "make": true, "made": true, "try": true,
	"tried": true, "thank": true, "thanks": true, "once": true, "over": true,
	"above": true, "beyond": true, "despite": true, "given": true, "into": true,
	"it's": true, "that's": true, "only": true, "yes": true,
	"no": true, "okay": true, "ok": true, "right": true, "exactly": true,
	// clinical and editing verbs
	"confirm": true, "confirms": true, "confirmed": true, "check": true,
	"checked": true, "fix": true, "fixed": true, "verify": true,
	"verified": true, "review": true, "reviewed": true, "note": true,
	"noted": true, "document": true, "documented": true, "repeat": true,
	"repeated": true, "suggest": true, "suggests": true, "indicate": true,
	"indicates": true, "exclude": true, "excluded": true, "consider": true,
	"considered": true, "recommend": true, "recommended": true,
	"monitor": true, "treat": true, "treated": true, "report": true,
	"reported": true, "explain": true, "explained": true, "discuss": true,
	"discussed": true, "believe": true, "feel": true, "felt": true,
	"agree": true, "agreed": true, "show": true, "shows": true,
	"showed": true, "mean": true, "means": true, "meant": true,
	"change": true, "changed": true, "keep": true, "kept": true,
	"add": true, "added": true, "remove": true, "removed": true,
	"correct": true, "corrected": true,
}

// DetectCommand recognizes undo phrases spoken as a whole utterance.
// "<verb> that" undoes one insertion and may be repeated (capped at
// MaxUndoRepeat); "<verb> all" undoes UndoAllCount. A phrase with the
// same shape but an unknown verb is reported as CommandUnknown.
func DetectCommand(utterance string) Command {
	words := commandWords(utterance)
	if len(words) == 0 || len(words)%2 != 0 {
		return Command{}
	}

	count, all, unknown := 0, false, false
	for i := 0; i < len(words); i += 2 {
		verb, object := words[i], words[i+1]
		if object != "that" && object != "all" {
			return Command{}
		}
		if !undoVerbs[verb] {
			if commonLeads[verb] {
				return Command{}
			}
			unknown = true
			continue
		}
		if object == "all" {
			all = true
		} else {
			count++
		}
	}

	if unknown {
		return Command{Kind: CommandUnknown}
	}
	if all {
		return Command{Kind: CommandUndo, UndoCount: UndoAllCount}
	}
	return Command{Kind: CommandUndo, UndoCount: min(count, MaxUndoRepeat)}
}

// commandWords lowercases and strips punctuation the engine may attach,
// keeping apostrophes inside words.
func commandWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	words := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f == "" {
			continue
		}
		for _, r := range f {
			if !unicode.IsLetter(r) && r != '\'' && r != '’' {
				return nil
			}
		}
		words = append(words, f)
	}
	return words
}
