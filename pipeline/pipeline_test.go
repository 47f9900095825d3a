package pipeline

import (
	"strings"
	"testing"

	"dictate/cursor"
	"dictate/vocab"
)

var (
	atStart   = cursor.Context{Class: cursor.DocumentStart}
	midText   = cursor.Classify("the patient")
	afterStop = cursor.Classify("Stable. ")
	unknown   = cursor.Context{Class: cursor.Unknown}
)

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		in   string
		kind CommandKind
		undo int
	}{
		{"scratch that", CommandUndo, 1},
		{"Scratch that.", CommandUndo, 1},
		{"undo that", CommandUndo, 1},
		{"delete that", CommandUndo, 1},
		{"scratch that scratch that", CommandUndo, 2},
		{strings.Repeat("scratch that ", 6), CommandUndo, MaxUndoRepeat},
		{"scratch that undo that", CommandUndo, 2},
		{"scratch all", CommandUndo, UndoAllCount},
		{"Delete all!", CommandUndo, UndoAllCount},
		{"banana that", CommandUnknown, 0},
		{"scratch that banana that", CommandUnknown, 0},
		{"after that", NotCommand, 0},
		{"about all", NotCommand, 0},
		{"confirm that", NotCommand, 0},
		{"Check that.", NotCommand, 0},
		{"fix that", NotCommand, 0},
		{"noted that", NotCommand, 0},
		{"scratch that please", NotCommand, 0},
		{"delete all files", NotCommand, 0},
		{"scratch", NotCommand, 0},
		{"", NotCommand, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := DetectCommand(tt.in)
			if got.Kind != tt.kind || got.UndoCount != tt.undo {
				t.Errorf("DetectCommand(%q) = %+v, want kind %d undo %d", tt.in, got, tt.kind, tt.undo)
			}
		})
	}
}

func TestTranslatePunctuation(t *testing.T) {
	tests := []struct{ in, want string }{
		{"lungs clear period", "lungs clear."},
		{"patient stable period", "patient stable."},
		{"comma", ","},
		{"Comma.", ","},
		{"period", "."},
		{"full stop", "."},
		{"question mark", "?"},
		{"exclamation point", "!"},
		{"exclamation mark", "!"},
		{"colon", ":"},
		{"semicolon", ";"},
		{"is it stable question mark", "is it stable?"},
		{"findings colon", "findings:"},
		{"Lungs clear, period!", "Lungs clear."},
		{"last menstrual period.", "last menstrual period."},
		{"Comma,", "Comma,"},
		{"the colon:", "the colon:"},
		{"Question mark?", "Question mark?"},
		{"the period of observation", "the period of observation"},
		{"lungs clear.", "lungs clear."},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := TranslatePunctuation(tt.in); got != tt.want {
				t.Errorf("TranslatePunctuation(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCapitalize(t *testing.T) {
	d := vocab.Default()
	tests := []struct {
		in    string
		start bool
		want  string
	}{
		{"ct shows no abnormality", true, "CT shows no abnormality"},
		{"ct shows no abnormality", false, "CT shows no abnormality"},
		{"patient is stable", true, "Patient is stable"},
		{"Patient is stable", false, "patient is stable"},
		{"done. next item? yes", true, "Done. Next item? Yes"},
		{"done. mri was clear", false, "done. MRI was clear"},
		{"findings: normal; no change", true, "Findings: normal; no change"},
		{"iPhone notes synced", true, "iPhone notes synced"},
		{"McDonald arrived", false, "McDonald arrived"},
		{"I think so", false, "I think so"},
		{`"quoted start`, true, `"Quoted start`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Capitalize(tt.in, tt.start, d.IsProtectedTerm); got != tt.want {
				t.Errorf("Capitalize(%q, %v) = %q, want %q", tt.in, tt.start, got, tt.want)
			}
		})
	}
}

func TestSpacing(t *testing.T) {
	tests := []struct {
		name              string
		text              string
		ctx               cursor.Context
		leading, trailing bool
	}{
		{"punctuation", ",", midText, false, true},
		{"punctuation unknown", ".", unknown, false, true},
		{"document start", "Hello", atStart, false, false},
		{"after whitespace", "stable", cursor.Classify("is "), false, false},
		{"after text", "stable", midText, true, false},
		{"after sentence no space", "Next", cursor.Classify("Done."), true, false},
		{"after sentence with space", "Next", afterStop, false, false},
		{"after paragraph", "Next", cursor.Classify("Done.\n"), false, false},
		{"unknown", "stable", unknown, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, r := Spacing(tt.text, tt.ctx)
			if l != tt.leading || r != tt.trailing {
				t.Errorf("Spacing(%q) = (%v, %v), want (%v, %v)", tt.text, l, r, tt.leading, tt.trailing)
			}
		})
	}
}

func TestProcess(t *testing.T) {
	p := New(vocab.Default(), nil)
	tests := []struct {
		name string
		in   string
		ctx  cursor.Context
		want Result
	}{
		{"command", "scratch that scratch that", midText, Result{Kind: KindCommand, Text: "scratch that scratch that", UndoCount: 2}},
		{"unknown command", "banana that", midText, Result{Kind: KindUnrecognizedCommand, Text: "banana that"}},
		{"empty", "   ", midText, Result{Kind: KindEmpty}},
		{"vocab and period", "cat scan clear period", atStart, Result{Kind: KindText, Text: "CT scan clear."}},
		{"mid sentence", "Lungs clear period", midText, Result{Kind: KindText, Text: "lungs clear.", LeadingSpace: true}},
		{"lone comma", "comma", midText, Result{Kind: KindText, Text: ",", TrailingSpace: true}},
		{"unknown context", "Patient stable", unknown, Result{Kind: KindText, Text: "patient stable", LeadingSpace: true}},
		{"after sentence", "next finding", afterStop, Result{Kind: KindText, Text: "Next finding"}},
		{"clause", "Normal", cursor.Classify("Findings:"), Result{Kind: KindText, Text: "normal", LeadingSpace: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Process(tt.in, tt.ctx); got != tt.want {
				t.Errorf("Process(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	p := New(vocab.Default(), nil)
	inputs := []string{
		"lungs clear period",
		"ct shows no abnormality",
		"done. mri was clear. next",
		"comma",
		"is it stable question mark",
		"findings: normal; no change",
		"Patient is stable.",
		"iPhone synced exclamation point",
		"last menstrual period period",
		"comma comma",
		"the colon colon",
		"semicolon semicolon",
		"question mark question mark",
	}
	for _, ctx := range []cursor.Context{atStart, midText, afterStop, unknown} {
		for _, in := range inputs {
			once := p.Process(in, ctx)
			twice := p.Process(once.Text, ctx)
			if once.Text != twice.Text || once.LeadingSpace != twice.LeadingSpace || once.TrailingSpace != twice.TrailingSpace {
				t.Errorf("%s: %q -> %q -> %q", ctx.Class, in, once.Text, twice.Text)
			}
		}
	}
}

func TestResultOutput(t *testing.T) {
	r := Result{Kind: KindText, Text: "x", LeadingSpace: true, TrailingSpace: true}
	if got := r.Output(); got != " x " {
		t.Errorf("Output() = %q", got)
	}
	if got := (Result{Kind: KindCommand, Text: "scratch that"}).Output(); got != "" {
		t.Errorf("command Output() = %q, want empty", got)
	}
}

func TestNilVocabulary(t *testing.T) {
	p := New(nil, nil)
	got := p.Process("cat scan period", atStart)
	if got.Text != "Cat scan." {
		t.Errorf("got %q", got.Text)
	}
}
