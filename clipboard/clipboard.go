// Package clipboard reads and writes the system clipboard and synthesizes
// the keystrokes used to insert and undo dictated text.
package clipboard

import (
	"errors"
	"fmt"
	"time"

	cb "github.com/atotto/clipboard"

	"dictate/log"
)

// ErrWrite means the text never reached the clipboard, so nothing was
// pasted.
var ErrWrite = errors.New("clipboard write failed")

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// PasteOptions controls PasteText.
type PasteOptions struct {
	// Restore puts the previous clipboard contents back after pasting.
	Restore bool
	// Settle is how long to wait after the paste keystroke before
	// restoring, so the target reads the new contents first.
	Settle time.Duration
}

// PasteText inserts text into the focused application through the
// clipboard and a paste keystroke. Failing to restore the previous
// clipboard afterwards only logs a warning: the text is already pasted.
func PasteText(text string, opts PasteOptions) error {
	var prev string
	var hadPrev bool
	if opts.Restore {
		if p, err := Read(); err == nil {
			prev, hadPrev = p, true
		}
	}
	if err := Copy(text); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := Paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	if hadPrev {
		if opts.Settle > 0 {
			time.Sleep(opts.Settle)
		}
		if err := Copy(prev); err != nil {
			log.Warnf("clipboard restore: %v", err)
		}
	}
	return nil
}
