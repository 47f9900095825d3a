// Package delivery hands formatted text to a target application: it makes
// sure the target is running and focused, inserts the text and puts focus
// back where it was.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("application not found")
	ErrPermission  = errors.New("permission denied")
	ErrUnsupported = errors.New("not supported on this platform")
	// ErrPartial marks an insert that failed after keystrokes may already
	// have reached the target. It is never retried.
	ErrPartial = errors.New("insert may be partial")
)

type Outcome int

const (
	Success Outcome = iota
	TargetNotFound
	LaunchFailed
	InsertFailed
	// FocusRestoreFailed means the text was delivered but focus could not
	// be returned to the previously active application.
	FocusRestoreFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TargetNotFound:
		return "target_not_found"
	case LaunchFailed:
		return "launch_failed"
	case InsertFailed:
		return "insert_failed"
	case FocusRestoreFailed:
		return "focus_restore_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Delivered reports whether the text reached the target.
func (o Outcome) Delivered() bool {
	return o == Success || o == FocusRestoreFailed
}

// Inserter is the platform capability used to reach a target application.
// Targets are application names; "" is never passed to the per-target
// methods.
type Inserter interface {
	// Focused returns the application that currently has focus.
	Focused(ctx context.Context) (string, error)
	IsRunning(ctx context.Context, target string) (bool, error)
	Launch(ctx context.Context, target string) error
	Activate(ctx context.Context, target string) error
	Insert(ctx context.Context, text string) error
	Undo(ctx context.Context, n int) error
	Restore(ctx context.Context, app string) error
}

// Request is one formatted utterance to deliver.
type Request struct {
	Text          string
	Target        string
	LeadingSpace  bool
	TrailingSpace bool
}

// Payload is the text with spacing applied.
func (r Request) Payload() string {
	out := r.Text
	if r.LeadingSpace {
		out = " " + out
	}
	if r.TrailingSpace {
		out += " "
	}
	return out
}

type Report struct {
	Outcome  Outcome
	Err      error
	Attempts int
	Duration time.Duration
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrUnsupported) || errors.Is(err, ErrPartial) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// retry runs fn up to attempts times, doubling the pause between tries.
// Permanent errors stop immediately. It returns the number of calls made.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil || permanent(err) {
			return i, err
		}
		if i == attempts {
			break
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return i, err
		}
		backoff *= 2
	}
	return attempts, err
}
