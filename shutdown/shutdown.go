// Package shutdown maps the platform's termination signals onto context
// cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Context returns a copy of parent cancelled by the first termination
// signal. A second signal gets the default behavior and kills the process.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// Notify relays termination signals to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, signals...)
}
