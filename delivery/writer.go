package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Writer is an Inserter that writes delivered text to w. Every named
// target counts as running and focusable. The headless script mode uses it.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	focused string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Focused(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused, nil
}

func (w *Writer) IsRunning(context.Context, string) (bool, error) { return true, nil }

func (w *Writer) Launch(context.Context, string) error { return nil }

func (w *Writer) Activate(_ context.Context, target string) error {
	w.mu.Lock()
	w.focused = target
	w.mu.Unlock()
	return nil
}

func (w *Writer) Restore(ctx context.Context, app string) error {
	return w.Activate(ctx, app)
}

func (w *Writer) Insert(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.w, "TEXT %q\n", text)
	return err
}

func (w *Writer) Undo(_ context.Context, n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.w, "UNDO %d\n", n)
	return err
}
