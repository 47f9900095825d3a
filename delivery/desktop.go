package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"dictate/clipboard"
)

const (
	MethodPaste = "paste"
	MethodType  = "type"
)

type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// Desktop inserts text into the focused application with synthetic
// keystrokes and drives application focus through the platform's
// automation tool (xdotool on linux, osascript on macOS).
type Desktop struct {
	method string
	paste  clipboard.PasteOptions
	run    runFunc
}

func NewDesktop(method string, paste clipboard.PasteOptions) *Desktop {
	if method != MethodType {
		method = MethodPaste
	}
	return &Desktop{method: method, paste: paste, run: runCommand}
}

func (d *Desktop) Insert(_ context.Context, text string) error {
	if d.method == MethodType {
		return partial(classify(clipboard.Type(text)))
	}
	err := clipboard.PasteText(text, d.paste)
	if errors.Is(err, clipboard.ErrWrite) {
		return classify(err)
	}
	return partial(classify(err))
}

// partial marks err as coming from a step that may already have sent
// keystrokes.
func partial(err error) error {
	if err == nil || errors.Is(err, ErrPartial) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPartial, err)
}

func (d *Desktop) Undo(_ context.Context, n int) error {
	return classify(clipboard.Undo(n))
}

func classify(err error) error {
	if err != nil && errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", name, ErrUnsupported)
		}
		msg := strings.TrimSpace(out.String())
		if msg == "" {
			return "", err
		}
		return msg, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return strings.TrimSpace(out.String()), nil
}
