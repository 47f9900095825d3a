//go:build linux

package delivery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Focused returns the active X11 window id, which Restore accepts.
func (d *Desktop) Focused(ctx context.Context) (string, error) {
	return d.run(ctx, "xdotool", "getactivewindow")
}

func (d *Desktop) IsRunning(ctx context.Context, target string) (bool, error) {
	out, err := d.run(ctx, "xdotool", "search", "--onlyvisible", "--class", target)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return false, err
		}
		// xdotool exits 1 when nothing matches.
		return false, nil
	}
	return out != "", nil
}

func (d *Desktop) Launch(_ context.Context, target string) error {
	bin, err := exec.LookPath(strings.ToLower(target))
	if err != nil {
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	cmd := exec.Command(bin)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", target, err)
	}
	go cmd.Wait()
	return nil
}

func (d *Desktop) Activate(ctx context.Context, target string) error {
	_, err := d.run(ctx, "xdotool", "search", "--onlyvisible", "--class", target, "windowactivate", "--sync")
	if err != nil {
		return fmt.Errorf("activate %s: %w", target, err)
	}
	return nil
}

func (d *Desktop) Restore(ctx context.Context, window string) error {
	_, err := d.run(ctx, "xdotool", "windowactivate", "--sync", window)
	return err
}
