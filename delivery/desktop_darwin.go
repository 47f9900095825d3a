package delivery

import (
	"context"
	"fmt"
	"strings"
)

func (d *Desktop) osascript(ctx context.Context, script string) (string, error) {
	out, err := d.run(ctx, "osascript", "-e", script)
	if err != nil && (strings.Contains(out, "-1743") || strings.Contains(out, "not allowed")) {
		return out, fmt.Errorf("%w: grant Automation access in System Settings: %v", ErrPermission, err)
	}
	return out, err
}

func (d *Desktop) Focused(ctx context.Context) (string, error) {
	return d.osascript(ctx, `tell application "System Events" to get name of first application process whose frontmost is true`)
}

func (d *Desktop) IsRunning(ctx context.Context, target string) (bool, error) {
	out, err := d.osascript(ctx, fmt.Sprintf(`application %q is running`, target))
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

func (d *Desktop) Launch(ctx context.Context, target string) error {
	out, err := d.run(ctx, "open", "-a", target)
	if err != nil {
		if strings.Contains(out, "Unable to find application") {
			return fmt.Errorf("%s: %w", target, ErrNotFound)
		}
		return err
	}
	return nil
}

func (d *Desktop) Activate(ctx context.Context, target string) error {
	_, err := d.osascript(ctx, fmt.Sprintf(`tell application %q to activate`, target))
	return err
}

func (d *Desktop) Restore(ctx context.Context, app string) error {
	return d.Activate(ctx, app)
}
