//go:build !linux && !darwin

package delivery

import "context"

// Named targets need an automation tool; only the focused application
// can receive text here.

func (d *Desktop) Focused(context.Context) (string, error) { return "", ErrUnsupported }

func (d *Desktop) IsRunning(context.Context, string) (bool, error) { return false, ErrUnsupported }

func (d *Desktop) Launch(context.Context, string) error { return ErrUnsupported }

func (d *Desktop) Activate(context.Context, string) error { return ErrUnsupported }

func (d *Desktop) Restore(context.Context, string) error { return ErrUnsupported }
