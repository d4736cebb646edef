//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
)

// runInputDevices is only available on Linux; use the terminal panel or IPC
// elsewhere.
func runInputDevices(ctx context.Context, paths []string, events chan<- Event, logger *slog.Logger) error {
	if len(paths) == 0 {
		return nil
	}
	return errors.New("evdev input devices are only supported on linux")
}
