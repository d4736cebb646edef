//go:build headless

package main

import (
	"context"
	"errors"
	"io"
)

// playDevice is unavailable in headless builds; use audio.output instead.
func playDevice(_ context.Context, _ io.Reader, _ int) error {
	return errors.New("audio: built without sound card support (headless)")
}
