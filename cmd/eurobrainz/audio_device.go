//go:build !headless

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// deviceBuffer is the sound card buffer length. Shorter buffers make knob
// moves audible sooner.
const deviceBuffer = 20 * time.Millisecond

// playDevice plays interleaved s16le stereo from r on the default sound card
// until ctx is canceled.
func playDevice(ctx context.Context, r io.Reader, sampleRate int) error {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   deviceBuffer,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("audio: open device: %w", err)
	}
	<-ready

	player := otoCtx.NewPlayer(r)
	player.Play()
	defer player.Close()

	<-ctx.Done()
	if err := player.Err(); err != nil {
		return fmt.Errorf("audio: device: %w", err)
	}
	return nil
}
