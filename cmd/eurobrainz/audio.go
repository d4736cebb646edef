package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"eurobrainz/internal/engine"
)

// blockRenderer renders an engine in fixed-size stereo blocks and encodes them
// as interleaved s16le.
type blockRenderer struct {
	mod engine.Module
	out [][]float32
	pcm []byte
}

func newBlockRenderer(mod engine.Module, blockSize int) *blockRenderer {
	return &blockRenderer{
		mod: mod,
		out: [][]float32{make([]float32, blockSize), make([]float32, blockSize)},
		pcm: make([]byte, blockSize*2*2),
	}
}

// render produces one block and returns its PCM bytes. The slice is reused.
func (r *blockRenderer) render() []byte {
	r.mod.Process(nil, r.out)
	encodeS16LE(r.pcm, r.out[0], r.out[1])
	return r.pcm
}

// encodeS16LE interleaves left and right into dst, clipping to [-1, 1].
func encodeS16LE(dst []byte, left, right []float32) {
	n := min(len(left), len(right), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[4*i:], uint16(toS16(left[i])))
		binary.LittleEndian.PutUint16(dst[4*i+2:], uint16(toS16(right[i])))
	}
}

func toS16(v float32) int16 {
	f := math.Max(-1, math.Min(1, float64(v)))
	return int16(math.Round(f * 32767))
}

// pcmReader adapts a blockRenderer to the pull model of a sound card: each
// Read renders as many blocks as needed and keeps the remainder.
type pcmReader struct {
	r       *blockRenderer
	pending []byte
}

func (p *pcmReader) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		if len(p.pending) == 0 {
			p.pending = p.r.render()
		}
		c := copy(b[n:], p.pending)
		p.pending = p.pending[c:]
		n += c
	}
	return n, nil
}

// runAudio renders the engine until ctx is canceled. With a sound card the
// device paces rendering; otherwise blocks are rendered at the cadence of the
// configured sample rate. With no output configured the audio is discarded,
// which still exercises the engine's view of the parameters.
func runAudio(ctx context.Context, mod engine.Module, cfg AudioConfig, logger *slog.Logger) error {
	if cfg.BlockSize <= 0 || cfg.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid block size %d or sample rate %v", cfg.BlockSize, cfg.SampleRate)
	}

	if cfg.Device {
		logger.Info("audio started",
			"module", mod.Name(),
			"sample_rate", cfg.SampleRate,
			"block_size", cfg.BlockSize,
			"output", "device")
		return playDevice(ctx, &pcmReader{r: newBlockRenderer(mod, cfg.BlockSize)}, int(cfg.SampleRate))
	}

	var w io.Writer = io.Discard
	if cfg.Output != "" {
		f, err := os.OpenFile(ExpandPath(cfg.Output), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("audio: open output: %w", err)
		}
		defer f.Close()
		w = f
	}

	period := time.Duration(float64(time.Second) * float64(cfg.BlockSize) / cfg.SampleRate)
	logger.Info("audio started",
		"module", mod.Name(),
		"sample_rate", cfg.SampleRate,
		"block_size", cfg.BlockSize,
		"period", period,
		"output", cfg.Output)

	return renderLoop(ctx, newBlockRenderer(mod, cfg.BlockSize), w, period)
}

func renderLoop(ctx context.Context, r *blockRenderer, w io.Writer, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Write(r.render()); err != nil {
				return fmt.Errorf("audio: write: %w", err)
			}
		}
	}
}
