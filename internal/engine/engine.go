// Package engine binds synthesis engines to the parameter table.
//
// An engine only reads parameter values. The control loop is the sole writer.
package engine

import "eurobrainz/internal/param"

// Module is the capability set every synthesis engine binding provides.
type Module interface {
	Name() string
	Init(sampleRate float64) error
	// Process renders len(out[0]) frames. in carries audio inputs and may be empty.
	Process(in, out [][]float32)
	Parameters() *param.Table
	ProcessGate(index int, high bool)
	CVOutput(index int) float64
}

// Frame is one stereo sample pair as produced by a voice.
type Frame struct {
	Out int16
	Aux int16
}

// Voice renders audio frames from a patch. Implementations live outside this
// package; SilentVoice is used when no renderer is attached.
type Voice interface {
	Render(p Patch, m Modulations, frames []Frame)
}

// SilentVoice renders zeros.
type SilentVoice struct{}

func (SilentVoice) Render(_ Patch, _ Modulations, frames []Frame) {
	for i := range frames {
		frames[i] = Frame{}
	}
}
