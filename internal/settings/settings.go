// Package settings holds the persistent module settings record, the settings
// pages edited with the knobs, and V/Oct calibration.
package settings

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Signature identifies a settings record written by this firmware layout.
const Signature uint32 = 0x504C5401

const (
	maxOctave      = 8
	octaveScale    = 8.99
	calibMinDelta  = 0.05
	calibMaxDelta  = 0.5
	calibSemitones = 24.0
)

// ErrInvalidCalibration is returned when the measured 1V/3V readings are
// implausibly close or far apart.
var ErrInvalidCalibration = errors.New("invalid calibration")

// EnvelopeMode selects how the low-pass gate is triggered.
type EnvelopeMode int

const (
	EnvelopeDrone EnvelopeMode = iota
	EnvelopePing
	EnvelopeExternal

	envelopeModeCount
)

func (m EnvelopeMode) String() string {
	switch m {
	case EnvelopeDrone:
		return "drone"
	case EnvelopePing:
		return "ping"
	case EnvelopeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// MarshalText renders the envelope mode by name.
func (m EnvelopeMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText parses a mode name, ignoring case.
func (m *EnvelopeMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "drone":
		*m = EnvelopeDrone
	case "ping":
		*m = EnvelopePing
	case "external":
		*m = EnvelopeExternal
	default:
		return fmt.Errorf("unknown envelope mode %q", string(b))
	}
	return nil
}

// Settings is the flat record persisted between power cycles.
type Settings struct {
	Signature uint32 `yaml:"signature" json:"signature"`

	FMAmount     float64 `yaml:"fm_amount" json:"fm_amount"`
	TimbreMod    float64 `yaml:"timbre_mod" json:"timbre_mod"`
	MorphMod     float64 `yaml:"morph_mod" json:"morph_mod"`
	HarmonicsMod float64 `yaml:"harmonics_mod" json:"harmonics_mod"`

	Decay       float64      `yaml:"decay" json:"decay"`
	LPGColour   float64      `yaml:"lpg_colour" json:"lpg_colour"`
	OutputLevel float64      `yaml:"output_level" json:"output_level"`
	Envelope    EnvelopeMode `yaml:"envelope" json:"envelope"`

	Octave   int     `yaml:"octave" json:"octave"`
	FineTune float64 `yaml:"fine_tune" json:"fine_tune"`

	VOctOffset float64 `yaml:"voct_offset" json:"voct_offset"`
	VOctScale  float64 `yaml:"voct_scale" json:"voct_scale"`
}

// Defaults returns factory settings.
func Defaults() Settings {
	return Settings{
		Signature:   Signature,
		Decay:       0.5,
		LPGColour:   0.5,
		OutputLevel: 0.7,
		Envelope:    EnvelopePing,
		Octave:      4,
		VOctOffset:  0.5,
		VOctScale:   120,
	}
}

// Sanitize clamps every field into its legal range.
func (s *Settings) Sanitize() {
	s.FMAmount = clampBipolar(s.FMAmount)
	s.TimbreMod = clampBipolar(s.TimbreMod)
	s.MorphMod = clampBipolar(s.MorphMod)
	s.HarmonicsMod = clampBipolar(s.HarmonicsMod)
	s.Decay = clamp01(s.Decay)
	s.LPGColour = clamp01(s.LPGColour)
	s.OutputLevel = clamp01(s.OutputLevel)
	if s.Envelope < 0 || s.Envelope >= envelopeModeCount {
		s.Envelope = EnvelopePing
	}
	s.Octave = max(0, min(maxOctave, s.Octave))
	s.FineTune = clampBipolar(s.FineTune)
	if s.VOctScale <= 0 || math.IsNaN(s.VOctScale) {
		d := Defaults()
		s.VOctOffset, s.VOctScale = d.VOctOffset, d.VOctScale
	}
}

// ResetAttenuverters zeroes the four modulation amounts.
func (s *Settings) ResetAttenuverters() {
	s.FMAmount = 0
	s.TimbreMod = 0
	s.MorphMod = 0
	s.HarmonicsMod = 0
}

// CycleEnvelope advances to the next envelope mode.
func (s *Settings) CycleEnvelope() {
	s.Envelope = (s.Envelope + 1) % envelopeModeCount
}

// Calibration is a V/Oct offset and scale pair.
type Calibration struct {
	Offset float64 `json:"offset"`
	Scale  float64 `json:"scale"`
}

// Calibrate derives a V/Oct calibration from normalized readings taken with
// 1V and 3V applied.
func Calibrate(low, high float64) (Calibration, error) {
	delta := high - low
	if !(delta > calibMinDelta && delta < calibMaxDelta) {
		return Calibration{}, fmt.Errorf("%w: 1V=%.4f 3V=%.4f delta=%.4f", ErrInvalidCalibration, low, high, delta)
	}
	return Calibration{
		Offset: low - delta/2,
		Scale:  calibSemitones / delta,
	}, nil
}

// ApplyCalibration stores c.
func (s *Settings) ApplyCalibration(c Calibration) {
	s.VOctOffset = c.Offset
	s.VOctScale = c.Scale
}

// Calibration returns the stored calibration.
func (s Settings) Calibration() Calibration {
	return Calibration{Offset: s.VOctOffset, Scale: s.VOctScale}
}

// Note converts a normalized V/Oct reading to a MIDI-style note number,
// including the octave range and fine tune.
func (s Settings) Note(voct float64) float64 {
	return (voct-s.VOctOffset)*s.VOctScale + 12*float64(s.Octave-4) + s.FineTune + 60
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampBipolar(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
