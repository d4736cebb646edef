package settings

// Knobs is the number of physical knobs a settings page spans.
const Knobs = 4

// reserved is the neutral position reported for unused knob slots.
const reserved = 0.5

// Page is a group of settings edited together with the knobs.
type Page int

const (
	PageAttenuverters Page = iota
	PageEnvelope
	PageTuning

	PageCount
)

func (p Page) String() string {
	switch p {
	case PageAttenuverters:
		return "attenuverters"
	case PageEnvelope:
		return "lpg_envelope"
	case PageTuning:
		return "tuning"
	default:
		return "unknown"
	}
}

// MarshalText renders the page by name.
func (p Page) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Next returns the following page, wrapping.
func (p Page) Next() Page { return (p + 1) % PageCount }

// Labels names the knob slots of the page for the display.
func (p Page) Labels() [Knobs]string {
	switch p {
	case PageAttenuverters:
		return [Knobs]string{"FM", "Timbre", "Morph", "Harmonics"}
	case PageEnvelope:
		return [Knobs]string{"Decay", "Colour", "Level", ""}
	case PageTuning:
		return [Knobs]string{"Octave", "Fine", "", ""}
	default:
		return [Knobs]string{}
	}
}

// PageValues returns the normalized knob positions that correspond to the
// stored settings of page p.
func (s Settings) PageValues(p Page) [Knobs]float64 {
	switch p {
	case PageAttenuverters:
		return [Knobs]float64{
			fromBipolar(s.FMAmount),
			fromBipolar(s.TimbreMod),
			fromBipolar(s.MorphMod),
			fromBipolar(s.HarmonicsMod),
		}
	case PageEnvelope:
		return [Knobs]float64{s.Decay, s.LPGColour, s.OutputLevel, reserved}
	case PageTuning:
		return [Knobs]float64{
			float64(s.Octave) / octaveScale,
			fromBipolar(s.FineTune),
			reserved,
			reserved,
		}
	default:
		return [Knobs]float64{reserved, reserved, reserved, reserved}
	}
}

// ApplyPage writes normalized knob positions into the settings of page p.
func (s *Settings) ApplyPage(p Page, k [Knobs]float64) {
	switch p {
	case PageAttenuverters:
		s.FMAmount = toBipolar(k[0])
		s.TimbreMod = toBipolar(k[1])
		s.MorphMod = toBipolar(k[2])
		s.HarmonicsMod = toBipolar(k[3])
	case PageEnvelope:
		s.Decay = clamp01(k[0])
		s.LPGColour = clamp01(k[1])
		s.OutputLevel = clamp01(k[2])
	case PageTuning:
		// The epsilon keeps PageValues -> ApplyPage stable for whole octaves.
		s.Octave = min(maxOctave, int(clamp01(k[0])*octaveScale+1e-9))
		s.FineTune = toBipolar(k[1])
	}
}

func toBipolar(k float64) float64   { return clamp01(k)*2 - 1 }
func fromBipolar(v float64) float64 { return (clampBipolar(v) + 1) / 2 }
