package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01
	EV_REL = 0x02

	KEY_ENTER    = 28
	KEY_SPACE    = 57
	KEY_NEXTSONG = 163
	KEY_MODE     = 373

	// Rotary encoder relative axis codes
	REL_DIAL  = 0x07
	REL_WHEEL = 0x08
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Control loop defaults
const (
	defaultUpdateHz = 500 // Control loop frequency (Hz)
	maxUpdateHz     = 1000

	defaultEncoderLongPressMS = 500  // Encoder hold time for a long press (ms)
	defaultPageLongPressMS    = 2000 // Page button hold time for a long press (ms)

	defaultCVCoefficient = 0.01
	defaultKnobEdgeSnap  = 0.01

	// Snapshot values are rounded to this precision so analog noise below it
	// does not produce a broadcast.
	snapshotPrecision = 1e-3
)

// defaultKnobCoefficients are the per-knob smoothing coefficients. The first
// two knobs drive the timbre-heavy rows and get the slower filter.
var defaultKnobCoefficients = []float64{0.005, 0.005, 0.01, 0.01}

// Storage and transport defaults
const (
	defaultSettingsPath = "~/.config/eurobrainz/settings.yaml"
	defaultPresetDir    = "~/.config/eurobrainz/presets"
	defaultSocketPath   = "/tmp/eurobrainz.sock"
	defaultStateWSAddr  = "127.0.0.1:8088"
	defaultStateWSPath  = "/ws/state"
	defaultSampleRate   = 48000
	defaultModuleName   = "plaits"
)
