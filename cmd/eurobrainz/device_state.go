package main

import (
	"fmt"
	"math"
	"slices"

	"eurobrainz/internal/control"
	"eurobrainz/internal/engine"
	"eurobrainz/internal/menu"
	"eurobrainz/internal/param"
	"eurobrainz/internal/settings"
)

// Mode is the top-level panel mode.
type Mode int

const (
	ModePlay Mode = iota
	ModeParameters
	ModeCalibration
)

func (m Mode) String() string {
	switch m {
	case ModePlay:
		return "play"
	case ModeParameters:
		return "parameters"
	case ModeCalibration:
		return "calibration"
	default:
		return "unknown"
	}
}

// MarshalText renders the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// parseMode accepts the modes a user may select directly.
func parseMode(s string) (Mode, error) {
	switch s {
	case "play":
		return ModePlay, nil
	case "parameters":
		return ModeParameters, nil
	default:
		return 0, fmt.Errorf("invalid mode: %q (must be play or parameters)", s)
	}
}

// DeviceState is the top-level, daemon-owned state container.
//
// Only the daemon goroutine touches it. The parameter table is shared with the
// engine, which reads values through atomic loads; every write goes through
// the reducer.
type DeviceState struct {
	Mode Mode
	Page settings.Page

	// Panel holds the latest raw readings from hardware or the virtual panel.
	Panel Panel

	Params *param.Table
	Menu   *menu.Navigator

	KnobFilters   *control.FilterBank
	CVFilters     *control.FilterBank
	PlayCatchers  *control.CatcherBank
	PageCatchers  *control.CatcherBank
	Binder        *control.Binder
	KnobValues    []float64 // knob-derived normalized value per parameter
	Settings      settings.Settings
	SettingsDirty bool

	Encoder    PressDetector
	PageButton PressDetector
	Input      PendingInput

	// Reseed asks the next tick to re-seed the active catcher bank and
	// resume the binder.
	Reseed bool

	Calibration CalibrationState
	Notice      string
	Preset      string

	lastSnapshot *StateSnapshot
}

// Panel is the raw panel reading.
type Panel struct {
	Knobs [settings.Knobs]float64
	CV    [engine.CVInputs]float64
	Gate  bool

	knobSeen [settings.Knobs]bool
	cvSeen   [engine.CVInputs]bool
}

// PendingInput accumulates gestures between ticks.
type PendingInput struct {
	EncoderDelta int
	EncoderShort bool
	EncoderLong  bool
	PageShort    bool
	PageLong     bool
}

// CalibrationState tracks the two-point V/Oct capture.
type CalibrationState struct {
	Step int // 0: waiting for 1V, 1: waiting for 3V
	Low  float64
}

// NewDeviceState builds the state for params using the conditioning chain
// described by cfg. The first tick seeds the catchers from the stored values.
func NewDeviceState(params *param.Table, st settings.Settings, cfg Config) *DeviceState {
	cvCfgs := make([]control.FilterConfig, engine.CVInputs)
	for i := range cvCfgs {
		cvCfgs[i] = control.FilterConfig{Coefficient: cfg.Controls.CVCoefficient}
	}
	playCfgs := make([]control.CatcherConfig, settings.Knobs)
	pageCfgs := make([]control.CatcherConfig, settings.Knobs)
	for i := range playCfgs {
		playCfgs[i] = cfg.Controls.Play
		pageCfgs[i] = cfg.Controls.Parameters
	}

	s := &DeviceState{
		Mode:         ModePlay,
		Page:         settings.PageAttenuverters,
		Params:       params,
		Menu:         menu.New(params, cfg.Menu.Visible, engine.CVInputs),
		KnobFilters:  control.NewFilterBank(cfg.KnobFilterConfigs()...),
		CVFilters:    control.NewFilterBank(cvCfgs...),
		PlayCatchers: control.NewCatcherBank(playCfgs...),
		PageCatchers: control.NewCatcherBank(pageCfgs...),
		Binder:       control.NewBinder(cfg.Controls.Hysteresis),
		KnobValues:   make([]float64, params.Len()),
		Settings:     st,
		Reseed:       true,
	}
	for i := range s.Panel.CV {
		s.Panel.CV[i] = 0.5
	}
	s.syncKnobValues()
	s.Binder.Suspend()
	return s
}

// syncKnobValues resets the knob-derived values to the current parameters.
func (s *DeviceState) syncKnobValues() {
	for i := range s.KnobValues {
		s.KnobValues[i] = s.Params.Normalized(i)
	}
}

// requestReseed suspends the binder until the next tick re-seeds the active
// catcher bank.
func (s *DeviceState) requestReseed() {
	s.Binder.Suspend()
	s.Reseed = true
}

// reseed primes the active catcher bank at the current knob positions and
// holds each catcher at the value it drives.
func (s *DeviceState) reseed() {
	knobs := s.KnobFilters.Values()
	switch s.Mode {
	case ModePlay:
		start, end := s.Menu.VisibleRange()
		vals := make([]float64, s.PlayCatchers.Len())
		for i := range vals {
			if row := start + i; row < end {
				vals[i] = s.KnobValues[row]
			}
		}
		s.PlayCatchers.Prime(knobs)
		s.PlayCatchers.OnPageChange(vals)

	case ModeParameters:
		vals := s.Settings.PageValues(s.Page)
		s.PageCatchers.Prime(knobs)
		s.PageCatchers.OnPageChange(vals[:])
	}
	s.Reseed = false
	s.Binder.Resume()
}

// setPanelKnob stores a knob reading; the first reading primes its filter.
func (s *DeviceState) setPanelKnob(i int, v float64) {
	if i < 0 || i >= len(s.Panel.Knobs) {
		return
	}
	v = clamp01(v)
	s.Panel.Knobs[i] = v
	if !s.Panel.knobSeen[i] {
		s.Panel.knobSeen[i] = true
		s.KnobFilters.Prime(i, v)
	}
}

// setPanelCV stores a CV reading; the first reading primes its filter.
func (s *DeviceState) setPanelCV(i int, v float64) {
	if i < 0 || i >= len(s.Panel.CV) {
		return
	}
	v = clamp01(v)
	s.Panel.CV[i] = v
	if !s.Panel.cvSeen[i] {
		s.Panel.cvSeen[i] = true
		s.CVFilters.Prime(i, v)
	}
}

// ============================================================================
// Snapshot
// ============================================================================

// StateSnapshot is the display-facing view of the device. Values are rounded
// to snapshotPrecision.
type StateSnapshot struct {
	Mode            Mode                    `json:"mode"`
	Page            settings.Page           `json:"page"`
	PageLabels      [settings.Knobs]string  `json:"page_labels"`
	PageValues      [settings.Knobs]float64 `json:"page_values"`
	Menu            menu.State              `json:"menu"`
	WindowStart     int                     `json:"window_start"`
	WindowEnd       int                     `json:"window_end"`
	Params          []param.View            `json:"params"`
	Catchers        []control.KnobState     `json:"catchers,omitempty"`
	Settings        settings.Settings       `json:"settings"`
	CalibrationStep int                     `json:"calibration_step,omitempty"`
	Notice          string                  `json:"notice,omitempty"`
	Preset          string                  `json:"preset,omitempty"`
}

// Snapshot captures the current display state.
func (s *DeviceState) Snapshot() StateSnapshot {
	start, end := s.Menu.VisibleRange()
	snap := StateSnapshot{
		Mode:        s.Mode,
		Page:        s.Page,
		PageLabels:  s.Page.Labels(),
		Menu:        s.Menu.State(),
		WindowStart: start,
		WindowEnd:   end,
		Params:      s.Params.Snapshot(),
		Settings:    roundSettings(s.Settings),
		Notice:      s.Notice,
		Preset:      s.Preset,
	}
	for i, v := range s.Settings.PageValues(s.Page) {
		snap.PageValues[i] = roundTo(v)
	}
	for i := range snap.Params {
		snap.Params[i].Value = roundTo(snap.Params[i].Value)
		snap.Params[i].Normalized = roundTo(snap.Params[i].Normalized)
	}

	switch s.Mode {
	case ModePlay:
		snap.Catchers = s.PlayCatchers.States()
	case ModeParameters:
		snap.Catchers = s.PageCatchers.States()
	case ModeCalibration:
		snap.CalibrationStep = s.Calibration.Step + 1
	}
	return snap
}

// Equal reports whether two snapshots would render the same.
func (a StateSnapshot) Equal(b StateSnapshot) bool {
	return a.Mode == b.Mode &&
		a.Page == b.Page &&
		a.PageLabels == b.PageLabels &&
		a.PageValues == b.PageValues &&
		a.Menu == b.Menu &&
		a.WindowStart == b.WindowStart &&
		a.WindowEnd == b.WindowEnd &&
		slices.Equal(a.Params, b.Params) &&
		slices.Equal(a.Catchers, b.Catchers) &&
		a.Settings == b.Settings &&
		a.CalibrationStep == b.CalibrationStep &&
		a.Notice == b.Notice &&
		a.Preset == b.Preset
}

func roundSettings(st settings.Settings) settings.Settings {
	st.FMAmount = roundTo(st.FMAmount)
	st.TimbreMod = roundTo(st.TimbreMod)
	st.MorphMod = roundTo(st.MorphMod)
	st.HarmonicsMod = roundTo(st.HarmonicsMod)
	st.Decay = roundTo(st.Decay)
	st.LPGColour = roundTo(st.LPGColour)
	st.OutputLevel = roundTo(st.OutputLevel)
	st.FineTune = roundTo(st.FineTune)
	return st
}

func roundTo(v float64) float64 {
	return math.Round(v*(1/snapshotPrecision)) / (1 / snapshotPrecision)
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
