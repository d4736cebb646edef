package main

import (
	"fmt"
	"time"

	"eurobrainz/internal/engine"
	"eurobrainz/internal/menu"
	"eurobrainz/internal/settings"
)

// This file implements the reducer:
//
//   - Events: inputs (panel readings, gestures, ticks, effect observations)
//   - Commands: side effects requested by the reducer (persistence, engine publication)
//   - Broadcasts: display updates for the state websocket
//
// The reducer performs no I/O. It mutates only the DeviceState it is handed,
// which is owned by the daemon goroutine.

// ReduceConfig is the reducer policy derived from the file config.
type ReduceConfig struct {
	EncoderLongPress time.Duration
	PageLongPress    time.Duration

	// Module names the engine in captured presets.
	Module string
}

// StateBroadcast is a reducer-emitted display update.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastStateChanged carries a snapshot that differs from the previous one.
type BroadcastStateChanged struct {
	Snapshot StateSnapshot
	At       time.Time
}

func (BroadcastStateChanged) broadcastMarker() {}

// BroadcastModeChanged is emitted when the panel mode or settings page changes.
type BroadcastModeChanged struct {
	Mode Mode
	Page settings.Page
	At   time.Time
}

func (BroadcastModeChanged) broadcastMarker() {}

// ReduceResult is the output of Reduce(): next state, Commands to execute and
// display broadcasts.
type ReduceResult struct {
	State      *DeviceState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// reduction accumulates the output of one Reduce call.
type reduction struct {
	s   *DeviceState
	cfg ReduceConfig
	now time.Time

	cmds   []Command
	bcasts []StateBroadcast
}

// Reduce applies one event to s.
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Control processing for a tick always precedes the snapshot taken at its end
func Reduce(s *DeviceState, e Event, cfg ReduceConfig) ReduceResult {
	if s == nil {
		return ReduceResult{}
	}
	r := &reduction{s: s, cfg: cfg}
	r.event(e)
	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcasts,
	}
}

func (r *reduction) event(e Event) {
	s := r.s

	switch ev := e.(type) {
	case TimedEvent:
		r.now = ev.At
		r.event(ev.Event)
		return

	case Tick:
		r.now = ev.Now
		r.tick()
		return
	}

	if r.now.IsZero() {
		r.now = time.Now()
	}

	switch ev := e.(type) {
	case ControlFrame:
		for i, v := range ev.Knobs {
			s.setPanelKnob(i, v)
		}
		for i, v := range ev.CV {
			s.setPanelCV(i, v)
		}
		if ev.Gate != nil {
			r.setGate(*ev.Gate)
		}

	case SetKnob:
		s.setPanelKnob(ev.Index, ev.Value)

	case SetCV:
		s.setPanelCV(ev.Index, ev.Value)

	case SetGate:
		r.setGate(ev.High)

	case EncoderTurn:
		s.Input.EncoderDelta += ev.Steps

	case ButtonEdge:
		switch ev.Button {
		case ButtonEncoder:
			r.queuePress(ev.Button, s.Encoder.Edge(ev.Pressed, r.now, r.cfg.EncoderLongPress))
		case ButtonPage:
			r.queuePress(ev.Button, s.PageButton.Edge(ev.Pressed, r.now, r.cfg.PageLongPress))
		}

	case ButtonPress:
		kind := PressShort
		if ev.Long {
			kind = PressLong
		}
		r.queuePress(ev.Button, kind)

	case SetMode:
		m, err := parseMode(ev.Mode)
		if err != nil {
			s.Notice = err.Error()
			return
		}
		r.setMode(m)

	case ToggleMode:
		if s.Mode == ModePlay {
			r.setMode(ModeParameters)
		} else {
			r.setMode(ModePlay)
		}

	case SavePreset:
		if err := settings.ValidatePresetName(ev.Name); err != nil {
			s.Notice = err.Error()
			return
		}
		r.cmds = append(r.cmds, CmdSavePreset{Preset: settings.Capture(ev.Name, r.cfg.Module, s.Params)})

	case LoadPreset:
		r.cmds = append(r.cmds, CmdLoadPreset{Name: ev.Name})

	case RequestStateSnapshot:
		r.cmds = append(r.cmds, CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	case SettingsSaved:
		s.Notice = "settings saved"

	case PresetSaved:
		s.Preset = ev.Name
		s.Notice = "saved " + ev.Name

	case PresetLoaded:
		n := ev.Preset.Apply(s.Params)
		s.syncKnobValues()
		s.requestReseed()
		s.Preset = ev.Preset.Name
		s.Notice = fmt.Sprintf("loaded %s (%d params)", ev.Preset.Name, n)

	case CommandFailed:
		if _, ok := ev.Command.(CmdSaveSettings); ok {
			// Retry on the next switch to play.
			s.SettingsDirty = true
		}
		if ev.Err != nil {
			s.Notice = "error: " + ev.Err.Error()
		}

	default:
		// Unknown event type: no-op.
	}
}

// tick runs one control cycle: re-seed, filter, drive, gestures, publish, snapshot.
func (r *reduction) tick() {
	s := r.s

	if s.Reseed {
		s.reseed()
	}

	for i, v := range s.Panel.Knobs {
		s.KnobFilters.Process(i, v)
	}
	for i, v := range s.Panel.CV {
		s.CVFilters.Process(i, v)
	}
	knobs := s.KnobFilters.Values()
	cvs := s.CVFilters.Values()

	settingsBefore := s.Settings

	switch s.Mode {
	case ModePlay:
		r.drivePlay(knobs, cvs)
	case ModeParameters:
		r.drivePage(knobs)
	}
	r.commitMapped(cvs)

	if s.Encoder.Poll(r.now, r.cfg.EncoderLongPress) == PressLong {
		s.Input.EncoderLong = true
	}
	if s.PageButton.Poll(r.now, r.cfg.PageLongPress) == PressLong {
		s.Input.PageLong = true
	}
	r.applyEncoder()
	r.applyPageButton(cvs)
	s.Input = PendingInput{}

	if s.Settings != settingsBefore {
		r.cmds = append(r.cmds, CmdPublishSettings{Settings: s.Settings})
	}
	var cv [engine.CVInputs]float64
	copy(cv[:], cvs)
	r.cmds = append(r.cmds, CmdPublishCV{CV: cv})

	snap := s.Snapshot()
	if s.lastSnapshot == nil || !snap.Equal(*s.lastSnapshot) {
		s.lastSnapshot = &snap
		r.bcasts = append(r.bcasts, BroadcastStateChanged{Snapshot: snap, At: r.now})
	}
}

// drivePlay runs the knobs through the catch-up bank into the visible rows.
func (r *reduction) drivePlay(knobs, cvs []float64) {
	s := r.s
	start, end := s.Menu.VisibleRange()
	for i := 0; i < s.PlayCatchers.Len(); i++ {
		v := s.PlayCatchers.Process(i, knobs[i])
		row := start + i
		if row >= end || !s.Binder.Ready() {
			continue
		}
		s.KnobValues[row] = v
		s.Binder.Commit(s.Params.At(row), v, cvs)
	}
}

// drivePage runs the knobs through the page bank into the settings.
func (r *reduction) drivePage(knobs []float64) {
	s := r.s
	var vals [settings.Knobs]float64
	for i := range vals {
		vals[i] = s.PageCatchers.Process(i, knobs[i])
	}
	if !s.Binder.Ready() {
		return
	}
	before := s.Settings
	s.Settings.ApplyPage(s.Page, vals)
	if s.Settings != before {
		s.SettingsDirty = true
	}
}

// commitMapped keeps CV-mapped parameters outside the knob window following
// their CV source.
func (r *reduction) commitMapped(cvs []float64) {
	s := r.s
	if !s.Binder.Ready() {
		return
	}
	start, end := -1, -1
	if s.Mode == ModePlay {
		start, end = s.Menu.VisibleRange()
	}
	for row := 0; row < s.Params.Len(); row++ {
		if row >= start && row < end {
			continue
		}
		if p := s.Params.At(row); p.CV.Mapped() {
			s.Binder.Commit(p, s.KnobValues[row], cvs)
		}
	}
}

func (r *reduction) applyEncoder() {
	s := r.s
	in := menu.Input{
		Delta:      s.Input.EncoderDelta,
		ShortPress: s.Input.EncoderShort,
		LongPress:  s.Input.EncoderLong,
	}
	if in.Empty() {
		return
	}

	switch s.Mode {
	case ModePlay:
		eff := s.Menu.Update(in, s.knobSource)
		if eff.ScrollChanged {
			s.requestReseed()
		}
		if eff.Edited {
			row := s.Menu.State().Selected
			s.KnobValues[row] = s.Params.Normalized(row)
			r.holdKnob(row)
		}

	case ModeParameters:
		if in.Delta != 0 {
			n := int(settings.PageCount)
			s.Page = settings.Page(((int(s.Page)+in.Delta)%n + n) % n)
			s.requestReseed()
			r.modeChanged()
		}
	}
}

func (r *reduction) applyPageButton(cvs []float64) {
	s := r.s
	short, long := s.Input.PageShort, s.Input.PageLong
	if !short && !long {
		return
	}

	switch s.Mode {
	case ModePlay:
		if long {
			r.cycleEnum("Bank")
		} else {
			r.cycleEnum("Engine")
		}

	case ModeParameters:
		if long {
			r.pageAction()
		} else {
			s.Page = s.Page.Next()
			s.requestReseed()
			r.modeChanged()
		}

	case ModeCalibration:
		if long {
			s.Notice = "calibration cancelled"
			r.leaveCalibration()
		} else {
			r.captureCalibration(cvs[engine.CVVOct])
		}
	}
}

// cycleEnum advances the named enumerated parameter, wrapping.
func (r *reduction) cycleEnum(name string) {
	s := r.s
	idx, p := s.Params.Lookup(name)
	if p == nil || p.Count() == 0 {
		return
	}
	p.Set(float64((p.Index() + 1) % p.Count()))
	s.KnobValues[idx] = p.Normalized()
	r.holdKnob(idx)
	s.Notice = fmt.Sprintf("%s: %s", p.Name, p.Format())
}

// pageAction runs the long-press action of the current settings page.
func (r *reduction) pageAction() {
	s := r.s
	switch s.Page {
	case settings.PageAttenuverters:
		s.Settings.ResetAttenuverters()
		s.SettingsDirty = true
		s.requestReseed()
		s.Notice = "attenuverters reset"

	case settings.PageEnvelope:
		s.Settings.CycleEnvelope()
		s.SettingsDirty = true
		s.Notice = "envelope: " + s.Settings.Envelope.String()

	case settings.PageTuning:
		s.Mode = ModeCalibration
		s.Calibration = CalibrationState{}
		s.Notice = "calibration: patch 1V into V/Oct and press"
		r.modeChanged()
	}
}

func (r *reduction) captureCalibration(v float64) {
	s := r.s
	if s.Calibration.Step == 0 {
		s.Calibration.Low = v
		s.Calibration.Step = 1
		s.Notice = "calibration: patch 3V into V/Oct and press"
		return
	}

	low := s.Calibration.Low
	c, err := settings.Calibrate(low, v)
	r.cmds = append(r.cmds, CmdReportCalibration{Low: low, High: v, Result: c, Err: err})
	if err != nil {
		s.Notice = "calibration failed"
	} else {
		s.Settings.ApplyCalibration(c)
		s.SettingsDirty = false
		r.cmds = append(r.cmds, CmdSaveSettings{Settings: s.Settings})
		s.Notice = "calibration done"
	}
	r.leaveCalibration()
}

func (r *reduction) leaveCalibration() {
	s := r.s
	s.Mode = ModeParameters
	s.Calibration = CalibrationState{}
	s.requestReseed()
	r.modeChanged()
}

func (r *reduction) setMode(m Mode) {
	s := r.s
	if m == s.Mode {
		return
	}
	if m == ModePlay && s.SettingsDirty {
		s.SettingsDirty = false
		r.cmds = append(r.cmds, CmdSaveSettings{Settings: s.Settings})
	}
	s.Mode = m
	s.Calibration = CalibrationState{}
	s.Input = PendingInput{}
	s.requestReseed()
	r.modeChanged()
}

func (r *reduction) setGate(high bool) {
	s := r.s
	if s.Panel.Gate == high {
		return
	}
	s.Panel.Gate = high
	r.cmds = append(r.cmds, CmdGate{Index: 0, High: high})
}

func (r *reduction) queuePress(button string, kind PressKind) {
	in := &r.s.Input
	switch {
	case button == ButtonEncoder && kind == PressShort:
		in.EncoderShort = true
	case button == ButtonEncoder && kind == PressLong:
		in.EncoderLong = true
	case button == ButtonPage && kind == PressShort:
		in.PageShort = true
	case button == ButtonPage && kind == PressLong:
		in.PageLong = true
	}
}

// holdKnob re-seeds the catcher driving row, if it is on screen, so the knob
// does not immediately overwrite a value set from elsewhere.
func (r *reduction) holdKnob(row int) {
	s := r.s
	if s.Mode != ModePlay {
		return
	}
	start, end := s.Menu.VisibleRange()
	if row < start || row >= end {
		return
	}
	if c := s.PlayCatchers.At(row - start); c != nil {
		c.OnPageChange(s.KnobValues[row])
	}
}

func (r *reduction) modeChanged() {
	r.bcasts = append(r.bcasts, BroadcastModeChanged{Mode: r.s.Mode, Page: r.s.Page, At: r.now})
}

// knobSource reports the knob-derived value of a parameter for origin capture.
func (s *DeviceState) knobSource(i int) (float64, bool) {
	if i < 0 || i >= len(s.KnobValues) {
		return 0, false
	}
	return s.KnobValues[i], true
}
