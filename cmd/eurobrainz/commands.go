package main

import (
	"fmt"

	"eurobrainz/internal/engine"
	"eurobrainz/internal/settings"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop:
// persistence, engine publication and snapshot replies.
type Command interface {
	commandMarker()
	String() string
}

// CmdSaveSettings writes the settings record.
type CmdSaveSettings struct {
	Settings settings.Settings
}

func (CmdSaveSettings) commandMarker() {}
func (CmdSaveSettings) String() string { return "CmdSaveSettings()" }

// CmdSavePreset writes a captured preset.
type CmdSavePreset struct {
	Preset settings.Preset
}

func (CmdSavePreset) commandMarker() {}
func (c CmdSavePreset) String() string {
	return fmt.Sprintf("CmdSavePreset(name=%s, params=%d)", c.Preset.Name, len(c.Preset.Params))
}

// CmdLoadPreset reads a preset; the result comes back as PresetLoaded.
type CmdLoadPreset struct {
	Name string
}

func (CmdLoadPreset) commandMarker()   {}
func (c CmdLoadPreset) String() string { return fmt.Sprintf("CmdLoadPreset(name=%s)", c.Name) }

// CmdPublishSettings hands a settings snapshot to the engine.
type CmdPublishSettings struct {
	Settings settings.Settings
}

func (CmdPublishSettings) commandMarker() {}
func (CmdPublishSettings) String() string { return "CmdPublishSettings()" }

// CmdPublishCV hands the filtered CV readings to the engine.
type CmdPublishCV struct {
	CV [engine.CVInputs]float64
}

func (CmdPublishCV) commandMarker() {}
func (c CmdPublishCV) String() string {
	return fmt.Sprintf("CmdPublishCV(cv=%.3f)", c.CV)
}

// CmdGate forwards a gate edge to the engine.
type CmdGate struct {
	Index int
	High  bool
}

func (CmdGate) commandMarker() {}
func (c CmdGate) String() string {
	return fmt.Sprintf("CmdGate(index=%d, high=%v)", c.Index, c.High)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// CmdReportCalibration logs the outcome of a V/Oct calibration.
type CmdReportCalibration struct {
	Low    float64
	High   float64
	Result settings.Calibration
	Err    error
}

func (CmdReportCalibration) commandMarker() {}
func (c CmdReportCalibration) String() string {
	return fmt.Sprintf("CmdReportCalibration(low=%.4f, high=%.4f, ok=%v)", c.Low, c.High, c.Err == nil)
}
