package main

import (
	"encoding/json"
	"fmt"
	"time"

	"eurobrainz/internal/settings"
)

// ============================================================================
// Events
// ============================================================================
// Events are inputs to the reducer: panel readings, user gestures, timer
// ticks, effect observations and failures.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent wraps an external event with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ============================================================================
// Panel readings
// ============================================================================

// ControlFrame carries a full or partial panel scan. Values are normalized to
// [0, 1]; missing entries keep their previous reading.
type ControlFrame struct {
	Knobs []float64 `json:"knobs,omitempty"`
	CV    []float64 `json:"cv,omitempty"`
	Gate  *bool     `json:"gate,omitempty"`
}

func (ControlFrame) eventMarker() {}

// SetKnob updates a single knob reading.
type SetKnob struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

func (SetKnob) eventMarker() {}

// SetCV updates a single CV input reading.
type SetCV struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

func (SetCV) eventMarker() {}

// SetGate updates the trigger input.
type SetGate struct {
	High bool `json:"high"`
}

func (SetGate) eventMarker() {}

// ============================================================================
// User gestures
// ============================================================================

// Button names accepted by ButtonEdge and ButtonPress.
const (
	ButtonEncoder = "encoder"
	ButtonPage    = "page"
)

// EncoderTurn is a raw rotary encoder movement in detents.
type EncoderTurn struct {
	Steps int `json:"steps"` // positive=clockwise
}

func (EncoderTurn) eventMarker() {}

// ButtonEdge is a debounced press or release. The reducer classifies edges
// into short and long presses.
type ButtonEdge struct {
	Button  string `json:"button"`
	Pressed bool   `json:"pressed"`
}

func (ButtonEdge) eventMarker() {}

// ButtonPress is an already classified press, for sources that cannot report
// hold time.
type ButtonPress struct {
	Button string `json:"button"`
	Long   bool   `json:"long,omitempty"`
}

func (ButtonPress) eventMarker() {}

// SetMode selects the panel mode ("play" or "parameters").
type SetMode struct {
	Mode string `json:"mode"`
}

func (SetMode) eventMarker() {}

// ToggleMode flips between play and parameters.
type ToggleMode struct{}

func (ToggleMode) eventMarker() {}

// SavePreset captures the parameter table under Name.
type SavePreset struct {
	Name string `json:"name"`
}

func (SavePreset) eventMarker() {}

// LoadPreset restores the preset called Name.
type LoadPreset struct {
	Name string `json:"name"`
}

func (LoadPreset) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for the current display snapshot.
// Reply must be buffered; the effects layer never blocks on it.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// Observations
// ============================================================================

// SettingsSaved is emitted after the settings record was written.
type SettingsSaved struct {
	At time.Time
}

func (SettingsSaved) eventMarker() {}

// PresetSaved is emitted after a preset was written.
type PresetSaved struct {
	Name string
	At   time.Time
}

func (PresetSaved) eventMarker() {}

// PresetLoaded carries a preset read from the store.
type PresetLoaded struct {
	Preset settings.Preset
	At     time.Time
}

func (PresetLoaded) eventMarker() {}

// CommandFailed is emitted when executing a Command fails.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// decodeData unmarshals an envelope payload into a fresh T.
func decodeData[T Event](data json.RawMessage, name string) (Event, error) {
	var a T
	if len(data) == 0 {
		return nil, fmt.Errorf("unmarshal %s: missing data", name)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return a, nil
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Only externally sourced events can be decoded.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "control_frame":
		return decodeData[ControlFrame](env.Data, "ControlFrame")
	case "set_knob":
		return decodeData[SetKnob](env.Data, "SetKnob")
	case "set_cv":
		return decodeData[SetCV](env.Data, "SetCV")
	case "set_gate":
		return decodeData[SetGate](env.Data, "SetGate")
	case "encoder_turn":
		return decodeData[EncoderTurn](env.Data, "EncoderTurn")

	case "button_edge":
		ev, err := decodeData[ButtonEdge](env.Data, "ButtonEdge")
		if err != nil {
			return nil, err
		}
		if err := checkButton(ev.(ButtonEdge).Button); err != nil {
			return nil, err
		}
		return ev, nil

	case "button_press":
		ev, err := decodeData[ButtonPress](env.Data, "ButtonPress")
		if err != nil {
			return nil, err
		}
		if err := checkButton(ev.(ButtonPress).Button); err != nil {
			return nil, err
		}
		return ev, nil

	case "set_mode":
		ev, err := decodeData[SetMode](env.Data, "SetMode")
		if err != nil {
			return nil, err
		}
		if _, err := parseMode(ev.(SetMode).Mode); err != nil {
			return nil, err
		}
		return ev, nil

	case "toggle_mode":
		return ToggleMode{}, nil

	case "save_preset":
		ev, err := decodeData[SavePreset](env.Data, "SavePreset")
		if err != nil {
			return nil, err
		}
		if err := settings.ValidatePresetName(ev.(SavePreset).Name); err != nil {
			return nil, err
		}
		return ev, nil

	case "load_preset":
		ev, err := decodeData[LoadPreset](env.Data, "LoadPreset")
		if err != nil {
			return nil, err
		}
		if err := settings.ValidatePresetName(ev.(LoadPreset).Name); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

func checkButton(name string) error {
	switch name {
	case ButtonEncoder, ButtonPage:
		return nil
	default:
		return fmt.Errorf("unknown button: %q", name)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope
	var payload any

	switch e := e.(type) {
	case ControlFrame:
		env.Type, payload = "control_frame", e
	case SetKnob:
		env.Type, payload = "set_knob", e
	case SetCV:
		env.Type, payload = "set_cv", e
	case SetGate:
		env.Type, payload = "set_gate", e
	case EncoderTurn:
		env.Type, payload = "encoder_turn", e
	case ButtonEdge:
		env.Type, payload = "button_edge", e
	case ButtonPress:
		env.Type, payload = "button_press", e
	case SetMode:
		env.Type, payload = "set_mode", e
	case ToggleMode:
		env.Type = "toggle_mode"
	case SavePreset:
		env.Type, payload = "save_preset", e
	case LoadPreset:
		env.Type, payload = "load_preset", e
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}
