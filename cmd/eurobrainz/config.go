package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"eurobrainz/internal/control"
	"eurobrainz/internal/settings"
)

// Config is the top-level YAML configuration for the eurobrainz daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Hardware and terminal input
	Input InputConfig `yaml:"input"`

	// Control conditioning (filters, catchers, press timing)
	Controls ControlsConfig `yaml:"controls"`

	// Parameter menu
	Menu MenuConfig `yaml:"menu"`

	// Settings and preset persistence
	Storage StorageConfig `yaml:"storage"`

	// Engine rendering
	Audio AudioConfig `yaml:"audio"`

	// IPC configuration (virtual panel, euro-ctl)
	IPC IPCConfig `yaml:"ipc"`

	// Display snapshot websocket
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Devices  []string `yaml:"devices,omitempty"` // evdev devices carrying the encoder and buttons
	Terminal bool     `yaml:"terminal"`          // read the keyboard panel from stdin
}

type ControlsConfig struct {
	UpdateHz           int     `yaml:"update_hz"`
	EncoderLongPressMS int     `yaml:"encoder_long_press_ms"`
	PageLongPressMS    int     `yaml:"page_long_press_ms"`
	Hysteresis         float64 `yaml:"hysteresis"`

	// Knob conditioning ahead of the catchers.
	KnobCoefficients []float64 `yaml:"knob_coefficients"`
	KnobInputLow     float64   `yaml:"knob_input_low,omitempty"`
	KnobInputHigh    float64   `yaml:"knob_input_high,omitempty"`
	KnobEdgeSnap     float64   `yaml:"knob_edge_snap"`

	CVCoefficient float64 `yaml:"cv_coefficient"`

	// Catcher tuning for the play page and the settings pages.
	Play       control.CatcherConfig `yaml:"play"`
	Parameters control.CatcherConfig `yaml:"parameters"`
}

type MenuConfig struct {
	Visible int `yaml:"visible"`
}

type StorageConfig struct {
	SettingsPath string `yaml:"settings_path"`
	PresetDir    string `yaml:"preset_dir"`
}

type AudioConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
	BlockSize  int     `yaml:"block_size"`
	// Device plays the audio on the default sound card.
	Device bool `yaml:"device"`
	// Output receives raw s16le stereo frames. Empty discards the audio.
	Output string `yaml:"output,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	play := control.DefaultCatcherConfig()
	// Knobs are already smoothed by the knob filter bank.
	play.Coefficient = 1

	params := control.DefaultCatcherConfig()
	params.Coefficient = 1
	params.CatchUp = false

	return Config{
		Input: InputConfig{
			Terminal: false,
		},
		Controls: ControlsConfig{
			UpdateHz:           defaultUpdateHz,
			EncoderLongPressMS: defaultEncoderLongPressMS,
			PageLongPressMS:    defaultPageLongPressMS,
			Hysteresis:         control.DefaultHysteresis,
			KnobCoefficients:   append([]float64(nil), defaultKnobCoefficients...),
			KnobEdgeSnap:       defaultKnobEdgeSnap,
			CVCoefficient:      defaultCVCoefficient,
			Play:               play,
			Parameters:         params,
		},
		Menu: MenuConfig{
			Visible: settings.Knobs,
		},
		Storage: StorageConfig{
			SettingsPath: defaultSettingsPath,
			PresetDir:    defaultPresetDir,
		},
		Audio: AudioConfig{
			Enabled:    false,
			SampleRate: defaultSampleRate,
			BlockSize:  48,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		StateWS: StateWSConfig{
			Addr: defaultStateWSAddr,
			Path: defaultStateWSPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds optional flag values applied on top of a loaded config.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	InputDevice   *string
	InputTerminal *bool

	UpdateHz *int

	SettingsPath *string
	PresetDir    *string

	AudioEnabled *bool
	AudioDevice  *bool
	AudioOutput  *string

	IPCSocketPath *string
	StateWSAddr   *string

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg. If the pointer is non-nil, the value is
// applied (even if it is a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}
	if o.InputTerminal != nil {
		cfg.Input.Terminal = *o.InputTerminal
	}

	if o.UpdateHz != nil {
		cfg.Controls.UpdateHz = *o.UpdateHz
	}

	if o.SettingsPath != nil {
		cfg.Storage.SettingsPath = *o.SettingsPath
	}
	if o.PresetDir != nil {
		cfg.Storage.PresetDir = *o.PresetDir
	}

	if o.AudioEnabled != nil {
		cfg.Audio.Enabled = *o.AudioEnabled
	}
	if o.AudioDevice != nil {
		cfg.Audio.Device = *o.AudioDevice
	}
	if o.AudioOutput != nil {
		cfg.Audio.Output = *o.AudioOutput
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSAddr != nil {
		cfg.StateWS.Addr = *o.StateWSAddr
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Controls
	ctl := c.Controls
	if ctl.UpdateHz <= 0 || ctl.UpdateHz > maxUpdateHz {
		return fmt.Errorf("controls.update_hz must be between 1 and %d", maxUpdateHz)
	}
	if ctl.EncoderLongPressMS <= 0 {
		return errors.New("controls.encoder_long_press_ms must be > 0")
	}
	if ctl.PageLongPressMS <= 0 {
		return errors.New("controls.page_long_press_ms must be > 0")
	}
	if ctl.Hysteresis < 0 || ctl.Hysteresis >= 0.5 {
		return errors.New("controls.hysteresis must be in [0, 0.5)")
	}
	if len(ctl.KnobCoefficients) != settings.Knobs {
		return fmt.Errorf("controls.knob_coefficients must have %d entries", settings.Knobs)
	}
	for i, fc := range c.KnobFilterConfigs() {
		if err := fc.Validate(); err != nil {
			return fmt.Errorf("controls knob %d: %w", i, err)
		}
	}
	if err := (control.FilterConfig{Coefficient: ctl.CVCoefficient}).Validate(); err != nil {
		return fmt.Errorf("controls.cv_coefficient: %w", err)
	}
	if err := ctl.Play.Validate(); err != nil {
		return fmt.Errorf("controls.play: %w", err)
	}
	if err := ctl.Parameters.Validate(); err != nil {
		return fmt.Errorf("controls.parameters: %w", err)
	}

	// Menu
	if c.Menu.Visible < 1 || c.Menu.Visible > settings.Knobs {
		return fmt.Errorf("menu.visible must be between 1 and %d", settings.Knobs)
	}

	// Storage
	if c.Storage.SettingsPath == "" {
		return errors.New("storage.settings_path must not be empty")
	}
	if c.Storage.PresetDir == "" {
		return errors.New("storage.preset_dir must not be empty")
	}

	// Audio
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be > 0")
	}
	if c.Audio.BlockSize <= 0 {
		return errors.New("audio.block_size must be > 0")
	}
	if c.Audio.Device && c.Audio.Output != "" {
		return errors.New("audio.device and audio.output are mutually exclusive")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State websocket
	if c.StateWS.Addr != "" && (c.StateWS.Path == "" || c.StateWS.Path[0] != '/') {
		return errors.New("state_ws.path must start with /")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.New(`logging.format must be "text" or "json"`)
	}

	return nil
}

// KnobFilterConfigs builds one filter config per knob.
func (c *Config) KnobFilterConfigs() []control.FilterConfig {
	out := make([]control.FilterConfig, len(c.Controls.KnobCoefficients))
	for i, coef := range c.Controls.KnobCoefficients {
		out[i] = control.FilterConfig{
			Coefficient: coef,
			InputLow:    c.Controls.KnobInputLow,
			InputHigh:   c.Controls.KnobInputHigh,
			EdgeSnap:    c.Controls.KnobEdgeSnap,
		}
	}
	return out
}

// ToReduceConfig extracts the reducer policy from the file config.
func (c *Config) ToReduceConfig() ReduceConfig {
	return ReduceConfig{
		EncoderLongPress: time.Duration(c.Controls.EncoderLongPressMS) * time.Millisecond,
		PageLongPress:    time.Duration(c.Controls.PageLongPressMS) * time.Millisecond,
		Module:           defaultModuleName,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
