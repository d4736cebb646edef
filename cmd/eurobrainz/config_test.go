package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eurobrainz.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	rc := cfg.ToReduceConfig()
	if rc.EncoderLongPress != 500*time.Millisecond || rc.PageLongPress != 2*time.Second {
		t.Errorf("long press = %v / %v", rc.EncoderLongPress, rc.PageLongPress)
	}
	if rc.Module != defaultModuleName {
		t.Errorf("module = %q", rc.Module)
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
controls:
  update_hz: 250
  knob_coefficients: [0.1, 0.1, 0.2, 0.2]
state_ws:
  addr: ""
logging:
  format: json
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Controls.UpdateHz != 250 {
		t.Errorf("update_hz = %d, want 250", cfg.Controls.UpdateHz)
	}
	if cfg.Controls.KnobCoefficients[2] != 0.2 {
		t.Errorf("knob_coefficients = %v", cfg.Controls.KnobCoefficients)
	}
	if cfg.StateWS.Addr != "" {
		t.Errorf("state_ws.addr = %q, want disabled", cfg.StateWS.Addr)
	}
	// Untouched sections keep their defaults.
	if cfg.IPC.SocketPath != defaultSocketPath {
		t.Errorf("ipc.socket_path = %q", cfg.IPC.SocketPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "controls:\n  updatehz: 10\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n---\nlogging:\n  level: info\n")
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("err = %v, want trailing document error", err)
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.Devices = []string{"/dev/input/event3"}

	dev := ""
	hz := 100
	addr := ""
	on := true
	FlagOverrides{
		InputDevice:   &dev,
		UpdateHz:      &hz,
		StateWSAddr:   &addr,
		InputTerminal: &on,
	}.Apply(&cfg)

	if cfg.Input.Devices != nil {
		t.Errorf("devices = %v, want cleared", cfg.Input.Devices)
	}
	if cfg.Controls.UpdateHz != 100 || cfg.StateWS.Addr != "" || !cfg.Input.Terminal {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	// Nil pointers leave values alone.
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestConfigValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"update hz", func(c *Config) { c.Controls.UpdateHz = 0 }},
		{"update hz too high", func(c *Config) { c.Controls.UpdateHz = maxUpdateHz + 1 }},
		{"long press", func(c *Config) { c.Controls.EncoderLongPressMS = 0 }},
		{"hysteresis", func(c *Config) { c.Controls.Hysteresis = 0.5 }},
		{"knob count", func(c *Config) { c.Controls.KnobCoefficients = []float64{0.1} }},
		{"knob coefficient", func(c *Config) { c.Controls.KnobCoefficients[0] = 0 }},
		{"cv coefficient", func(c *Config) { c.Controls.CVCoefficient = 2 }},
		{"menu visible", func(c *Config) { c.Menu.Visible = 0 }},
		{"settings path", func(c *Config) { c.Storage.SettingsPath = "" }},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"audio sinks", func(c *Config) { c.Audio.Device = true; c.Audio.Output = "/tmp/x.raw" }},
		{"socket", func(c *Config) { c.IPC.SocketPath = "" }},
		{"ws path", func(c *Config) { c.StateWS.Path = "ws" }},
		{"empty device", func(c *Config) { c.Input.Devices = []string{""} }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cases := map[string]string{
		"":               "",
		"/etc/x":         "/etc/x",
		"~":              home,
		"~/presets":      filepath.Join(home, "presets"),
		"~other/presets": "~other/presets",
	}
	for in, want := range cases {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}
