package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"eurobrainz/internal/engine"
	"eurobrainz/internal/settings"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("EuroBrainz v%s\n", version)
	fmt.Println("Control conditioning daemon for a Eurorack synth voice")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  eurobrainz [OPTIONS]")
	fmt.Println("  eurobrainz presets [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads the panel (knobs, CV inputs, encoder and buttons), conditions the")
	fmt.Println("  control signals, drives the parameter menu and publishes the resulting")
	fmt.Println("  parameter values to the synthesis engine. A display can follow the")
	fmt.Println("  state over WebSocket; euro-ctl drives the panel over a Unix socket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device carrying the encoder and buttons")
	fmt.Println()
	fmt.Println("  -terminal")
	fmt.Println("        Drive the panel from the keyboard on stdin")
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Control loop frequency in Hz (default %d)\n", defaultUpdateHz)
	fmt.Println()
	fmt.Println("  -settings string")
	fmt.Printf("        Settings record path (default %q)\n", defaultSettingsPath)
	fmt.Println()
	fmt.Println("  -preset-dir string")
	fmt.Printf("        Preset directory (default %q)\n", defaultPresetDir)
	fmt.Println()
	fmt.Println("  -audio")
	fmt.Println("        Render the engine at the configured sample rate")
	fmt.Println()
	fmt.Println("  -audio-device")
	fmt.Println("        Play the audio on the default sound card")
	fmt.Println()
	fmt.Println("  -audio-output string")
	fmt.Println("        File or FIFO receiving s16le stereo audio (empty discards)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -state-ws-addr string")
	fmt.Printf("        Display WebSocket listen address, empty disables (default %q)\n", defaultStateWSAddr)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-format string")
	fmt.Println("        Log format: text, json (default \"text\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("PANEL (terminal mode):")
	fmt.Print("  " + terminalHelp[:len(terminalHelp)-2] + "\n")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "presets" {
		runPresetsSubcommand()
		return
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		inputDevice  = flag.String("input-device", "", "Linux input event device for the encoder and buttons")
		terminal     = flag.Bool("terminal", false, "Drive the panel from the keyboard on stdin")
		updateHz     = flag.Int("update-hz", defaultUpdateHz, "Control loop frequency in Hz")
		settingsPath = flag.String("settings", defaultSettingsPath, "Settings record path")
		presetDir    = flag.String("preset-dir", defaultPresetDir, "Preset directory")
		audio        = flag.Bool("audio", false, "Render the engine")
		audioDevice  = flag.Bool("audio-device", false, "Play the audio on the default sound card")
		audioOutput  = flag.String("audio-output", "", "File receiving s16le stereo audio")
		ipcSocket    = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		stateWSAddr  = flag.String("state-ws-addr", defaultStateWSAddr, "Display WebSocket listen address")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFormat    = flag.String("log-format", "text", "Log format: text, json")
		_            = flag.Bool("version", false, "Print version and exit")
		_            = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-device":
			o.InputDevice = inputDevice
		case "terminal":
			o.InputTerminal = terminal
		case "update-hz":
			o.UpdateHz = updateHz
		case "settings":
			o.SettingsPath = settingsPath
		case "preset-dir":
			o.PresetDir = presetDir
		case "audio":
			o.AudioEnabled = audio
		case "audio-device":
			o.AudioDevice = audioDevice
		case "audio-output":
			o.AudioOutput = audioOutput
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "state-ws-addr":
			o.StateWSAddr = stateWSAddr
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-format":
			o.LogFormat = logFormat
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stderr, logLevel, cfg.Logging.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("eurobrainz stopped", "error", err)
		os.Exit(1)
	}
}

// loadSettings reads the settings record. A corrupt or foreign record is
// replaced with defaults so the next boot starts clean.
func loadSettings(store *settings.Store, logger *slog.Logger) settings.Settings {
	st, err := store.Load()
	if err == nil {
		return st
	}
	if errors.Is(err, settings.ErrSignatureMismatch) {
		logger.Warn("settings record has a foreign signature; resetting to defaults", "path", store.Path(), "error", err)
	} else {
		logger.Warn("could not read settings; using defaults", "path", store.Path(), "error", err)
	}
	if err := store.Save(st); err != nil {
		logger.Error("failed to write default settings", "path", store.Path(), "error", err)
	}
	return st
}

func run(cfg Config, logger *slog.Logger) error {
	store := settings.NewStore(ExpandPath(cfg.Storage.SettingsPath))
	st := loadSettings(store, logger)

	plaits := engine.NewPlaits(nil)
	if err := plaits.Init(cfg.Audio.SampleRate); err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	plaits.SetSettings(st)

	state := NewDeviceState(plaits.Parameters(), st, cfg)
	deps := EffectDeps{
		Settings: store,
		Presets:  settings.NewPresetStore(ExpandPath(cfg.Storage.PresetDir)),
		Engine:   plaits,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus.
	events := make(chan Event, 64)

	// Broadcasts are only consumed when the display server runs.
	var broadcasts chan StateBroadcast
	if cfg.StateWS.Addr != "" {
		broadcasts = make(chan StateBroadcast, 128)
	}

	logger.Debug("starting eurobrainz", "version", version, "module", plaits.Name())
	logger.Debug("configuration",
		"input_devices", cfg.Input.Devices,
		"terminal", cfg.Input.Terminal,
		"update_hz", cfg.Controls.UpdateHz,
		"encoder_long_press_ms", cfg.Controls.EncoderLongPressMS,
		"page_long_press_ms", cfg.Controls.PageLongPressMS,
		"hysteresis", cfg.Controls.Hysteresis,
		"knob_coefficients", cfg.Controls.KnobCoefficients,
		"cv_coefficient", cfg.Controls.CVCoefficient,
		"settings_path", store.Path(),
		"preset_dir", cfg.Storage.PresetDir,
		"audio", cfg.Audio.Enabled,
		"audio_device", cfg.Audio.Device,
		"sample_rate", cfg.Audio.SampleRate)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, deps, state, cfg.ToReduceConfig(), cfg.Controls.UpdateHz, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})

	if cfg.StateWS.Addr != "" {
		srv := NewServer(logger, events, ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StateWS.Path)

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.StateWS.Addr, mux, logger)
		})
	}

	if len(cfg.Input.Devices) > 0 {
		g.Go(func() error {
			return runInputDevices(gctx, cfg.Input.Devices, events, logger)
		})
	}

	if cfg.Input.Terminal {
		g.Go(func() error {
			err := runTerminal(gctx, os.Stdin, events, logger)
			if errors.Is(err, errQuit) {
				logger.Info("quit from terminal panel")
				stop()
				return nil
			}
			return err
		})
	}

	if cfg.Audio.Enabled {
		g.Go(func() error {
			return runAudio(gctx, plaits, cfg.Audio, logger)
		})
	}

	listenInfo := []any{"ipc", cfg.IPC.SocketPath, "update_rate_hz", cfg.Controls.UpdateHz}
	if cfg.StateWS.Addr != "" {
		listenInfo = append(listenInfo, "state_ws", cfg.StateWS.Addr+cfg.StateWS.Path)
	}
	logger.Info("listening", listenInfo...)

	err := g.Wait()
	logger.Info("shutting down")
	return err
}

func printPresetsUsage() {
	fmt.Printf("EuroBrainz presets v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  eurobrainz presets [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Lists the presets stored in the preset directory.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file")
	fmt.Println()
	fmt.Println("  -preset-dir string")
	fmt.Printf("        Preset directory (default from config or %q)\n", defaultPresetDir)
	fmt.Println()
}

// runPresetsSubcommand handles the presets subcommand.
func runPresetsSubcommand() {
	fs := flag.NewFlagSet("presets", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	presetDir := fs.String("preset-dir", "", "Preset directory")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printPresetsUsage

	fs.Parse(os.Args[2:])

	if *showHelp {
		printPresetsUsage()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *presetDir != "" {
		cfg.Storage.PresetDir = *presetDir
	}

	names, err := settings.NewPresetStore(ExpandPath(cfg.Storage.PresetDir)).List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}
