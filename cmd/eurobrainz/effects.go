package main

import (
	"errors"
	"log/slog"
	"time"

	"eurobrainz/internal/settings"
)

// SettingsSaver persists the settings record.
type SettingsSaver interface {
	Save(settings.Settings) error
}

// PresetBackend stores named presets.
type PresetBackend interface {
	Save(settings.Preset) error
	Load(name string) (settings.Preset, error)
}

// EngineSink receives the data the audio path reads between ticks.
type EngineSink interface {
	SetSettings(settings.Settings)
	SetCV([]float64)
	ProcessGate(index int, high bool)
}

// EffectDeps are the external systems commands are executed against.
// Nil members make the matching commands fail with errNoBackend.
type EffectDeps struct {
	Settings SettingsSaver
	Presets  PresetBackend
	Engine   EngineSink
}

// errNoBackend indicates a command was issued without the backend it needs.
var errNoBackend = errors.New("no backend for command")

// runEffect executes a single reducer-emitted Command and emits an observation
// Event via onEvent.
//
// It must never call Reduce() directly; the daemon loop sequences
// Reduce -> Commands -> runEffect -> Events -> Reduce.
func runEffect(
	deps EffectDeps,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	now := time.Now()
	fail := func(err error) {
		onEvent(CommandFailed{Command: cmd, Err: err, At: now})
	}

	switch c := cmd.(type) {
	case CmdPublishCV:
		if deps.Engine == nil {
			return
		}
		deps.Engine.SetCV(c.CV[:])

	case CmdPublishSettings:
		if deps.Engine == nil {
			return
		}
		deps.Engine.SetSettings(c.Settings)

	case CmdGate:
		if deps.Engine == nil {
			return
		}
		deps.Engine.ProcessGate(c.Index, c.High)

	case CmdSaveSettings:
		if deps.Settings == nil {
			fail(errNoBackend)
			return
		}
		if err := deps.Settings.Save(c.Settings); err != nil {
			logger.Error("settings save failed", "error", err)
			fail(err)
			return
		}
		logger.Info("settings saved")
		onEvent(SettingsSaved{At: now})

	case CmdSavePreset:
		if deps.Presets == nil {
			fail(errNoBackend)
			return
		}
		if err := deps.Presets.Save(c.Preset); err != nil {
			logger.Error("preset save failed", "error", err, "name", c.Preset.Name)
			fail(err)
			return
		}
		logger.Info("preset saved", "name", c.Preset.Name, "params", len(c.Preset.Params))
		onEvent(PresetSaved{Name: c.Preset.Name, At: now})

	case CmdLoadPreset:
		if deps.Presets == nil {
			fail(errNoBackend)
			return
		}
		pr, err := deps.Presets.Load(c.Name)
		if err != nil {
			logger.Error("preset load failed", "error", err, "name", c.Name)
			fail(err)
			return
		}
		onEvent(PresetLoaded{Preset: pr, At: now})

	case CmdReportCalibration:
		if c.Err != nil {
			logger.Warn("calibration rejected", "low", c.Low, "high", c.High, "error", c.Err)
			return
		}
		logger.Info("calibration applied",
			"low", c.Low,
			"high", c.High,
			"offset", c.Result.Offset,
			"scale", c.Result.Scale)

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		fail(errUnknownCommand{cmd: cmd})
	}
}

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
