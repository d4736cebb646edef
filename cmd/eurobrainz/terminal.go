package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"eurobrainz/internal/settings"
)

// errQuit is returned by the terminal panel when the user asks to exit.
var errQuit = errors.New("quit requested")

// knobNudge is how far one key press moves a virtual knob.
const knobNudge = 0.05

const terminalHelp = "keys: j/k turn  enter click  l hold  n page  N page hold  m mode  " +
	"q/w/e/r knob+  a/s/d/f knob-  g gate  x quit\r\n"

// keyPanel is a keyboard stand-in for the hardware panel. It remembers the
// virtual knob positions so nudges are relative.
type keyPanel struct {
	knobs [settings.Knobs]float64
	gate  bool
}

func newKeyPanel() *keyPanel {
	p := &keyPanel{}
	for i := range p.knobs {
		p.knobs[i] = 0.5
	}
	return p
}

// initial returns the frame that places every virtual knob at its start.
func (p *keyPanel) initial() Event {
	return ControlFrame{Knobs: p.knobs[:]}
}

// key translates one key press. quit reports an exit request.
func (p *keyPanel) key(b byte) (ev Event, quit bool) {
	switch b {
	case 'j':
		return EncoderTurn{Steps: 1}, false
	case 'k':
		return EncoderTurn{Steps: -1}, false
	case '\r', '\n', ' ':
		return ButtonPress{Button: ButtonEncoder}, false
	case 'l':
		return ButtonPress{Button: ButtonEncoder, Long: true}, false
	case 'n':
		return ButtonPress{Button: ButtonPage}, false
	case 'N':
		return ButtonPress{Button: ButtonPage, Long: true}, false
	case 'm':
		return ToggleMode{}, false
	case 'g':
		p.gate = !p.gate
		return SetGate{High: p.gate}, false
	case 'x', 0x03: // Ctrl-C arrives as a byte in raw mode
		return nil, true
	}

	for i, up := range []byte("qwer") {
		if b == up {
			return p.nudge(i, knobNudge), false
		}
	}
	for i, down := range []byte("asdf") {
		if b == down {
			return p.nudge(i, -knobNudge), false
		}
	}
	return nil, false
}

func (p *keyPanel) nudge(i int, d float64) Event {
	p.knobs[i] = clamp01(p.knobs[i] + d)
	return SetKnob{Index: i, Value: p.knobs[i]}
}

// runTerminal drives the daemon from the keyboard until ctx is canceled or
// the user quits. stdin is switched to raw mode for the duration.
func runTerminal(ctx context.Context, in *os.File, events chan<- Event, logger *slog.Logger) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("terminal panel: stdin is not a terminal")
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("terminal panel: raw mode: %w", err)
	}
	defer func() {
		if err := term.Restore(fd, old); err != nil {
			logger.Warn("terminal restore failed", "error", err)
		}
	}()

	fmt.Fprint(os.Stderr, terminalHelp)
	logger.Info("terminal panel active")

	return pumpKeys(ctx, in, newKeyPanel(), events)
}

// pumpKeys reads key presses from r and forwards the panel events.
func pumpKeys(ctx context.Context, r io.Reader, panel *keyPanel, events chan<- Event) error {
	keys := make(chan byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := r.Read(buf); err != nil {
				readErr <- err
				return
			}
			select {
			case keys <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(panel.initial()) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("terminal panel: read: %w", err)
		case b := <-keys:
			ev, quit := panel.key(b)
			if quit {
				return errQuit
			}
			if ev != nil && !send(ev) {
				return nil
			}
		}
	}
}
