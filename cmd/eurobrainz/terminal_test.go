package main

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestKeyPanel_Keys(t *testing.T) {
	p := newKeyPanel()

	cases := []struct {
		key  byte
		want Event
	}{
		{'j', EncoderTurn{Steps: 1}},
		{'k', EncoderTurn{Steps: -1}},
		{'\r', ButtonPress{Button: ButtonEncoder}},
		{'l', ButtonPress{Button: ButtonEncoder, Long: true}},
		{'n', ButtonPress{Button: ButtonPage}},
		{'N', ButtonPress{Button: ButtonPage, Long: true}},
		{'m', ToggleMode{}},
		{'g', SetGate{High: true}},
		{'g', SetGate{High: false}},
		{'?', nil},
	}
	for _, tc := range cases {
		got, quit := p.key(tc.key)
		if quit {
			t.Fatalf("key %q requested quit", tc.key)
		}
		if got != tc.want {
			t.Errorf("key %q = %+v, want %+v", tc.key, got, tc.want)
		}
	}

	if _, quit := p.key('x'); !quit {
		t.Errorf("x did not quit")
	}
	if _, quit := p.key(0x03); !quit {
		t.Errorf("ctrl-c did not quit")
	}
}

func TestKeyPanel_NudgeClamps(t *testing.T) {
	p := newKeyPanel()
	var last Event
	for i := 0; i < 20; i++ {
		last, _ = p.key('w')
	}
	sk, ok := last.(SetKnob)
	if !ok || sk.Index != 1 || sk.Value != 1 {
		t.Fatalf("last nudge = %+v, want knob 1 at 1", last)
	}

	ev, _ := p.key('d')
	if sk := ev.(SetKnob); sk.Index != 2 || math.Abs(sk.Value-0.45) > 1e-9 {
		t.Errorf("nudge down = %+v, want knob 2 at 0.45", sk)
	}
}

func TestPumpKeys_ForwardsUntilQuit(t *testing.T) {
	events := make(chan Event, 8)
	err := pumpKeys(context.Background(), strings.NewReader("jmx j"), newKeyPanel(), events)
	if !errors.Is(err, errQuit) {
		t.Fatalf("err = %v, want errQuit", err)
	}
	close(events)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want initial frame + 2 keys: %+v", len(got), got)
	}
	if _, ok := got[0].(ControlFrame); !ok {
		t.Errorf("first event = %T, want ControlFrame", got[0])
	}
	if got[1] != (EncoderTurn{Steps: 1}) || got[2] != (ToggleMode{}) {
		t.Errorf("events = %+v", got[1:])
	}
}

func TestPumpKeys_EOFEndsCleanly(t *testing.T) {
	events := make(chan Event, 8)
	if err := pumpKeys(context.Background(), strings.NewReader("k"), newKeyPanel(), events); err != nil {
		t.Fatalf("err = %v, want nil at EOF", err)
	}
	if n := len(events); n != 2 {
		t.Errorf("queued %d events, want 2", n)
	}
}
