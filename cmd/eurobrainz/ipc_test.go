package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestUnmarshalEvent_RoundTripsExternalEvents(t *testing.T) {
	gate := true
	evs := []Event{
		ControlFrame{Knobs: []float64{0.1, 0.2}, CV: []float64{0.5}, Gate: &gate},
		SetKnob{Index: 3, Value: 0.75},
		SetCV{Index: 1, Value: 0.25},
		SetGate{High: true},
		EncoderTurn{Steps: -2},
		ButtonEdge{Button: ButtonPage, Pressed: true},
		ButtonPress{Button: ButtonEncoder, Long: true},
		SetMode{Mode: "parameters"},
		ToggleMode{},
		SavePreset{Name: "bass_1"},
		LoadPreset{Name: "bass_1"},
	}

	for _, ev := range evs {
		b, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", ev, err)
		}
		got, err := UnmarshalEvent(b)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if cf, ok := ev.(ControlFrame); ok {
			g := got.(ControlFrame)
			if len(g.Knobs) != len(cf.Knobs) || g.Gate == nil || !*g.Gate {
				t.Errorf("control frame = %+v", g)
			}
			continue
		}
		if got != ev {
			t.Errorf("round trip %T: got %+v, want %+v", ev, got, ev)
		}
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":   `{"type":"volume_up"}`,
		"missing data":   `{"type":"set_knob"}`,
		"bad button":     `{"type":"button_press","data":{"button":"shift"}}`,
		"bad mode":       `{"type":"set_mode","data":{"mode":"calibration"}}`,
		"bad preset":     `{"type":"save_preset","data":{"name":"../x"}}`,
		"malformed json": `{"type":`,
	}
	for name, line := range cases {
		if _, err := UnmarshalEvent([]byte(line)); err == nil {
			t.Errorf("%s: expected error for %s", name, line)
		}
	}
}

func TestHandleIPCLine_QueueFull(t *testing.T) {
	events := make(chan Event) // unbuffered, nobody reading
	resp := handleIPCLine(context.Background(), []byte(`{"type":"toggle_mode"}`), events)
	if resp.Status != "error" || resp.Error != "event queue full" {
		t.Fatalf("response = %+v, want queue full", resp)
	}
}

func TestIPCServer_ForwardsEventsAndState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socket := filepath.Join(t.TempDir(), "euro.sock")
	events := make(chan Event, 4)
	logger := testLogger()

	serveErr := make(chan error, 1)
	go func() { serveErr <- runIPCServer(ctx, socket, events, logger) }()

	// Wait for the listener.
	var err error
	for i := 0; i < 50; i++ {
		if err = SendIPCEvent(socket, SetKnob{Index: 1, Value: 0.4}); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case ev := <-events:
		if ev != (SetKnob{Index: 1, Value: 0.4}) {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not forwarded")
	}

	// Answer the snapshot request the way the daemon loop would.
	go func() {
		ev := <-events
		if req, ok := ev.(RequestStateSnapshot); ok {
			req.Reply <- StateSnapshot{Mode: ModeParameters, Notice: "hi"}
		}
	}()
	raw, err := QueryIPCState(socket)
	if err != nil {
		t.Fatalf("query state: %v", err)
	}
	var state struct {
		Mode   string `json:"mode"`
		Notice string `json:"notice"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Mode != "parameters" || state.Notice != "hi" {
		t.Errorf("state = %+v", state)
	}

	err = SendIPCEvent(socket, SetMode{Mode: "play"})
	if err != nil {
		t.Fatalf("send set_mode: %v", err)
	}
	<-events

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("server returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestSendIPCEvent_ReportsServerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socket := filepath.Join(t.TempDir(), "euro.sock")
	events := make(chan Event) // never drained
	go runIPCServer(ctx, socket, events, testLogger())

	var err error
	for i := 0; i < 50; i++ {
		err = SendIPCEvent(socket, ToggleMode{})
		if err != nil && strings.Contains(err.Error(), "event queue full") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected queue full error, got %v", err)
}
