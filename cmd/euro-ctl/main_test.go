package main

import (
	"encoding/json"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args []string
		want Event
	}{
		{[]string{"knob", "2", "0.8"}, SetKnob{Index: 2, Value: 0.8}},
		{[]string{"cv", "0", "0.25"}, SetCV{Index: 0, Value: 0.25}},
		{[]string{"gate", "on"}, SetGate{High: true}},
		{[]string{"gate", "off"}, SetGate{}},
		{[]string{"turn", "-3"}, EncoderTurn{Steps: -3}},
		{[]string{"press", "page", "long"}, ButtonPress{Button: "page", Long: true}},
		{[]string{"press", "encoder"}, ButtonPress{Button: "encoder"}},
		{[]string{"mode", "toggle"}, ToggleMode{}},
		{[]string{"mode", "parameters"}, SetMode{Mode: "parameters"}},
		{[]string{"save-preset", "pad"}, SavePreset{Name: "pad"}},
		{[]string{"load-preset", "pad"}, LoadPreset{Name: "pad"}},
		{[]string{"state"}, getState{}},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.args)
		if err != nil {
			t.Errorf("%v: %v", tc.args, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%v = %+v, want %+v", tc.args, got, tc.want)
		}
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"knob", "1"},
		{"knob", "x", "0.5"},
		{"gate", "maybe"},
		{"press", "shift"},
		{"turn"},
		{"dance"},
	} {
		if _, err := parseCommand(args); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestMarshalEvent_Envelope(t *testing.T) {
	b, err := marshalEvent(ButtonPress{Button: "encoder", Long: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env EventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "button_press" || string(env.Data) != `{"button":"encoder","long":true}` {
		t.Errorf("envelope = %s", b)
	}

	b, err = marshalEvent(getState{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"get_state"}` {
		t.Errorf("get_state = %s", b)
	}
}
