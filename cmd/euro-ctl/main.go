package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// euro-ctl - Command-line IPC Client
// ============================================================================
// This tool drives the eurobrainz panel over IPC: it can move knobs and CV
// inputs, press buttons, switch modes, manage presets and print the current
// display state.
//
// Usage:
//   euro-ctl knob 0 0.75
//   euro-ctl press encoder long
//   euro-ctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/eurobrainz.sock)
// ============================================================================

const defaultSocketPath = "/tmp/eurobrainz.sock"

// Event types (duplicated from the daemon for a standalone binary)
type Event any

type SetKnob struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

type SetCV struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

type SetGate struct {
	High bool `json:"high"`
}

type EncoderTurn struct {
	Steps int `json:"steps"`
}

type ButtonPress struct {
	Button string `json:"button"`
	Long   bool   `json:"long,omitempty"`
}

type SetMode struct {
	Mode string `json:"mode"`
}

type ToggleMode struct{}

type SavePreset struct {
	Name string `json:"name"`
}

type LoadPreset struct {
	Name string `json:"name"`
}

// getState is the query answered with the display snapshot.
type getState struct{}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		os.Exit(0)
	}

	ev, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, ev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if _, ok := ev.(getState); ok {
		fmt.Println(string(resp.State))
		return
	}
	fmt.Println("ok")
}

// parseCommand turns command-line arguments into an event.
func parseCommand(args []string) (Event, error) {
	need := func(n int) error {
		if len(args) < n+1 {
			return fmt.Errorf("%s requires %d argument(s)", args[0], n)
		}
		return nil
	}

	switch args[0] {
	case "knob", "cv":
		if err := need(2); err != nil {
			return nil, err
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid index: %v", err)
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %v", err)
		}
		if args[0] == "knob" {
			return SetKnob{Index: idx, Value: v}, nil
		}
		return SetCV{Index: idx, Value: v}, nil

	case "gate":
		if err := need(1); err != nil {
			return nil, err
		}
		switch args[1] {
		case "on", "high", "1":
			return SetGate{High: true}, nil
		case "off", "low", "0":
			return SetGate{High: false}, nil
		}
		return nil, fmt.Errorf("gate must be on or off, got %q", args[1])

	case "turn":
		if err := need(1); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid steps: %v", err)
		}
		return EncoderTurn{Steps: n}, nil

	case "press":
		if err := need(1); err != nil {
			return nil, err
		}
		if args[1] != "encoder" && args[1] != "page" {
			return nil, fmt.Errorf("button must be encoder or page, got %q", args[1])
		}
		long := len(args) > 2 && args[2] == "long"
		return ButtonPress{Button: args[1], Long: long}, nil

	case "mode":
		if err := need(1); err != nil {
			return nil, err
		}
		if args[1] == "toggle" {
			return ToggleMode{}, nil
		}
		return SetMode{Mode: args[1]}, nil

	case "save-preset", "load-preset":
		if err := need(1); err != nil {
			return nil, err
		}
		if args[0] == "save-preset" {
			return SavePreset{Name: args[1]}, nil
		}
		return LoadPreset{Name: args[1]}, nil

	case "state":
		return getState{}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func send(socketPath string, ev Event) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := marshalEvent(ev)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal event: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}

func marshalEvent(ev Event) ([]byte, error) {
	var env EventEnvelope
	var payload any

	switch e := ev.(type) {
	case SetKnob:
		env.Type, payload = "set_knob", e
	case SetCV:
		env.Type, payload = "set_cv", e
	case SetGate:
		env.Type, payload = "set_gate", e
	case EncoderTurn:
		env.Type, payload = "encoder_turn", e
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
	case getState:
		env.Type = "get_state"
	default:
		return nil, fmt.Errorf("unknown event type: %T", ev)
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

func printUsage() {
	fmt.Fprintf(os.Stderr, `euro-ctl - Control the eurobrainz daemon via IPC

Usage:
  euro-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  knob <i> <v>              Set knob i to v in [0, 1]
  cv <i> <v>                Set CV input i to v in [0, 1]
  gate on|off               Drive the trigger input
  turn <steps>              Turn the encoder (negative is counter-clockwise)
  press encoder|page [long] Press a button
  mode play|parameters|toggle
                            Select the panel mode
  save-preset <name>        Save the parameter table as a preset
  load-preset <name>        Load a preset
  state                     Print the current display state as JSON
  help, -h, --help          Show this help message

Examples:
  euro-ctl knob 2 0.8
  euro-ctl press page long
  euro-ctl -socket /run/eurobrainz.sock state
`, defaultSocketPath)
}
