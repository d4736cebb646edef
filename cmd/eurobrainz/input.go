package main

import (
	"bytes"
	"encoding/binary"
	"io"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// inputEventSize is the wire size of one inputEvent.
var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvent parses one raw event.
func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev)
	return ev, err
}

// readInputEvents reads events from r until it fails. Used for a single
// device or a recorded capture.
func readInputEvents(r io.Reader, out chan<- inputEvent) error {
	buf := make([]byte, inputEventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		ev, err := decodeInputEvent(buf)
		if err != nil {
			continue
		}
		out <- ev
	}
}

// translateInputEvent maps an evdev event from the encoder or panel buttons to
// a daemon Event. Key auto-repeat is dropped; hold time is measured by the
// reducer from the press and release edges.
//
// Mapping:
//   - REL_DIAL / REL_WHEEL: encoder rotation
//   - KEY_ENTER / KEY_SPACE: encoder push switch
//   - KEY_NEXTSONG: page button
//   - KEY_MODE (press): toggle play/parameters
func translateInputEvent(ev inputEvent) (Event, bool) {
	switch ev.Type {
	case EV_REL:
		if (ev.Code == REL_DIAL || ev.Code == REL_WHEEL) && ev.Value != 0 {
			return EncoderTurn{Steps: int(ev.Value)}, true
		}

	case EV_KEY:
		if ev.Value == evValueRepeat {
			return nil, false
		}
		pressed := ev.Value == evValuePress
		switch ev.Code {
		case KEY_ENTER, KEY_SPACE:
			return ButtonEdge{Button: ButtonEncoder, Pressed: pressed}, true
		case KEY_NEXTSONG:
			return ButtonEdge{Button: ButtonPage, Pressed: pressed}, true
		case KEY_MODE:
			if pressed {
				return ToggleMode{}, true
			}
		}
	}
	return nil, false
}
