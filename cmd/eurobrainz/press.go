package main

import "time"

// PressKind is the classification of a button gesture.
type PressKind int

const (
	PressNone PressKind = iota
	PressShort
	PressLong
)

func (k PressKind) String() string {
	switch k {
	case PressShort:
		return "short"
	case PressLong:
		return "long"
	default:
		return "none"
	}
}

// PressDetector turns debounced button edges into short and long presses.
//
// A long press fires once while the button is still held, as soon as the hold
// time is reached. A short press fires on release if no long press fired.
// The detector is a plain value owned by the daemon goroutine.
type PressDetector struct {
	Pressed   bool
	Since     time.Time
	LongFired bool
}

// Edge records a press or release at now and returns a short press when a
// release ends a hold shorter than long.
func (d *PressDetector) Edge(pressed bool, now time.Time, long time.Duration) PressKind {
	if pressed {
		if !d.Pressed {
			d.Pressed = true
			d.Since = now
			d.LongFired = false
		}
		return PressNone
	}

	if !d.Pressed {
		return PressNone
	}
	d.Pressed = false
	if d.LongFired {
		d.LongFired = false
		return PressNone
	}
	if now.Sub(d.Since) >= long {
		// Released after the threshold without a poll in between.
		return PressLong
	}
	return PressShort
}

// Poll returns PressLong once when the button has been held for long.
func (d *PressDetector) Poll(now time.Time, long time.Duration) PressKind {
	if !d.Pressed || d.LongFired {
		return PressNone
	}
	if now.Sub(d.Since) >= long {
		d.LongFired = true
		return PressLong
	}
	return PressNone
}

// Reset forgets any press in progress.
func (d *PressDetector) Reset() {
	*d = PressDetector{}
}
