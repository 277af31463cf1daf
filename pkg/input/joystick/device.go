// Package joystick drives simulated keyboard hardware from a Linux
// joystick, so the host daemon can be played with a gamepad.
package joystick

import (
	"errors"
	"io"
)

// ErrUnsupported indicates joysticks can't be opened on this platform.
var ErrUnsupported = errors.New("joystick unsupported on this platform")

// Event is a button or axis change.
type Event interface {
	// IsInit indicates the event reports the initial state.
	IsInit() bool
	// Index is the button or axis index.
	Index() int
}

// AxisEvent is the change on an axis.
type AxisEvent interface {
	Event
	Value() int
}

// ButtonEvent is the change on a button.
type ButtonEvent interface {
	Event
	Pressed() bool
}

// Device is an opened joystick.
type Device interface {
	io.Closer
	Name() string
	AxisCount() int
	ButtonCount() int
	// ReadEvent blocks until the next event.
	ReadEvent() (Event, error)
}
