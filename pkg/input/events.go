// Package input aggregates key matrix, encoder and pointer sources into
// a single timestamp ordered event stream.
package input

import (
	"fmt"
	"time"

	fx "github.com/robotalks/roba/pkg/framework"
)

// Event is an input event flowing through cycle messages.
type Event interface {
	fx.Message
	EventTime() time.Time
	at(time.Time) Event
}

// KeyEvent is a debounced key transition at a matrix position.
type KeyEvent struct {
	Row     int
	Col     int
	Pressed bool
	Time    time.Time
}

// NewMessage implements Message.
func (e *KeyEvent) NewMessage() fx.Message { return &KeyEvent{} }

// EventTime implements Event.
func (e *KeyEvent) EventTime() time.Time { return e.Time }

func (e *KeyEvent) at(t time.Time) Event {
	c := *e
	c.Time = t
	return &c
}

// String implements fmt.Stringer.
func (e *KeyEvent) String() string {
	action := "release"
	if e.Pressed {
		action = "press"
	}
	return fmt.Sprintf("key(%d,%d) %s", e.Row, e.Col, action)
}

// Direction of an encoder detent.
type Direction int

// Directions.
const (
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// EncoderEvent is one detent of a rotary encoder.
type EncoderEvent struct {
	Index     int
	Direction Direction
	Time      time.Time
}

// NewMessage implements Message.
func (e *EncoderEvent) NewMessage() fx.Message { return &EncoderEvent{} }

// EventTime implements Event.
func (e *EncoderEvent) EventTime() time.Time { return e.Time }

func (e *EncoderEvent) at(t time.Time) Event {
	c := *e
	c.Time = t
	return &c
}

// String implements fmt.Stringer.
func (e *EncoderEvent) String() string {
	return fmt.Sprintf("encoder(%d) %s", e.Index, e.Direction)
}

// PointerEvent is relative pointer motion.
type PointerEvent struct {
	DX   int
	DY   int
	Time time.Time
}

// NewMessage implements Message.
func (e *PointerEvent) NewMessage() fx.Message { return &PointerEvent{} }

// EventTime implements Event.
func (e *PointerEvent) EventTime() time.Time { return e.Time }

func (e *PointerEvent) at(t time.Time) Event {
	c := *e
	c.Time = t
	return &c
}

// String implements fmt.Stringer.
func (e *PointerEvent) String() string {
	return fmt.Sprintf("pointer(%+d,%+d)", e.DX, e.DY)
}
