// Package hid turns resolved key codes into HID reports for the host.
package hid

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/roba/pkg/keycode"
)

// ReportID identifies the kind of a report.
type ReportID byte

// Report IDs of the composite descriptor.
const (
	ReportKeyboard ReportID = 1
	ReportConsumer ReportID = 2
	ReportMouse    ReportID = 3
)

func (id ReportID) String() string {
	switch id {
	case ReportKeyboard:
		return "keyboard"
	case ReportConsumer:
		return "consumer"
	case ReportMouse:
		return "mouse"
	}
	return fmt.Sprintf("report(%d)", byte(id))
}

// Report is one input report to the host.
type Report struct {
	ID   ReportID
	Data []byte
}

func (r Report) String() string {
	return fmt.Sprintf("%s % x", r.ID, r.Data)
}

// BootKeys is the number of key slots in a boot keyboard report.
const BootKeys = 6

// errorRollOver fills all slots when more than BootKeys keys are down.
const errorRollOver = 0x01

// KeyboardState tracks pressed keyboard page usages.
type KeyboardState struct {
	modifiers byte
	keys      []keycode.Code
}

// Press adds a usage.
func (s *KeyboardState) Press(code keycode.Code) {
	if code.IsModifier() {
		s.modifiers |= code.ModifierBit()
		return
	}
	for _, k := range s.keys {
		if k == code {
			return
		}
	}
	s.keys = append(s.keys, code)
}

// Release removes a usage.
func (s *KeyboardState) Release(code keycode.Code) {
	if code.IsModifier() {
		s.modifiers &^= code.ModifierBit()
		return
	}
	for n, k := range s.keys {
		if k == code {
			s.keys = append(s.keys[:n], s.keys[n+1:]...)
			return
		}
	}
}

// Report builds the 8-byte boot keyboard report:
// modifiers, reserved, 6 key slots.
func (s *KeyboardState) Report() []byte {
	data := make([]byte, 2+BootKeys)
	data[0] = s.modifiers
	if len(s.keys) > BootKeys {
		for n := 2; n < len(data); n++ {
			data[n] = errorRollOver
		}
		return data
	}
	for n, k := range s.keys {
		data[2+n] = byte(k.Usage())
	}
	return data
}

// ConsumerState tracks the active consumer usage. Only the most recent
// press is reported.
type ConsumerState struct {
	pressed []keycode.Code
}

// Press adds a usage.
func (s *ConsumerState) Press(code keycode.Code) {
	s.Release(code)
	s.pressed = append(s.pressed, code)
}

// Release removes a usage.
func (s *ConsumerState) Release(code keycode.Code) {
	for n, c := range s.pressed {
		if c == code {
			s.pressed = append(s.pressed[:n], s.pressed[n+1:]...)
			return
		}
	}
}

// Report builds the 2-byte little endian consumer report.
func (s *ConsumerState) Report() []byte {
	data := make([]byte, 2)
	if n := len(s.pressed); n > 0 {
		binary.LittleEndian.PutUint16(data, s.pressed[n-1].Usage())
	}
	return data
}

// MouseState tracks buttons and accumulated motion.
type MouseState struct {
	buttons byte
	dx, dy  int
}

// Press presses a button.
func (s *MouseState) Press(code keycode.Code) {
	s.buttons |= byte(code.Usage())
}

// Release releases a button.
func (s *MouseState) Release(code keycode.Code) {
	s.buttons &^= byte(code.Usage())
}

// Move accumulates motion.
func (s *MouseState) Move(dx, dy int) {
	s.dx += dx
	s.dy += dy
}

// HasMotion tells if motion is pending.
func (s *MouseState) HasMotion() bool {
	return s.dx != 0 || s.dy != 0
}

// Report builds a mouse report (buttons, x, y, wheel) consuming at most
// one report worth of motion; call again while HasMotion.
func (s *MouseState) Report() []byte {
	dx, dy := clamp8(s.dx), clamp8(s.dy)
	s.dx -= dx
	s.dy -= dy
	return []byte{s.buttons, byte(int8(dx)), byte(int8(dy)), 0}
}

func clamp8(v int) int {
	switch {
	case v > 127:
		return 127
	case v < -127:
		return -127
	}
	return v
}
