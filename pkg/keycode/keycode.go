// Package keycode defines the usages a key can produce.
package keycode

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a usage produced by a key. The high nibble selects the page.
type Code uint16

// Page is the kind of a Code.
type Page uint16

// Pages.
const (
	PageKeyboard Page = 0x0000 // HID keyboard/keypad page (0x07)
	PageConsumer Page = 0x1000 // HID consumer page (0x0c)
	PageMouse    Page = 0x2000 // mouse buttons
	PageSystem   Page = 0x3000 // handled by the firmware itself
)

const (
	pageMask  Code = 0xf000
	usageMask Code = 0x0fff
)

// Page gets the page of the code.
func (c Code) Page() Page {
	return Page(c & pageMask)
}

// Usage gets the usage ID within the page.
func (c Code) Usage() uint16 {
	return uint16(c & usageMask)
}

// IsModifier indicates a keyboard modifier (LCtrl..RGui).
func (c Code) IsModifier() bool {
	return c >= LCtrl && c <= RGui
}

// ModifierBit gets the bit of a modifier in the report modifier byte.
func (c Code) ModifierBit() byte {
	if !c.IsModifier() {
		return 0
	}
	return 1 << (c - LCtrl)
}

// Keyboard page usages.
const (
	No Code = 0x00

	A Code = 0x04 + iota - 1
	B
	C
	D
	E
	F
	G
	H
	I
	J
	K
	L
	M
	N
	O
	P
	Q
	R
	S
	T
	U
	V
	W
	X
	Y
	Z
	Kc1
	Kc2
	Kc3
	Kc4
	Kc5
	Kc6
	Kc7
	Kc8
	Kc9
	Kc0
	Enter
	Escape
	Backspace
	Tab
	Space
	Minus
	Equal
	LeftBracket
	RightBracket
	Backslash
	NonUSHash
	Semicolon
	Quote
	Grave
	Comma
	Dot
	Slash
	CapsLock
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	PrintScreen
	ScrollLock
	Pause
	Insert
	Home
	PageUp
	Delete
	End
	PageDown
	Right
	Left
	Down
	Up
)

// More keyboard page usages.
const (
	Application    Code = 0x65
	International1 Code = 0x87
	International2 Code = 0x88
	International3 Code = 0x89
	International4 Code = 0x8a
	International5 Code = 0x8b
	Language1      Code = 0x90
	Language2      Code = 0x91
	Language3      Code = 0x92
	Language4      Code = 0x93
	Language5      Code = 0x94
	KbMute         Code = 0x7f
	KbVolumeUp     Code = 0x80
	KbVolumeDown   Code = 0x81

	LCtrl  Code = 0xe0
	LShift Code = 0xe1
	LAlt   Code = 0xe2
	LGui   Code = 0xe3
	RCtrl  Code = 0xe4
	RShift Code = 0xe5
	RAlt   Code = 0xe6
	RGui   Code = 0xe7
)

// Consumer page usages.
const (
	BrightnessUp   = Code(PageConsumer) | 0x06f
	BrightnessDown = Code(PageConsumer) | 0x070
	NextTrack      = Code(PageConsumer) | 0x0b5
	PrevTrack      = Code(PageConsumer) | 0x0b6
	Stop           = Code(PageConsumer) | 0x0b7
	PlayPause      = Code(PageConsumer) | 0x0cd
	Mute           = Code(PageConsumer) | 0x0e2
	VolUp          = Code(PageConsumer) | 0x0e9
	VolDown        = Code(PageConsumer) | 0x0ea
)

// Mouse buttons.
const (
	MouseBtn1 = Code(PageMouse) | 0x01
	MouseBtn2 = Code(PageMouse) | 0x02
	MouseBtn3 = Code(PageMouse) | 0x04
	MouseBtn4 = Code(PageMouse) | 0x08
	MouseBtn5 = Code(PageMouse) | 0x10
)

// System codes.
const (
	Bootloader = Code(PageSystem) | 0x01
	Reboot     = Code(PageSystem) | 0x02
	User0      = Code(PageSystem) | 0x10 + iota - 2
	User1
	User2
	User3
	User4
	User5
	User6
	User7
	User8
)

// ErrUnknownName indicates the name doesn't map to a code.
var ErrUnknownName = errors.New("unknown keycode name")

var (
	names  = make(map[Code]string)
	byName = make(map[string]Code)
)

func register(code Code, name string, aliases ...string) {
	names[code] = name
	byName[strings.ToLower(name)] = code
	for _, alias := range aliases {
		byName[strings.ToLower(alias)] = code
	}
}

func init() {
	register(No, "No", "None", "KC_NO", "XXX")
	for c := A; c <= Z; c++ {
		name := string(rune('A' + (c - A)))
		register(c, name, "KC_"+name)
	}
	for c := Kc1; c <= Kc9; c++ {
		name := string(rune('1' + (c - Kc1)))
		register(c, name, "Kc"+name, "KC_"+name)
	}
	register(Kc0, "0", "Kc0", "KC_0")
	for c := F1; c <= F12; c++ {
		register(c, fmt.Sprintf("F%d", c-F1+1))
	}
	for _, entry := range []struct {
		code    Code
		name    string
		aliases []string
	}{
		{Enter, "Enter", []string{"Return", "KC_ENT"}},
		{Escape, "Escape", []string{"Esc", "KC_ESC"}},
		{Backspace, "Backspace", []string{"Bspc", "KC_BSPC"}},
		{Tab, "Tab", nil},
		{Space, "Space", []string{"Spc", "KC_SPC"}},
		{Minus, "Minus", []string{"-"}},
		{Equal, "Equal", []string{"="}},
		{LeftBracket, "LeftBracket", []string{"["}},
		{RightBracket, "RightBracket", []string{"]"}},
		{Backslash, "Backslash", []string{"\\"}},
		{NonUSHash, "NonUSHash", nil},
		{Semicolon, "Semicolon", []string{";"}},
		{Quote, "Quote", []string{"'"}},
		{Grave, "Grave", []string{"`"}},
		{Comma, "Comma", []string{","}},
		{Dot, "Dot", []string{".", "Period"}},
		{Slash, "Slash", []string{"/"}},
		{CapsLock, "CapsLock", nil},
		{PrintScreen, "PrintScreen", nil},
		{ScrollLock, "ScrollLock", nil},
		{Pause, "Pause", nil},
		{Insert, "Insert", nil},
		{Home, "Home", nil},
		{PageUp, "PageUp", []string{"PgUp"}},
		{Delete, "Delete", []string{"Del"}},
		{End, "End", nil},
		{PageDown, "PageDown", []string{"PgDn"}},
		{Right, "Right", nil},
		{Left, "Left", nil},
		{Down, "Down", nil},
		{Up, "Up", nil},
		{Application, "Application", []string{"Menu"}},
		{International1, "International1", nil},
		{International2, "International2", nil},
		{International3, "International3", nil},
		{International4, "International4", nil},
		{International5, "International5", nil},
		{Language1, "Language1", []string{"Lang1"}},
		{Language2, "Language2", []string{"Lang2"}},
		{Language3, "Language3", []string{"Lang3"}},
		{Language4, "Language4", []string{"Lang4"}},
		{Language5, "Language5", []string{"Lang5"}},
		{KbMute, "KbMute", nil},
		{KbVolumeUp, "KbVolumeUp", []string{"KbVolUp"}},
		{KbVolumeDown, "KbVolumeDown", []string{"KbVolDown"}},
		{LCtrl, "LCtrl", []string{"LeftCtrl"}},
		{LShift, "LShift", []string{"LeftShift"}},
		{LAlt, "LAlt", []string{"LeftAlt"}},
		{LGui, "LGui", []string{"LeftGui", "LCmd"}},
		{RCtrl, "RCtrl", []string{"RightCtrl"}},
		{RShift, "RShift", []string{"RightShift"}},
		{RAlt, "RAlt", []string{"RightAlt"}},
		{RGui, "RGui", []string{"RightGui", "RCmd"}},
		{BrightnessUp, "BrightnessUp", nil},
		{BrightnessDown, "BrightnessDown", nil},
		{NextTrack, "NextTrack", nil},
		{PrevTrack, "PrevTrack", nil},
		{Stop, "Stop", nil},
		{PlayPause, "PlayPause", nil},
		{Mute, "Mute", nil},
		{VolUp, "VolUp", []string{"AudioVolUp", "KC_VOLU"}},
		{VolDown, "VolDown", []string{"AudioVolDown", "KC_VOLD"}},
		{MouseBtn1, "MouseBtn1", []string{"MouseLeft"}},
		{MouseBtn2, "MouseBtn2", []string{"MouseRight"}},
		{MouseBtn3, "MouseBtn3", []string{"MouseMiddle"}},
		{MouseBtn4, "MouseBtn4", nil},
		{MouseBtn5, "MouseBtn5", nil},
		{Bootloader, "Bootloader", nil},
		{Reboot, "Reboot", nil},
	} {
		register(entry.code, entry.name, entry.aliases...)
	}
	for c := User0; c <= User8; c++ {
		register(c, fmt.Sprintf("User%d", c-User0))
	}
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(c))
}

// Parse parses a keycode by name (case insensitive) or hex value (0x...).
func Parse(name string) (Code, error) {
	if code, ok := byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return code, nil
	}
	var val uint16
	if _, err := fmt.Sscanf(name, "0x%x", &val); err == nil {
		return Code(val), nil
	}
	return No, fmt.Errorf("%w: %q", ErrUnknownName, name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	code, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}
