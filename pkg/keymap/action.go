package keymap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/roba/pkg/keycode"
)

// Action is what a key position does on a layer. The set of actions is
// closed: Transparent, NoAction, Keycode, LayerHold, LayerToggle,
// LayerTap and Macro.
type Action interface {
	fmt.Stringer
	action()
}

// Transparent falls through to the next active layer below.
type Transparent struct{}

// NoAction does nothing and stops the fall through.
type NoAction struct{}

// Keycode emits a usage while the key is held.
type Keycode struct {
	Code keycode.Code
}

// LayerHold activates a layer while the key is held.
type LayerHold struct {
	Layer int
}

// LayerToggle flips a layer on press.
type LayerToggle struct {
	Layer int
}

// LayerTap taps Code when tapped, holds Layer when held.
type LayerTap struct {
	Layer int
	Code  keycode.Code
}

// Macro taps each code of the sequence in order on press.
type Macro struct {
	Sequence []keycode.Code
}

func (Transparent) action() {}
func (NoAction) action()    {}
func (Keycode) action()     {}
func (LayerHold) action()   {}
func (LayerToggle) action() {}
func (LayerTap) action()    {}
func (Macro) action()       {}

func (Transparent) String() string   { return "Trns" }
func (NoAction) String() string      { return "No" }
func (a Keycode) String() string     { return a.Code.String() }
func (a LayerHold) String() string   { return fmt.Sprintf("MO(%d)", a.Layer) }
func (a LayerToggle) String() string { return fmt.Sprintf("TG(%d)", a.Layer) }
func (a LayerTap) String() string    { return fmt.Sprintf("LT(%d,%s)", a.Layer, a.Code) }

func (a Macro) String() string {
	names := make([]string, len(a.Sequence))
	for n, code := range a.Sequence {
		names[n] = code.String()
	}
	return "Macro(" + strings.Join(names, ",") + ")"
}

// Equal compares two actions.
func Equal(a, b Action) bool {
	if ma, ok := a.(Macro); ok {
		mb, ok := b.(Macro)
		if !ok || len(ma.Sequence) != len(mb.Sequence) {
			return false
		}
		for n := range ma.Sequence {
			if ma.Sequence[n] != mb.Sequence[n] {
				return false
			}
		}
		return true
	}
	return a == b
}

// ParseAction parses the text form of an action:
//
//	Trns, _, No, A, MO(1), TG(2), LT(7,T), Macro(H,I)
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "_", "trns", "transparent", "_______":
		return Transparent{}, nil
	case "no", "none", "xxx", "xxxxxxx":
		return NoAction{}, nil
	}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		code, err := keycode.Parse(s)
		if err != nil {
			return nil, err
		}
		return Keycode{Code: code}, nil
	}
	fn, args := strings.ToLower(s[:open]), strings.Split(s[open+1:len(s)-1], ",")
	switch fn {
	case "mo", "hold":
		layer, err := parseLayerArgs(s, args, 1)
		return LayerHold{Layer: layer}, err
	case "tg", "toggle":
		layer, err := parseLayerArgs(s, args, 1)
		return LayerToggle{Layer: layer}, err
	case "lt":
		layer, err := parseLayerArgs(s, args, 2)
		if err != nil {
			return nil, err
		}
		code, err := keycode.Parse(args[1])
		if err != nil {
			return nil, err
		}
		return LayerTap{Layer: layer, Code: code}, nil
	case "macro":
		m := Macro{Sequence: make([]keycode.Code, 0, len(args))}
		for _, arg := range args {
			code, err := keycode.Parse(arg)
			if err != nil {
				return nil, err
			}
			m.Sequence = append(m.Sequence, code)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown action %q", s)
}

func parseLayerArgs(s string, args []string, count int) (int, error) {
	if len(args) != count {
		return 0, fmt.Errorf("action %q expects %d arguments", s, count)
	}
	layer, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || layer < 0 {
		return 0, fmt.Errorf("action %q: invalid layer %q", s, args[0])
	}
	return layer, nil
}

// MustParseAction parses an action and panics on error.
func MustParseAction(s string) Action {
	a, err := ParseAction(s)
	if err != nil {
		panic(err)
	}
	return a
}
