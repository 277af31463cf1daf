// Package keymap resolves key positions through a stack of layers.
package keymap

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIndexOutOfRange indicates a layer/row/col outside the keymap.
var ErrIndexOutOfRange = errors.New("keymap index out of range")

// IndexError describes the rejected index.
type IndexError struct {
	Layer, Row, Col int
}

// Error implements error.
func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: layer %d row %d col %d", ErrIndexOutOfRange, e.Layer, e.Row, e.Col)
}

// Unwrap returns ErrIndexOutOfRange.
func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

// EncoderActions are the actions of one encoder on one layer.
type EncoderActions struct {
	Clockwise        Action
	CounterClockwise Action
}

// Change describes a write through the accessor.
// Encoder is -1 for key positions.
type Change struct {
	Layer, Row, Col int
	Encoder         int
	Action          Action
	Encoders        EncoderActions
}

// Keymap maps (layer, row, col) to actions. The input path only reads
// it; writes go through Set/SetEncoder.
type Keymap struct {
	layers, rows, cols, encoders int

	actions    []Action
	encoderMap []EncoderActions
	names      []string
	revision   uint64
	watchers   []func(Change)
	lock       sync.RWMutex
}

// New creates a keymap with all positions Transparent.
func New(layers, rows, cols, encoders int) *Keymap {
	m := &Keymap{
		layers:     layers,
		rows:       rows,
		cols:       cols,
		encoders:   encoders,
		actions:    make([]Action, layers*rows*cols),
		encoderMap: make([]EncoderActions, layers*encoders),
		names:      make([]string, layers),
	}
	for n := range m.actions {
		m.actions[n] = Transparent{}
	}
	for n := range m.encoderMap {
		m.encoderMap[n] = EncoderActions{Clockwise: Transparent{}, CounterClockwise: Transparent{}}
	}
	return m
}

// Layers gets the number of layers.
func (m *Keymap) Layers() int { return m.layers }

// Size gets the matrix size.
func (m *Keymap) Size() (rows, cols int) { return m.rows, m.cols }

// Encoders gets the number of encoders.
func (m *Keymap) Encoders() int { return m.encoders }

// Revision increases on every write.
func (m *Keymap) Revision() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.revision
}

// LayerName gets the name of a layer.
func (m *Keymap) LayerName(layer int) string {
	if layer < 0 || layer >= m.layers {
		return ""
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.names[layer]
}

// SetLayerName names a layer.
func (m *Keymap) SetLayerName(layer int, name string) error {
	if layer < 0 || layer >= m.layers {
		return &IndexError{Layer: layer}
	}
	m.lock.Lock()
	m.names[layer] = name
	m.lock.Unlock()
	return nil
}

// Watch registers fn to be called after every write.
func (m *Keymap) Watch(fn func(Change)) {
	m.lock.Lock()
	m.watchers = append(m.watchers, fn)
	m.lock.Unlock()
}

func (m *Keymap) index(layer, row, col int) (int, error) {
	if layer < 0 || layer >= m.layers || row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return 0, &IndexError{Layer: layer, Row: row, Col: col}
	}
	return (layer*m.rows+row)*m.cols + col, nil
}

// Get reads the action at a position.
func (m *Keymap) Get(layer, row, col int) (Action, error) {
	idx, err := m.index(layer, row, col)
	if err != nil {
		return nil, err
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.actions[idx], nil
}

// Set writes the action at a position.
func (m *Keymap) Set(layer, row, col int, action Action) error {
	idx, err := m.index(layer, row, col)
	if err != nil {
		return err
	}
	if err := m.validate(action); err != nil {
		return err
	}
	m.lock.Lock()
	m.actions[idx] = action
	m.revision++
	watchers := m.watchers
	m.lock.Unlock()
	change := Change{Layer: layer, Row: row, Col: col, Encoder: -1, Action: action}
	for _, fn := range watchers {
		fn(change)
	}
	return nil
}

// Encoder reads the actions of an encoder on a layer.
func (m *Keymap) Encoder(layer, index int) (EncoderActions, error) {
	if layer < 0 || layer >= m.layers || index < 0 || index >= m.encoders {
		return EncoderActions{}, &IndexError{Layer: layer, Row: -1, Col: index}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.encoderMap[layer*m.encoders+index], nil
}

// SetEncoder writes the actions of an encoder on a layer.
func (m *Keymap) SetEncoder(layer, index int, actions EncoderActions) error {
	if layer < 0 || layer >= m.layers || index < 0 || index >= m.encoders {
		return &IndexError{Layer: layer, Row: -1, Col: index}
	}
	if err := m.validate(actions.Clockwise); err != nil {
		return err
	}
	if err := m.validate(actions.CounterClockwise); err != nil {
		return err
	}
	m.lock.Lock()
	m.encoderMap[layer*m.encoders+index] = actions
	m.revision++
	watchers := m.watchers
	m.lock.Unlock()
	change := Change{Layer: layer, Row: -1, Col: -1, Encoder: index, Encoders: actions}
	for _, fn := range watchers {
		fn(change)
	}
	return nil
}

func (m *Keymap) validate(action Action) error {
	var layer int
	switch a := action.(type) {
	case nil:
		return errors.New("nil action")
	case LayerHold:
		layer = a.Layer
	case LayerToggle:
		layer = a.Layer
	case LayerTap:
		layer = a.Layer
	default:
		return nil
	}
	if layer <= 0 || layer >= m.layers {
		return &IndexError{Layer: layer, Row: -1, Col: -1}
	}
	return nil
}

// Lookup resolves a position through active layers, top first.
// Transparent falls through, NoAction stops. Unresolved positions
// result in NoAction.
func (m *Keymap) Lookup(active []int, row, col int) Action {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, layer := range active {
		idx, err := m.index(layer, row, col)
		if err != nil {
			continue
		}
		if _, ok := m.actions[idx].(Transparent); !ok {
			return m.actions[idx]
		}
	}
	return NoAction{}
}

// LookupEncoder resolves an encoder direction through active layers.
func (m *Keymap) LookupEncoder(active []int, index int, clockwise bool) Action {
	if index < 0 || index >= m.encoders {
		return NoAction{}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, layer := range active {
		if layer < 0 || layer >= m.layers {
			continue
		}
		actions := m.encoderMap[layer*m.encoders+index]
		action := actions.CounterClockwise
		if clockwise {
			action = actions.Clockwise
		}
		if _, ok := action.(Transparent); !ok {
			return action
		}
	}
	return NoAction{}
}
