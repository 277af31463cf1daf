package keymap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/roba/pkg/keycode"
)

func TestTransparentFallThrough(t *testing.T) {
	m := New(3, 1, 3, 0)
	require.NoError(t, m.Set(1, 0, 0, Keycode{Code: keycode.A}))
	require.NoError(t, m.Set(0, 0, 0, Keycode{Code: keycode.Z}))
	require.NoError(t, m.Set(2, 0, 1, NoAction{}))
	require.NoError(t, m.Set(0, 0, 1, Keycode{Code: keycode.B}))

	active := []int{2, 1, 0}
	assert.Equal(t, Keycode{Code: keycode.A}, m.Lookup(active, 0, 0))
	assert.Equal(t, NoAction{}, m.Lookup(active, 0, 1))
	assert.Equal(t, NoAction{}, m.Lookup(active, 0, 2))
	assert.Equal(t, Keycode{Code: keycode.Z}, m.Lookup([]int{0}, 0, 0))
	assert.Equal(t, NoAction{}, m.Lookup(active, 5, 5))
}

func TestAccessorIndexErrors(t *testing.T) {
	m := Default()
	_, err := m.Get(DefaultLayers, 0, 0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	var idxErr *IndexError
	require.True(t, errors.As(err, &idxErr))
	assert.Equal(t, DefaultLayers, idxErr.Layer)

	require.ErrorIs(t, m.Set(0, DefaultRows, 0, NoAction{}), ErrIndexOutOfRange)
	require.ErrorIs(t, m.Set(0, 0, -1, NoAction{}), ErrIndexOutOfRange)
	require.ErrorIs(t, m.Set(0, 0, 0, LayerHold{Layer: DefaultLayers}), ErrIndexOutOfRange)
	require.ErrorIs(t, m.Set(0, 0, 0, LayerToggle{Layer: 0}), ErrIndexOutOfRange)
	_, err = m.Encoder(0, 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Zero(t, m.Revision())
}

func TestAccessorWatch(t *testing.T) {
	m := New(2, 2, 2, 1)
	var changes []Change
	m.Watch(func(c Change) { changes = append(changes, c) })
	require.NoError(t, m.Set(1, 1, 0, Keycode{Code: keycode.Enter}))
	require.NoError(t, m.SetEncoder(1, 0, EncoderActions{Clockwise: NoAction{}, CounterClockwise: Transparent{}}))
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Layer: 1, Row: 1, Col: 0, Encoder: -1, Action: Keycode{Code: keycode.Enter}}, changes[0])
	assert.Equal(t, 0, changes[1].Encoder)
	assert.Equal(t, uint64(2), m.Revision())

	action, err := m.Get(1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, Keycode{Code: keycode.Enter}, action)
}

func TestDefaultKeymap(t *testing.T) {
	m := Default()
	assert.Equal(t, DefaultLayers, m.Layers())
	rows, cols := m.Size()
	assert.Equal(t, DefaultRows, rows)
	assert.Equal(t, DefaultCols, cols)
	assert.Equal(t, "base", m.LayerName(0))
	assert.Equal(t, "config", m.LayerName(7))

	assert.Equal(t, Keycode{Code: keycode.Q}, m.Lookup([]int{0}, 0, 0))
	assert.Equal(t, LayerTap{Layer: 7, Code: keycode.T}, m.Lookup([]int{0}, 0, 4))
	assert.Equal(t, Keycode{Code: keycode.Bootloader}, m.Lookup([]int{7, 0}, 0, 0))
	assert.Equal(t, NoAction{}, m.Lookup([]int{1, 0}, 0, 0))
	assert.Equal(t, Keycode{Code: keycode.KbVolumeUp}, m.LookupEncoder([]int{3, 0}, 0, true))
	assert.Equal(t, Keycode{Code: keycode.KbVolumeDown}, m.LookupEncoder([]int{0}, 0, false))
	assert.Equal(t, keycode.PageKeyboard, keycode.KbVolumeUp.Page())
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		text   string
		action Action
	}{
		{"", Transparent{}},
		{"_", Transparent{}},
		{"Trns", Transparent{}},
		{"No", NoAction{}},
		{"a", Keycode{Code: keycode.A}},
		{"MO(3)", LayerHold{Layer: 3}},
		{"tg(2)", LayerToggle{Layer: 2}},
		{"LT(7, T)", LayerTap{Layer: 7, Code: keycode.T}},
		{"Macro(H,I)", Macro{Sequence: []keycode.Code{keycode.H, keycode.I}}},
	}
	for _, c := range cases {
		action, err := ParseAction(c.text)
		require.NoError(t, err, c.text)
		assert.True(t, Equal(c.action, action), "%s: %v", c.text, action)
		reparsed, err := ParseAction(action.String())
		require.NoError(t, err)
		assert.True(t, Equal(action, reparsed))
	}
	for _, text := range []string{"MO()", "MO(x)", "LT(1)", "Bogus", "Macro(A,Bogus)"} {
		_, err := ParseAction(text)
		assert.Error(t, err, text)
	}
}

func TestLayerStackPushPopSymmetry(t *testing.T) {
	var s LayerStack
	s.Push(1)
	before := s.Clone()

	hold := s.Push(3)
	other := s.Push(5)
	assert.Equal(t, []int{5, 3, 1, 0}, s.Active())
	require.True(t, s.Pop(hold))
	assert.Equal(t, []int{5, 1, 0}, s.Active())
	require.True(t, s.Pop(other))
	assert.True(t, s.Equal(before))
	assert.False(t, s.Pop(hold))
}

func TestLayerStackTieBreak(t *testing.T) {
	var s LayerStack
	first := s.Push(2)
	s.Push(4)
	assert.Equal(t, 4, s.Top())
	s.Push(2)
	assert.Equal(t, 2, s.Top())
	s.Pop(first)
	assert.Equal(t, []int{2, 4, 0}, s.Active())
}

func TestLayerStackToggle(t *testing.T) {
	var s LayerStack
	assert.True(t, s.Toggle(2))
	assert.Equal(t, []int{2, 0}, s.Active())
	assert.False(t, s.Toggle(2))
	assert.Equal(t, []int{0}, s.Active())
	assert.True(t, s.Toggle(0))
	assert.Equal(t, []int{0}, s.Active())
}

func TestSnapshotPublisher(t *testing.T) {
	var p SnapshotPublisher
	assert.Equal(t, 0, p.Snapshot().Top())
	p.Publish(&Snapshot{Active: []int{3, 0}, Seq: 7})
	s := p.Snapshot()
	assert.Equal(t, 3, s.Top())
	assert.True(t, s.IsActive(0))
	assert.False(t, s.IsActive(1))
	assert.Equal(t, uint64(7), s.Seq)
}
