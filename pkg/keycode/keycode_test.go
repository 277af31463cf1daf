package keycode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyboardUsages(t *testing.T) {
	assert.EqualValues(t, 0x04, A)
	assert.EqualValues(t, 0x1d, Z)
	assert.EqualValues(t, 0x1e, Kc1)
	assert.EqualValues(t, 0x27, Kc0)
	assert.EqualValues(t, 0x28, Enter)
	assert.EqualValues(t, 0x2c, Space)
	assert.EqualValues(t, 0x38, Slash)
	assert.EqualValues(t, 0x45, F12)
	assert.EqualValues(t, 0x52, Up)
	assert.EqualValues(t, 0x91, Language2)
	assert.EqualValues(t, 0x3010, User0)
	assert.EqualValues(t, 0x3018, User8)
}

func TestPages(t *testing.T) {
	assert.Equal(t, PageKeyboard, Q.Page())
	assert.Equal(t, PageConsumer, VolUp.Page())
	assert.EqualValues(t, 0xe9, VolUp.Usage())
	assert.Equal(t, PageKeyboard, KbVolumeUp.Page())
	assert.EqualValues(t, 0x81, KbVolumeDown.Usage())
	assert.Equal(t, PageMouse, MouseBtn1.Page())
	assert.Equal(t, PageSystem, Bootloader.Page())
}

func TestModifiers(t *testing.T) {
	require.True(t, LCtrl.IsModifier())
	require.True(t, RGui.IsModifier())
	require.False(t, A.IsModifier())
	require.False(t, VolUp.IsModifier())
	require.Equal(t, byte(0x01), LCtrl.ModifierBit())
	require.Equal(t, byte(0x02), LShift.ModifierBit())
	require.Equal(t, byte(0x80), RGui.ModifierBit())
	require.Zero(t, A.ModifierBit())
}

func TestParse(t *testing.T) {
	testCases := []struct {
		in     string
		expect Code
	}{
		{"A", A},
		{"kc_a", A},
		{"Minus", Minus},
		{"lang2", Language2},
		{"Language2", Language2},
		{"VolUp", VolUp},
		{"kc_vold", VolDown},
		{"KbVolumeUp", KbVolumeUp},
		{"kbvoldown", KbVolumeDown},
		{"User7", User7},
		{"Bootloader", Bootloader},
		{"1", Kc1},
		{"0", Kc0},
		{"f11", F11},
		{" Escape ", Escape},
		{"0x0068", Code(0x68)},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			code, err := Parse(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.expect, code)
		})
	}
	_, err := Parse("NotAKey")
	require.ErrorIs(t, err, ErrUnknownName)
}

func TestText(t *testing.T) {
	text, err := LGui.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "LGui", string(text))
	var c Code
	require.NoError(t, c.UnmarshalText([]byte("space")))
	require.Equal(t, Space, c)
	require.Equal(t, "0x0068", Code(0x68).String())
}
