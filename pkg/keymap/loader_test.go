package keymap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/roba/pkg/keycode"
)

const testTOML = `
rows = 1
cols = 3
encoders = 1

[[layers]]
name = "base"
keys = [["A", "MO(1)", "LT(1,Space)"]]
encoders = [["VolUp", "VolDown"]]

[[layers]]
name = "fn"
keys = [["_", "No", "Macro(H,I)"]]
`

const testYAML = `
rows: 1
cols: 3
encoders: 1
layers:
  - name: base
    keys: [[A, "MO(1)", "LT(1,Space)"]]
    encoders: [[VolUp, VolDown]]
  - name: fn
    keys: [[_, "No", "Macro(H,I)"]]
`

const testJSON = `{
  "rows": 1, "cols": 3, "encoders": 1,
  "layers": [
    {"name": "base", "keys": [["A", "MO(1)", "LT(1,Space)"]], "encoders": [["VolUp", "VolDown"]]},
    {"name": "fn", "keys": [["_", "No", "Macro(H,I)"]]}
  ]
}`

func checkLoaded(t *testing.T, m *Keymap) {
	require.Equal(t, 2, m.Layers())
	assert.Equal(t, "fn", m.LayerName(1))
	assert.Equal(t, Keycode{Code: keycode.A}, m.Lookup([]int{1, 0}, 0, 0))
	assert.Equal(t, NoAction{}, m.Lookup([]int{1, 0}, 0, 1))
	assert.Equal(t, LayerTap{Layer: 1, Code: keycode.Space}, m.Lookup([]int{0}, 0, 2))
	assert.True(t, Equal(Macro{Sequence: []keycode.Code{keycode.H, keycode.I}}, m.Lookup([]int{1, 0}, 0, 2)))
	assert.Equal(t, Keycode{Code: keycode.VolDown}, m.LookupEncoder([]int{1, 0}, 0, false))
}

func TestLoadFileFormats(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"keymap.toml": testTOML,
		"keymap.yaml": testYAML,
		"keymap.yml":  testYAML,
		"keymap.json": testJSON,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			m, err := LoadFile(path)
			require.NoError(t, err)
			checkLoaded(t, m)
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(filepath.Join(dir, "keymap.ini"))
	require.ErrorIs(t, err, ErrUnknownFormat)

	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rows":1,"cols":2,"layers":[{"keys":[["A"]]}]}`), 0644))
	_, err = LoadFile(path)
	require.ErrorIs(t, err, ErrGeometryMismatch)

	require.NoError(t, os.WriteFile(path, []byte(`{"rows":1,"cols":1,"layers":[{"keys":[["MO(4)"]]}]}`), 0644))
	_, err = LoadFile(path)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSaveFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"default.toml", "default.yaml", "default.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveFile(path, Default()))
		m, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, Dump(Default()), Dump(m), name)
	}
}

func TestApplyOnlyWritesChanges(t *testing.T) {
	m := Default()
	src := Default()
	require.NoError(t, src.Set(3, 1, 1, Keycode{Code: keycode.Kc1}))
	var changes []Change
	m.Watch(func(c Change) { changes = append(changes, c) })
	require.NoError(t, m.Apply(src))
	require.Len(t, changes, 1)
	assert.Equal(t, 3, changes[0].Layer)

	require.ErrorIs(t, m.Apply(New(1, 1, 1, 0)), ErrGeometryMismatch)
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keymap.toml")
	require.NoError(t, os.WriteFile(path, []byte(testTOML), 0644))
	m, err := LoadFile(path)
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	w := &Watcher{
		Path:     path,
		Keymap:   m,
		Delay:    10 * time.Millisecond,
		OnReload: func(err error) { reloaded <- err },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	updated := []byte(testTOML[:len(testTOML)-len("keys = [[\"_\", \"No\", \"Macro(H,I)\"]]\n")] +
		"keys = [[\"B\", \"No\", \"Macro(H,I)\"]]\n")
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, updated, 0644); err != nil {
			return false
		}
		select {
		case err := <-reloaded:
			return err == nil
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	action, err := m.Get(1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Keycode{Code: keycode.B}, action)
}
