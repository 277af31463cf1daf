package keymap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported keymap file formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var (
	// ErrUnknownFormat indicates a keymap file with unsupported extension.
	ErrUnknownFormat = errors.New("unknown keymap format")
	// ErrGeometryMismatch indicates keymaps of different sizes.
	ErrGeometryMismatch = errors.New("keymap geometry mismatch")
)

// File is the serialized form of a Keymap.
type File struct {
	Rows     int         `toml:"rows" yaml:"rows" json:"rows"`
	Cols     int         `toml:"cols" yaml:"cols" json:"cols"`
	Encoders int         `toml:"encoders" yaml:"encoders" json:"encoders"`
	Layers   []LayerFile `toml:"layers" yaml:"layers" json:"layers"`
}

// LayerFile is one layer of a File. Keys is indexed [row][col]; an
// empty layer is all Transparent. Encoders lists [clockwise,
// counter-clockwise] per encoder.
type LayerFile struct {
	Name     string     `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Keys     [][]string `toml:"keys,omitempty" yaml:"keys,omitempty" json:"keys,omitempty"`
	Encoders [][]string `toml:"encoders,omitempty" yaml:"encoders,omitempty" json:"encoders,omitempty"`
}

// FormatOf derives the file format from the extension of path.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// DecodeFile parses data in the given format.
func DecodeFile(data []byte, format string) (*File, error) {
	f := &File{}
	var err error
	switch format {
	case FormatTOML:
		_, err = toml.Decode(string(data), f)
	case FormatYAML:
		err = yaml.Unmarshal(data, f)
	case FormatJSON:
		err = json.Unmarshal(data, f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s keymap: %w", format, err)
	}
	return f, nil
}

// Encode serializes the file in the given format.
func (f *File) Encode(format string) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(f)
	case FormatJSON:
		return json.MarshalIndent(f, "", "  ")
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// Build creates a Keymap from the file.
func (f *File) Build() (*Keymap, error) {
	if f.Rows <= 0 || f.Cols <= 0 || len(f.Layers) == 0 {
		return nil, fmt.Errorf("%w: %d layers of %dx%d", ErrGeometryMismatch, len(f.Layers), f.Rows, f.Cols)
	}
	m := New(len(f.Layers), f.Rows, f.Cols, f.Encoders)
	for layer, lf := range f.Layers {
		m.names[layer] = lf.Name
		if len(lf.Keys) != 0 && len(lf.Keys) != f.Rows {
			return nil, fmt.Errorf("layer %d: %w: %d rows", layer, ErrGeometryMismatch, len(lf.Keys))
		}
		for row, keys := range lf.Keys {
			if len(keys) != f.Cols {
				return nil, fmt.Errorf("layer %d row %d: %w: %d cols", layer, row, ErrGeometryMismatch, len(keys))
			}
			for col, s := range keys {
				action, err := ParseAction(s)
				if err != nil {
					return nil, fmt.Errorf("layer %d row %d col %d: %w", layer, row, col, err)
				}
				if err := m.Set(layer, row, col, action); err != nil {
					return nil, err
				}
			}
		}
		if len(lf.Encoders) > f.Encoders {
			return nil, fmt.Errorf("layer %d: %w: %d encoders", layer, ErrGeometryMismatch, len(lf.Encoders))
		}
		for index, pair := range lf.Encoders {
			if len(pair) != 2 {
				return nil, fmt.Errorf("layer %d encoder %d: expect [clockwise, counter-clockwise]", layer, index)
			}
			var actions EncoderActions
			var err error
			if actions.Clockwise, err = ParseAction(pair[0]); err != nil {
				return nil, fmt.Errorf("layer %d encoder %d: %w", layer, index, err)
			}
			if actions.CounterClockwise, err = ParseAction(pair[1]); err != nil {
				return nil, fmt.Errorf("layer %d encoder %d: %w", layer, index, err)
			}
			if err := m.SetEncoder(layer, index, actions); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Dump converts a Keymap into its serialized form.
func Dump(m *Keymap) *File {
	f := &File{Rows: m.rows, Cols: m.cols, Encoders: m.encoders}
	m.lock.RLock()
	defer m.lock.RUnlock()
	for layer := 0; layer < m.layers; layer++ {
		lf := LayerFile{Name: m.names[layer], Keys: make([][]string, m.rows)}
		for row := 0; row < m.rows; row++ {
			lf.Keys[row] = make([]string, m.cols)
			for col := 0; col < m.cols; col++ {
				lf.Keys[row][col] = m.actions[(layer*m.rows+row)*m.cols+col].String()
			}
		}
		for index := 0; index < m.encoders; index++ {
			actions := m.encoderMap[layer*m.encoders+index]
			lf.Encoders = append(lf.Encoders, []string{actions.Clockwise.String(), actions.CounterClockwise.String()})
		}
		f.Layers = append(f.Layers, lf)
	}
	return f
}

// LoadFile loads a keymap from a TOML, YAML or JSON file.
func LoadFile(path string) (*Keymap, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := DecodeFile(data, format)
	if err != nil {
		return nil, err
	}
	return f.Build()
}

// SaveFile writes the keymap to path in the format of its extension.
func SaveFile(path string, m *Keymap) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Dump(m).Encode(format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Apply copies all actions of src into m through the accessor, so
// watchers see every change. Unchanged positions are skipped.
func (m *Keymap) Apply(src *Keymap) error {
	if src.layers != m.layers || src.rows != m.rows || src.cols != m.cols || src.encoders != m.encoders {
		return ErrGeometryMismatch
	}
	for layer := 0; layer < src.layers; layer++ {
		if name := src.LayerName(layer); name != m.LayerName(layer) {
			m.SetLayerName(layer, name)
		}
		for row := 0; row < src.rows; row++ {
			for col := 0; col < src.cols; col++ {
				action, _ := src.Get(layer, row, col)
				if current, _ := m.Get(layer, row, col); Equal(current, action) {
					continue
				}
				if err := m.Set(layer, row, col, action); err != nil {
					return err
				}
			}
		}
		for index := 0; index < src.encoders; index++ {
			actions, _ := src.Encoder(layer, index)
			current, _ := m.Encoder(layer, index)
			if Equal(current.Clockwise, actions.Clockwise) && Equal(current.CounterClockwise, actions.CounterClockwise) {
				continue
			}
			if err := m.SetEncoder(layer, index, actions); err != nil {
				return err
			}
		}
	}
	return nil
}
