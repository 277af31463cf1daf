// Package kbd assembles a keyboard half: it loads the configuration,
// decides the role and wires all tasks of that role into a loop.
package kbd

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	cenv "github.com/caarlos0/env/v11"
	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor/env/keyboard"
	"github.com/robotalks/roba/pkg/hid"
	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/keymap"
	"github.com/robotalks/roba/pkg/role"
	"github.com/robotalks/roba/pkg/split"
	"github.com/robotalks/roba/pkg/status"
)

// MatrixConfig describes the matrix of this half.
type MatrixConfig struct {
	Rows       int           `toml:"rows"`
	Cols       int           `toml:"cols"`
	Encoders   int           `toml:"encoders"`
	Debounce   time.Duration `toml:"debounce" env:"ROBA_DEBOUNCE"`
	Resolution int           `toml:"resolution"`
}

// SplitConfig configures the link between the halves.
type SplitConfig struct {
	// URL is dialed by the peripheral and listened on by the central,
	// e.g. tcp://localhost:7600, ws://localhost:7601/split or pipe:roba.
	// Empty means a keyboard without a peripheral.
	URL               string        `toml:"url" env:"ROBA_SPLIT_URL"`
	Capacity          int           `toml:"capacity"`
	AckTimeout        time.Duration `toml:"ack-timeout"`
	HeartbeatInterval time.Duration `toml:"heartbeat-interval"`
	OfflineAfter      time.Duration `toml:"offline-after"`
	// RowOffset and ColOffset translate peripheral coordinates on the central.
	RowOffset int `toml:"row-offset"`
	ColOffset int `toml:"col-offset"`
}

// KeymapConfig locates the keymap.
type KeymapConfig struct {
	// File is a TOML, YAML or JSON keymap, the built-in keymap if empty.
	File string `toml:"file" env:"ROBA_KEYMAP"`
	// Store is the SQLite database keeping edits, disabled if empty.
	Store       string        `toml:"store" env:"ROBA_KEYMAP_STORE"`
	Watch       bool          `toml:"watch" env:"ROBA_KEYMAP_WATCH"`
	TappingTerm time.Duration `toml:"tapping-term"`
}

// HIDConfig configures the host output.
type HIDConfig struct {
	// Device is written with raw reports, e.g. /dev/hidg0.
	Device     string `toml:"device" env:"ROBA_HID_DEVICE"`
	WithID     bool   `toml:"with-id"`
	QueueSize  int    `toml:"queue-size"`
	MaxRetries int    `toml:"max-retries"`
}

// Config is the configuration of a keyboard half, usually keyboard.toml.
type Config struct {
	// Role is central or peripheral, ROBA_ROLE takes precedence.
	Role           string           `toml:"role"`
	Interval       time.Duration    `toml:"interval"`
	StatusInterval time.Duration    `toml:"status-interval"`
	Matrix         MatrixConfig     `toml:"matrix"`
	Split          SplitConfig      `toml:"split"`
	Keymap         KeymapConfig     `toml:"keymap"`
	HID            HIDConfig        `toml:"hid"`
	Editor         *keyboard.Config `toml:"editor"`
	Monitor        bool             `toml:"monitor" env:"ROBA_MONITOR"`
	// BatteryLow in millivolts raises the battery-low flag, 0 disables it.
	BatteryLow int               `toml:"battery-low"`
	Labels     map[string]string `toml:"labels"`
}

// DefaultBatteryLow is the default battery-low threshold in millivolts.
const DefaultBatteryLow = 3400

var defaultConfig = Config{
	Interval:       time.Millisecond,
	StatusInterval: status.DefaultInterval,
	Matrix: MatrixConfig{
		Rows:       keymap.DefaultRows,
		Cols:       6,
		Encoders:   keymap.DefaultEncoders,
		Debounce:   input.DefaultDebounce,
		Resolution: input.DefaultResolution,
	},
	Split: SplitConfig{
		Capacity:          split.DefaultCapacity,
		AckTimeout:        split.DefaultAckTimeout,
		HeartbeatInterval: split.DefaultHeartbeatInterval,
		OfflineAfter:      split.DefaultOfflineAfter,
		ColOffset:         6,
	},
	Keymap: KeymapConfig{
		TappingTerm: keymap.DefaultTappingTerm,
	},
	HID: HIDConfig{
		QueueSize:  hid.DefaultQueueSize,
		MaxRetries: hid.DefaultMaxRetries,
	},
	Monitor:    true,
	BatteryLow: DefaultBatteryLow,
}

func init() {
	if err := cenv.Parse(&defaultConfig); err != nil {
		glog.Warningf("keyboard env: %v", err)
	}
}

// flagFields copy explicitly set flags over values loaded from files.
var flagFields = map[string]func(dst, src *Config){
	"role":         func(dst, src *Config) { dst.Role = src.Role },
	"split":        func(dst, src *Config) { dst.Split.URL = src.Split.URL },
	"keymap":       func(dst, src *Config) { dst.Keymap.File = src.Keymap.File },
	"keymap-store": func(dst, src *Config) { dst.Keymap.Store = src.Keymap.Store },
	"keymap-watch": func(dst, src *Config) { dst.Keymap.Watch = src.Keymap.Watch },
	"hid":          func(dst, src *Config) { dst.HID.Device = src.HID.Device },
	"debounce":     func(dst, src *Config) { dst.Matrix.Debounce = src.Matrix.Debounce },
	"monitor":      func(dst, src *Config) { dst.Monitor = src.Monitor },
	"type":         func(dst, _ *Config) { dst.Editor.Type = keyboard.Default().Type },
	"id":           func(dst, _ *Config) { dst.Editor.ID = keyboard.Default().ID },
	"mqtt":         func(dst, _ *Config) { dst.Editor.MQTTBrokerURL = keyboard.Default().MQTTBrokerURL },
	"editor":       func(dst, _ *Config) { dst.Editor.ListenURL = keyboard.Default().ListenURL },
}

// SetupFlags sets command line flags, including those of the editor.
func SetupFlags() {
	keyboard.SetupFlags()
	flag.StringVar(&defaultConfig.Role, "role", defaultConfig.Role, "Role of this half: central or peripheral")
	flag.StringVar(&defaultConfig.Split.URL, "split", defaultConfig.Split.URL, "Carrier URL of the split link")
	flag.StringVar(&defaultConfig.Keymap.File, "keymap", defaultConfig.Keymap.File, "Keymap file (toml, yaml or json)")
	flag.StringVar(&defaultConfig.Keymap.Store, "keymap-store", defaultConfig.Keymap.Store, "SQLite database keeping keymap edits")
	flag.BoolVar(&defaultConfig.Keymap.Watch, "keymap-watch", defaultConfig.Keymap.Watch, "Reload the keymap file when it changes")
	flag.StringVar(&defaultConfig.HID.Device, "hid", defaultConfig.HID.Device, "HID gadget device receiving reports")
	flag.DurationVar(&defaultConfig.Matrix.Debounce, "debounce", defaultConfig.Matrix.Debounce, "Debounce window")
	flag.BoolVar(&defaultConfig.Monitor, "monitor", defaultConfig.Monitor, "Publish status to the MQTT broker")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	editorConf := *keyboard.Default()
	conf.Editor = &editorConf
	return &conf
}

// LoadConfig creates a Config from defaults and the file at path if
// not empty. Environment variables override the file, explicitly set
// flags override both.
func LoadConfig(path string) (*Config, error) {
	conf := NewConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, conf); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cenv.Parse(conf); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cenv.Parse(conf.Editor); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if flag.Parsed() {
		flag.Visit(func(f *flag.Flag) {
			if set := flagFields[f.Name]; set != nil {
				set(conf, &defaultConfig)
			}
		})
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ErrInvalidConfig indicates a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Matrix.Rows <= 0 || c.Matrix.Cols <= 0 {
		return fmt.Errorf("%w: matrix %dx%d", ErrInvalidConfig, c.Matrix.Rows, c.Matrix.Cols)
	}
	if c.Matrix.Encoders < 0 {
		return fmt.Errorf("%w: %d encoders", ErrInvalidConfig, c.Matrix.Encoders)
	}
	if c.Matrix.Debounce < 0 {
		return fmt.Errorf("%w: negative debounce", ErrInvalidConfig)
	}
	if c.Split.Capacity <= 0 {
		return fmt.Errorf("%w: split capacity %d", ErrInvalidConfig, c.Split.Capacity)
	}
	if c.Role != "" {
		if _, err := role.Parse(c.Role); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// RoleSources lists where the role is determined from, in order.
func (c *Config) RoleSources(pin role.Source) []role.Source {
	sources := []role.Source{role.EnvSource}
	if c.Role != "" {
		sources = append(sources, role.SourceFunc(func() (role.Role, error) {
			return role.Parse(c.Role)
		}))
	}
	return append(sources, pin)
}
