// Package keyboard sets up the editor endpoints of a keyboard.
package keyboard

import (
	"flag"
	"fmt"
	"log"

	cenv "github.com/caarlos0/env/v11"
	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/carrier"
	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/comm"
	"github.com/robotalks/roba/pkg/editor/comm/direct"
	"github.com/robotalks/roba/pkg/editor/comm/mqtt"
	"github.com/robotalks/roba/pkg/editor/env"
	fx "github.com/robotalks/roba/pkg/framework"
)

// DefaultType is the keyboard type registered.
const DefaultType = "roba"

// Config provides common options to setup the editor env of a keyboard.
type Config struct {
	Type        string `toml:"type" env:"ROBA_TYPE"`
	ID          string `toml:"id" env:"ROBA_ID"`
	Description string `toml:"description" env:"ROBA_DESCRIPTION"`

	// MQTTBrokerURL specifies the MQTT broker to register to.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `toml:"mqtt" env:"ROBA_MQTT_URL"`
	// ListenURL is a carrier URL accepting editors directly,
	// e.g. tcp://:7700 or ws://:7701/editor.
	ListenURL string `toml:"listen" env:"ROBA_EDITOR_URL"`
}

var defaultConfig = Config{
	Type:          DefaultType,
	MQTTBrokerURL: "mqtt://localhost:1883/roba/",
}

func init() {
	defaultConfig.ID = env.MachineID()
	if err := cenv.Parse(&defaultConfig); err != nil {
		glog.Warningf("editor env: %v", err)
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Type, "type", defaultConfig.Type, "Keyboard type")
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Keyboard ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable")
	flag.StringVar(&defaultConfig.ListenURL, "editor", defaultConfig.ListenURL, "Carrier URL accepting editors directly")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Ref gets the keyboard ref.
func (c *Config) Ref() editor.KeyboardRef {
	return editor.KeyboardRef{Type: c.Type, ID: c.ID}
}

// Env is the editor env of a keyboard.
type Env struct {
	Config       *Config
	RegistryURLs []string
	Registrar    *comm.RegistrarMux
	Sessions     *comm.Sessions
	Acceptor     *carrier.Acceptor
	MQTT         *mqtt.Registrar
}

// Enabled tells if any editor endpoint is configured.
func (c *Config) Enabled() bool {
	return c.MQTTBrokerURL != "" || c.ListenURL != ""
}

// NewEnv creates Env from config. The meta describes the keymap.
func (c *Config) NewEnv(meta editor.KeyboardMeta) (*Env, error) {
	ref := c.Ref()
	if !ref.IsValid() {
		return nil, fmt.Errorf("keyboard type and id must be specified")
	}
	if meta.Description == "" {
		meta.Description = c.Description
	}
	e := &Env{
		Config:    c,
		Registrar: &comm.RegistrarMux{},
	}
	if c.MQTTBrokerURL != "" {
		reg, err := mqtt.NewRegistrar(c.MQTTBrokerURL, editor.KeyboardInfo{Ref: ref, Meta: meta})
		if err != nil {
			return nil, fmt.Errorf("create MQTT registrar error: %w", err)
		}
		e.MQTT = reg
		e.Registrar.Add(reg)
		e.RegistryURLs = append(e.RegistryURLs, c.MQTTBrokerURL)
	}
	if c.ListenURL != "" {
		e.Sessions = &comm.Sessions{}
		e.Acceptor = &carrier.Acceptor{URL: c.ListenURL, Session: direct.Session(e.Sessions)}
		if err := e.Acceptor.Listen(); err != nil {
			return nil, fmt.Errorf("listen for editors error: %w", err)
		}
		e.Registrar.Add(e.Sessions)
	}
	if len(e.Registrar.Registrars) == 0 {
		return nil, fmt.Errorf("at least one registrar is required")
	}
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv(meta editor.KeyboardMeta) *Env {
	e, err := c.NewEnv(meta)
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

// AddToLoop adds tasks/runners to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Registrar)
	if e.Acceptor != nil {
		loop.AddRunnable(e.Acceptor)
	}
	loop.Add(&comm.UnsupportedCommands{})
}
