// Package connector sets up editor connections to keyboards.
package connector

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"

	cenv "github.com/caarlos0/env/v11"
	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/comm/direct"
	"github.com/robotalks/roba/pkg/editor/comm/mqtt"
)

// Config provides common options to setup Connectors.
type Config struct {
	Ref editor.KeyboardRef

	// RegistryURL specifies the URL of keyboard registry, or a
	// keyboard accepting editors directly.
	// e.g. mqtt://host:port/topic-prefix, tcp://host:7700
	RegistryURL string `env:"ROBA_REGISTRY_URL"`
}

type refEnv struct {
	Type string `env:"ROBA_KEYBOARD_TYPE"`
	ID   string `env:"ROBA_KEYBOARD_ID"`
}

var defaultConfig = Config{
	RegistryURL: "mqtt://localhost:1883/roba/",
}

func init() {
	var ref refEnv
	if err := cenv.Parse(&ref); err != nil {
		glog.Warningf("connector env: %v", err)
	}
	defaultConfig.Ref.Type, defaultConfig.Ref.ID = ref.Type, ref.ID
	if err := cenv.Parse(&defaultConfig); err != nil {
		glog.Warningf("connector env: %v", err)
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Type, "keyboard-type", defaultConfig.Ref.Type, "Keyboard type to connect.")
	flag.StringVar(&defaultConfig.Ref.ID, "keyboard-id", defaultConfig.Ref.ID, "Keyboard ID to connect.")
	flag.StringVar(&defaultConfig.RegistryURL, "registry", defaultConfig.RegistryURL, "Keyboard registry URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewConnector creates a Connector using current config.
func (c *Config) NewConnector() (editor.Connector, error) {
	parsedURL, err := url.Parse(c.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL: %w", err)
	}
	switch parsedURL.Scheme {
	case "mqtt", "mqtts":
		return mqtt.NewConnector(c.RegistryURL)
	case "tcp", "ws", "pipe":
		return direct.NewConnector(c.RegistryURL)
	default:
		return nil, fmt.Errorf("unknown registry URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewConnector creates a Connector and fails on error.
func (c *Config) MustNewConnector() editor.Connector {
	conn, err := c.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// NeedsRef tells if the registry serves more than one keyboard so a
// ref is required to connect.
func (c *Config) NeedsRef() bool {
	u, err := url.Parse(c.RegistryURL)
	return err != nil || u.Scheme == "mqtt" || u.Scheme == "mqtts"
}

// Connect directly connects to a keyboard.
func (c *Config) Connect(ctx context.Context) (editor.Conn, error) {
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	if c.NeedsRef() && !c.Ref.IsValid() {
		return nil, fmt.Errorf("keyboard type and id must be specified")
	}
	return connector.Connect(ctx, c.Ref)
}
