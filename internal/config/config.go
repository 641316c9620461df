// Package config handles hamqtt configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nugget/hamqtt/internal/discovery"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./hamqtt.yaml, ~/.config/hamqtt/hamqtt.yaml, /etc/hamqtt/hamqtt.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"hamqtt.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hamqtt", "hamqtt.yaml"))
	}

	paths = append(paths, "/etc/hamqtt/hamqtt.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all hamqtt configuration.
type Config struct {
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Groups    []GroupConfig  `yaml:"groups"`
	Entities  []EntityConfig `yaml:"entities"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text (default) or json
}

// MQTT protocol versions accepted in [MQTTConfig.Protocol].
const (
	ProtocolV311 = 3
	ProtocolV5   = 5
)

// MQTTConfig defines the broker connection and discovery settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // mqtt://, mqtts://, tcp:// or ssl:// URL
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"` // Default: "hamqtt-" + device_name

	// Protocol selects the client implementation: 5 (default) uses
	// paho.golang's autopaho, 3 uses the MQTT 3.1.1 paho client for
	// older brokers.
	Protocol int `yaml:"protocol"`

	DiscoveryPrefix string `yaml:"discovery_prefix"` // Default: homeassistant

	// DeviceName is the HA device name and the node ID of the
	// built-in diagnostics group.
	DeviceName string `yaml:"device_name"`

	// PublishIntervalSec is how often serve publishes diagnostics
	// state (default 60).
	PublishIntervalSec int `yaml:"publish_interval_sec"`

	// TimeoutSec bounds connecting and each publish (default 10).
	TimeoutSec int `yaml:"timeout_sec"`

	// RemoveOnShutdown publishes empty configs for every entity when
	// serve exits, so HA forgets them instead of marking them
	// unavailable.
	RemoveOnShutdown bool `yaml:"remove_on_shutdown"`
}

// GroupConfig defines a node whose entities share one state topic.
type GroupConfig struct {
	NodeID string `yaml:"node_id"`
	// Extra is merged into every entity of the group. A state_topic
	// here replaces the default <prefix>/sensor/<node_id>/state.
	Extra    *discovery.Conf `yaml:"extra"`
	Entities []EntityConfig  `yaml:"entities"`
}

// EntityConfig defines one binary sensor or sensor.
type EntityConfig struct {
	Name     string          `yaml:"name"`
	ObjectID string          `yaml:"object_id"`
	Kind     string          `yaml:"kind"`    // binary_sensor or sensor
	NodeID   string          `yaml:"node_id"` // Ignored for grouped entities
	Extra    *discovery.Conf `yaml:"extra"`
}

// Component maps Kind to a discovery component.
func (e EntityConfig) Component() (discovery.Component, error) {
	switch discovery.Component(e.Kind) {
	case discovery.ComponentBinarySensor:
		return discovery.ComponentBinarySensor, nil
	case discovery.ComponentSensor, "":
		return discovery.ComponentSensor, nil
	default:
		return "", fmt.Errorf("entity %q: unknown kind %q (valid: binary_sensor, sensor)", e.ObjectID, e.Kind)
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.MQTT.Protocol == 0 {
		c.MQTT.Protocol = ProtocolV5
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = discovery.DefaultPrefix
	}
	if c.MQTT.PublishIntervalSec <= 0 {
		c.MQTT.PublishIntervalSec = 60
	}
	if c.MQTT.TimeoutSec <= 0 {
		c.MQTT.TimeoutSec = 10
	}
}

// Validate reports every problem found in c. The returned error joins
// all of them so a bad file can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.DeviceName == "" {
		errs = append(errs, errors.New("mqtt.device_name is required"))
	}
	if c.MQTT.Protocol != ProtocolV5 && c.MQTT.Protocol != ProtocolV311 {
		errs = append(errs, fmt.Errorf("mqtt.protocol %d is not supported (valid: 3, 5)", c.MQTT.Protocol))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not supported (valid: text, json)", c.LogFormat))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	checkEntity := func(where string, e EntityConfig) {
		if e.ObjectID == "" {
			errs = append(errs, fmt.Errorf("%s: object_id is required", where))
			return
		}
		if seen[e.ObjectID] {
			errs = append(errs, fmt.Errorf("%s: duplicate object_id %q", where, e.ObjectID))
		}
		seen[e.ObjectID] = true
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		}
		if _, err := e.Component(); err != nil {
			errs = append(errs, err)
		}
	}

	for i, g := range c.Groups {
		if g.NodeID == "" {
			errs = append(errs, fmt.Errorf("groups[%d]: node_id is required", i))
		}
		// serve announces its diagnostics group under the device name.
		if g.NodeID != "" && g.NodeID == c.MQTT.DeviceName {
			errs = append(errs, fmt.Errorf("groups[%d]: node_id %q collides with the diagnostics node (mqtt.device_name)", i, g.NodeID))
		}
		for j, e := range g.Entities {
			where := fmt.Sprintf("groups[%d].entities[%d]", i, j)
			checkEntity(where, e)
			if !e.Extra.Has("value_template") {
				errs = append(errs, fmt.Errorf("%s: %w", where, discovery.ErrValueTemplateRequired))
			}
		}
	}
	for i, e := range c.Entities {
		checkEntity(fmt.Sprintf("entities[%d]", i), e)
	}

	return errors.Join(errs...)
}
