// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//


package config

import (
	"fmt"
	"os"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/printhost/VirtualPins/pkg/vpin"
)

var (
	InvalidConfigError = errors.New("invalid config")
	IsInvalidConfig    = isErrorFunc(InvalidConfigError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// Config is the content of the configuration file.
type Config struct {
	Pins         []PinConfig         `yaml:"pins"`
	Endstops     []EndstopConfig     `yaml:"endstops"`
	ButtonGroups []ButtonGroupConfig `yaml:"button_groups"`
	MQTT         MQTTConfig          `yaml:"mqtt"`
	GPIO         GPIOConfig          `yaml:"gpio"`
	InfluxDB     InfluxDBConfig      `yaml:"influxdb"`
}

// PinConfig describes a single virtual pin.
type PinConfig struct {
	Name         string `yaml:"name"`
	InitialValue bool   `yaml:"initial_value"`
}

// EndstopConfig describes an endstop on top of a virtual pin.
type EndstopConfig struct {
	Name string `yaml:"name"`
	// Pin descriptor, e.g. `!virtual_pin:probe`
	Pin string `yaml:"pin"`
}

// ButtonGroupConfig describes a group of pins reported as buttons.
type ButtonGroupConfig struct {
	Name string   `yaml:"name"`
	Pins []string `yaml:"pins"`
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	// If set, button group reports are published
	PublishButtonGroups bool `yaml:"publish_button_groups"`
	// If set, log lines are published to <prefix>/logs
	Log bool `yaml:"log"`
}

// GPIOConfig configures mirroring of physical inputs onto virtual pins.
type GPIOConfig struct {
	PollInterval time.Duration     `yaml:"poll_interval"`
	Inputs       []GPIOInputConfig `yaml:"inputs"`
}

// GPIOInputConfig maps a single physical input onto a virtual pin.
type GPIOInputConfig struct {
	Pin       string `yaml:"pin"`
	GPIO      int    `yaml:"gpio"`
	ActiveLow bool   `yaml:"active_low"`
}

// InfluxDBConfig configures the pin history sink.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     uint          `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Default returns a configuration without pins, with all defaults applied.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "virtual-pins",
			TopicPrefix: "vpin",
			QoS:         1,
		},
		GPIO: GPIOConfig{
			PollInterval: time.Millisecond * 50,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "virtual_pins",
			BatchSize:     100,
			FlushInterval: time.Second,
		},
	}
}

// Load reads, parses & validates the configuration file at given path.
// An empty path results in the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}
	return cfg, nil
}

// Parse parses & validates the given YAML content.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides replaces secrets from environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VPIN_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("VPIN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("VPIN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration, reporting all problems at once.
func (c *Config) Validate() error {
	var ae aerr.AggregateError
	invalid := func(format string, args ...interface{}) {
		ae.Add(errors.Wrap(InvalidConfigError, fmt.Sprintf(format, args...)))
	}

	pins := make(map[string]struct{})
	for i, p := range c.Pins {
		if p.Name == "" {
			invalid("pins[%d]: name is required", i)
		} else if _, found := pins[p.Name]; found {
			invalid("pins[%d]: duplicate pin '%s'", i, p.Name)
		}
		pins[p.Name] = struct{}{}
	}
	endstops := make(map[string]struct{})
	for i, es := range c.Endstops {
		if es.Name == "" {
			invalid("endstops[%d]: name is required", i)
		} else if _, found := endstops[es.Name]; found {
			invalid("endstops[%d]: duplicate endstop '%s'", i, es.Name)
		}
		endstops[es.Name] = struct{}{}
		if pp, err := vpin.ParsePin(es.Pin); err != nil {
			invalid("endstops[%d]: %s", i, err)
		} else if _, found := pins[pp.Pin]; !found {
			invalid("endstops[%d]: unknown pin '%s'", i, pp.Pin)
		}
	}
	groups := make(map[string]struct{})
	for i, g := range c.ButtonGroups {
		if g.Name == "" {
			invalid("button_groups[%d]: name is required", i)
		} else if _, found := groups[g.Name]; found {
			invalid("button_groups[%d]: duplicate group '%s'", i, g.Name)
		}
		groups[g.Name] = struct{}{}
		if len(g.Pins) == 0 {
			invalid("button_groups[%d]: at least one pin is required", i)
		} else if len(g.Pins) > vpin.MaxButtonGroupPins {
			invalid("button_groups[%d]: at most %d pins supported, got %d", i, vpin.MaxButtonGroupPins, len(g.Pins))
		}
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			invalid("mqtt.broker is required")
		}
		if c.MQTT.TopicPrefix == "" {
			invalid("mqtt.topic_prefix is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			invalid("mqtt.qos must be 0, 1 or 2")
		}
	}
	if len(c.GPIO.Inputs) > 0 && c.GPIO.PollInterval <= 0 {
		invalid("gpio.poll_interval must be positive")
	}
	for i, in := range c.GPIO.Inputs {
		if _, found := pins[in.Pin]; !found {
			invalid("gpio.inputs[%d]: unknown pin '%s'", i, in.Pin)
		}
		if in.GPIO < 0 {
			invalid("gpio.inputs[%d]: gpio must be >= 0", i)
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			invalid("influxdb.url is required")
		}
		if c.InfluxDB.Bucket == "" {
			invalid("influxdb.bucket is required")
		}
	}
	return ae.AsError()
}
