/*
 *
 * Copyright 2026 The statecast Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/statecast/statecast"
	"github.com/statecast/statecast/audiostate"
)

// config is the daemon configuration, loadable from YAML. Zero fields
// take defaults, so a partial file or no file at all is fine.
type config struct {
	// Channel is the statecast channel name clients attach to.
	Channel string `yaml:"channel"`

	// DataSize, CmdSlots and MaxClients size the shared region.
	DataSize   uint64 `yaml:"data_size"`
	CmdSlots   uint32 `yaml:"cmd_slots"`
	MaxClients uint32 `yaml:"max_clients"`

	// Tick is the heartbeat republish interval; the daemon also
	// publishes immediately on every state change.
	Tick time.Duration `yaml:"tick"`

	// MaxVolume is the ceiling with overamplification enabled.
	MaxVolume int32 `yaml:"max_volume"`

	// Devices seeds the simulated device list.
	Devices struct {
		Sinks   []deviceConfig `yaml:"sinks"`
		Sources []deviceConfig `yaml:"sources"`
	} `yaml:"devices"`
}

type deviceConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Volume      int32  `yaml:"volume"`
	Default     bool   `yaml:"default"`
}

func defaultConfig() config {
	var cfg config
	cfg.Channel = "audio"
	cfg.Tick = time.Second
	cfg.MaxVolume = 150
	cfg.Devices.Sinks = []deviceConfig{
		{Name: "analog-stereo", Description: "Built-in Audio", Volume: 100, Default: true},
	}
	cfg.Devices.Sources = []deviceConfig{
		{Name: "analog-mic", Description: "Built-in Microphone", Volume: 100, Default: true},
	}
	return cfg
}

// loadConfig reads path if non-empty, layering it over the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.Channel == "" {
		return fmt.Errorf("channel name must not be empty")
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if len(c.Devices.Sinks) > audiostate.MaxDevices || len(c.Devices.Sources) > audiostate.MaxDevices {
		return fmt.Errorf("at most %d devices per direction", audiostate.MaxDevices)
	}
	return nil
}

// channelConfig maps the daemon config onto channel capacities.
func (c config) channelConfig() statecast.Config {
	return statecast.Config{
		DataSize:   c.DataSize,
		CmdSlots:   c.CmdSlots,
		MaxClients: c.MaxClients,
	}
}
