/*
SPDX-License-Identifier: GPL-3.0-or-later

Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com

This file is part of GoSight.

GoSight is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GoSight is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GoSight. If not, see https://www.gnu.org/licenses/.
*/

package config

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

// LoadConfig reads and parses the YAML file at path into a fresh Settings,
// seeded with DefaultSettings so a partial file still yields a complete
// record.
func LoadConfig(path string) (*Settings, error) {
	cfg, err := DefaultSettings()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePath mirrors the teacher's flag > env > fallback precedence for
// locating the config file itself, before its contents can override
// anything else.
func resolvePath(flagVal, envVar, fallback string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// Load resolves the config file path (flag > env > default location),
// ensures a default file exists there, loads it, then applies environment
// and flag overrides in ascending priority order. flagSet must already be
// parsed by the caller.
func Load(flagSet *flag.FlagSet) (*Settings, error) {
	var configFlag string
	if flagSet != nil {
		if f := flagSet.Lookup("config"); f != nil {
			configFlag = f.Value.String()
		}
	}

	path := resolvePath(configFlag, "SYNC_CONFIG_PATH", "./config.yaml")

	if err := EnsureDefaultConfig(path); err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)

	if flagSet != nil {
		applyFlagOverrides(flagSet, cfg)
	}

	logging.Info("config: loaded settings from %s", path)
	return cfg, nil
}

func applyFlagOverrides(flagSet *flag.FlagSet, cfg *Settings) {
	visit := func(name string, dst *string) {
		if f := flagSet.Lookup(name); f != nil && f.Value.String() != "" {
			*dst = f.Value.String()
		}
	}
	visit("listen", &cfg.ListenAddr)
	visit("log-level", &cfg.LogLevel)
	visit("mqtt-broker", &cfg.MQTT.Broker)
}
