// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CodeAtlas/services/intel/arch"
	"github.com/AleutianAI/CodeAtlas/services/intel/patterns"
	"github.com/AleutianAI/CodeAtlas/services/intel/signals"
)

// Config bundles the tuning knobs of every analyzer. All confidence
// weights and thresholds are configuration, not code: the detection
// mechanisms are fixed but their numeric constants are expected to be
// tuned against labeled corpora.
type Config struct {
	Patterns patterns.Config `yaml:"patterns"`
	Arch     arch.Config     `yaml:"arch"`
	Signals  signals.Config  `yaml:"signals"`
}

// DefaultConfig returns the built-in analyzer parameters.
func DefaultConfig() Config {
	return Config{
		Patterns: patterns.DefaultConfig(),
		Arch:     arch.DefaultConfig(),
		Signals:  signals.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
//
// Missing keys keep their default values, so a config file only needs
// to name the knobs it changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("intel: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("intel: parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return cfg, nil
}
