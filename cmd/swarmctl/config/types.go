// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// CurrentConfigVersion is written into new config files so later releases
// can migrate old layouts.
const CurrentConfigVersion = "1"

// SwarmctlConfig is the persisted CLI configuration, loaded from
// ~/.swarm/swarmctl.yaml. Every field has a usable default; a missing file
// is created with DefaultConfig on first run.
type SwarmctlConfig struct {
	// Meta tracks the config file layout version.
	Meta MetaConfig `yaml:"meta"`

	// Channel is the default channel id for graphs built from task files
	// that do not name one themselves.
	Channel string `yaml:"channel"`

	// Output controls terminal rendering.
	Output OutputConfig `yaml:"output"`

	// Validation holds the advisory thresholds for dag validate.
	Validation ValidationConfig `yaml:"validation"`

	// Watch configures dag watch.
	Watch WatchConfig `yaml:"watch"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type OutputConfig struct {
	// Personality is the default output style: full, standard, minimal,
	// or machine. Empty means auto-detect from the terminal.
	Personality string `yaml:"personality"`
}

type ValidationConfig struct {
	MaxInDegree    int `yaml:"max_in_degree"`    // warn above this many dependencies
	MaxOutDegree   int `yaml:"max_out_degree"`   // warn above this many dependents
	MaxChainLength int `yaml:"max_chain_length"` // warn above this critical path length
}

type WatchConfig struct {
	// DebounceMS is how long dag watch waits after the last file change
	// before re-evaluating, in milliseconds.
	DebounceMS int `yaml:"debounce_ms"`
}

// DefaultConfig returns the config written on first run. The validation
// thresholds match the scheduler service's own warning defaults so a task
// file that validates clean locally also validates clean when submitted.
func DefaultConfig() SwarmctlConfig {
	return SwarmctlConfig{
		Meta:    MetaConfig{Version: CurrentConfigVersion},
		Channel: "local",
		Output:  OutputConfig{Personality: ""},
		Validation: ValidationConfig{
			MaxInDegree:    10,
			MaxOutDegree:   10,
			MaxChainLength: 20,
		},
		Watch: WatchConfig{DebounceMS: 250},
	}
}
