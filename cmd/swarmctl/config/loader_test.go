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

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".swarm", "swarmctl.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg SwarmctlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Meta.Version != CurrentConfigVersion {
		t.Errorf("Meta.Version = %q, want %q", cfg.Meta.Version, CurrentConfigVersion)
	}
	if cfg.Channel != "local" {
		t.Errorf("Channel = %q, want %q", cfg.Channel, "local")
	}
	if cfg.Watch.DebounceMS != 250 {
		t.Errorf("Watch.DebounceMS = %d, want 250", cfg.Watch.DebounceMS)
	}
}

// TestCreateDefault_DirectoryCreation verifies the directory is created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "deep", "nested", "path", "swarmctl.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}

// TestDefaultConfig verifies the shipped defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Validation.MaxInDegree != 10 {
		t.Errorf("Validation.MaxInDegree = %d, want 10", cfg.Validation.MaxInDegree)
	}
	if cfg.Validation.MaxOutDegree != 10 {
		t.Errorf("Validation.MaxOutDegree = %d, want 10", cfg.Validation.MaxOutDegree)
	}
	if cfg.Validation.MaxChainLength != 20 {
		t.Errorf("Validation.MaxChainLength = %d, want 20", cfg.Validation.MaxChainLength)
	}
	if cfg.Output.Personality != "" {
		t.Errorf("Output.Personality = %q, want empty (auto-detect)", cfg.Output.Personality)
	}
}

// TestConfigRoundTrip verifies a customized config survives marshal/parse.
func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channel = "C-42"
	cfg.Output.Personality = "machine"
	cfg.Watch.DebounceMS = 500

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded SwarmctlConfig
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Channel != "C-42" {
		t.Errorf("Channel = %q, want %q", decoded.Channel, "C-42")
	}
	if decoded.Output.Personality != "machine" {
		t.Errorf("Output.Personality = %q, want %q", decoded.Output.Personality, "machine")
	}
	if decoded.Watch.DebounceMS != 500 {
		t.Errorf("Watch.DebounceMS = %d, want 500", decoded.Watch.DebounceMS)
	}
}
