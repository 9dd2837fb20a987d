// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings (validation errors)
	CLIExitError    = 2 // Operation failed
)

// OutputConfig controls how a command reports its result.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // No output, exit code only
}

// CommandResult wraps JSON command output with metadata. Success refers to
// the command run itself; a graph finding (cycle, validation error) still
// produces Success=true with the finding inside Data and a nonzero exit
// code.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// outputJSON writes data as JSON to stdout.
func outputJSON(data any, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// outputError writes an error in the active format: a CommandResult on
// stdout in JSON mode, a plain line on stderr otherwise.
func outputError(jsonMode bool, command string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    command,
			Timestamp:  time.Now(),
			Success:    false,
			Error:      err.Error(),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", command, err)
	}
}

// emitResult finishes a command: emits the JSON envelope when requested and
// maps the outcome to an exit code. Text rendering happens before this call;
// emitResult never renders text except for errors.
//
// # Inputs
//
//   - cfg: Output configuration from the command flags.
//   - command: Command name for the JSON envelope ("dag order").
//   - start: Start time for duration calculation.
//   - data: The result payload for JSON mode.
//   - hasFindings: True when the command succeeded but found problems.
//   - err: Non-nil when the command itself failed.
//
// # Outputs
//
//   - int: The process exit code.
func emitResult(cfg OutputConfig, command string, start time.Time, data any, hasFindings bool, err error) int {
	if cfg.Quiet {
		if err != nil {
			return CLIExitError
		}
		if hasFindings {
			return CLIExitFindings
		}
		return CLIExitSuccess
	}

	if err != nil {
		outputError(cfg.JSON, command, err)
		return CLIExitError
	}

	if cfg.JSON {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    command,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		}
		if encErr := outputJSON(result, cfg.Compact); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}
