// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schedule provides the dependency-aware task scheduler for swarm
// channels.
//
// # Description
//
// The schedule package owns the per-channel task graph cache and exposes the
// mutation and query surface the rest of the platform talks to. Graph
// structure and algorithms live in the dag package; this package adds
// channel-level serialization, TTL-based cache eviction, optional snapshot
// persistence, scheduling events, and the feature gate.
//
// # Thread Safety
//
// A Scheduler is safe for concurrent use. All structural work for a channel
// happens while that channel's lock is held; queries copy the graph under the
// lock and compute on the copy.
package schedule

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultCacheTTL is how long a channel's graph stays cached after its
	// last structural write.
	DefaultCacheTTL = 60 * time.Second

	// DefaultCycleCheckBudgetMS bounds a single hypothetical cycle probe.
	DefaultCycleCheckBudgetMS = 25

	// DefaultMaxInDegreeWarning is the fan-in threshold for validation
	// warnings.
	DefaultMaxInDegreeWarning = 10

	// DefaultMaxOutDegreeWarning is the fan-out threshold for validation
	// warnings.
	DefaultMaxOutDegreeWarning = 10

	// DefaultMaxChainLengthWarning is the dependency chain depth threshold
	// for validation warnings.
	DefaultMaxChainLengthWarning = 20

	// DefaultReadyTasksLimit is the page size for ready-task queries when the
	// caller does not ask for one.
	DefaultReadyTasksLimit = 50

	// DefaultReadyTasksMaxLimit caps the page size a caller may request.
	DefaultReadyTasksMaxLimit = 200
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// configValidate is the validator instance for schedule configuration.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// =============================================================================
// Config
// =============================================================================

// Config controls scheduler behavior.
//
// # Description
//
// Config is read once at construction; a Scheduler never re-reads it. The
// zero value is NOT usable, call DefaultConfig and override fields as needed.
//
// # Fields
//
//   - Enabled: Feature gate. When false every operation is a pass-through
//     no-op with permissive results.
//   - CacheTTL: Idle lifetime of a cached channel graph. Minimum 1s.
//   - CycleCheckBudgetMS: Wall-clock budget in milliseconds for a single
//     hypothetical cycle probe during addDependency. 1-5000.
//   - EnforceOnStatusChange: When true, a transition to in_progress for a
//     task whose dependencies are incomplete is rejected instead of applied.
//   - MaxInDegreeWarning: Fan-in threshold for validateDag warnings.
//     0 disables the check.
//   - MaxOutDegreeWarning: Fan-out threshold for validateDag warnings.
//     0 disables the check.
//   - MaxChainLengthWarning: Chain depth threshold for validateDag warnings.
//     0 disables the check.
//   - EmitEvents: When false the scheduler never publishes to its event sink.
//   - Debug: Enables verbose debug logging on the hot paths.
//   - ReadyTasksDefaultLimit: Page size for ready-task queries without an
//     explicit limit.
//   - ReadyTasksMaxLimit: Hard cap on the ready-task page size.
type Config struct {
	Enabled                bool          `json:"enabled" yaml:"enabled"`
	CacheTTL               time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CycleCheckBudgetMS     int           `json:"cycle_check_budget_ms" yaml:"cycle_check_budget_ms" validate:"gte=1,lte=5000"`
	EnforceOnStatusChange  bool          `json:"enforce_on_status_change" yaml:"enforce_on_status_change"`
	MaxInDegreeWarning     int           `json:"max_in_degree_warning" yaml:"max_in_degree_warning" validate:"gte=0"`
	MaxOutDegreeWarning    int           `json:"max_out_degree_warning" yaml:"max_out_degree_warning" validate:"gte=0"`
	MaxChainLengthWarning  int           `json:"max_chain_length_warning" yaml:"max_chain_length_warning" validate:"gte=0"`
	EmitEvents             bool          `json:"emit_events" yaml:"emit_events"`
	Debug                  bool          `json:"debug" yaml:"debug"`
	ReadyTasksDefaultLimit int           `json:"ready_tasks_default_limit" yaml:"ready_tasks_default_limit" validate:"gte=1"`
	ReadyTasksMaxLimit     int           `json:"ready_tasks_max_limit" yaml:"ready_tasks_max_limit" validate:"gte=1"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		CacheTTL:               DefaultCacheTTL,
		CycleCheckBudgetMS:     DefaultCycleCheckBudgetMS,
		EnforceOnStatusChange:  false,
		MaxInDegreeWarning:     DefaultMaxInDegreeWarning,
		MaxOutDegreeWarning:    DefaultMaxOutDegreeWarning,
		MaxChainLengthWarning:  DefaultMaxChainLengthWarning,
		EmitEvents:             true,
		Debug:                  false,
		ReadyTasksDefaultLimit: DefaultReadyTasksLimit,
		ReadyTasksMaxLimit:     DefaultReadyTasksMaxLimit,
	}
}

// ConfigFromEnv returns DefaultConfig with SWARM_DAG_* environment overrides
// applied.
//
// Recognized variables:
//
//	SWARM_DAG_ENABLED            bool
//	SWARM_DAG_CACHE_TTL_MS       int, milliseconds
//	SWARM_DAG_CYCLE_BUDGET_MS    int, milliseconds
//	SWARM_DAG_ENFORCE_STATUS     bool
//	SWARM_DAG_EMIT_EVENTS        bool
//	SWARM_DAG_DEBUG              bool
//	SWARM_DAG_READY_LIMIT        int
//	SWARM_DAG_READY_MAX_LIMIT    int
//
// Unparseable values are ignored in favor of the default.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Enabled = getEnvBool("SWARM_DAG_ENABLED", cfg.Enabled)
	if ms := getEnvInt("SWARM_DAG_CACHE_TTL_MS", 0); ms > 0 {
		cfg.CacheTTL = time.Duration(ms) * time.Millisecond
	}
	cfg.CycleCheckBudgetMS = getEnvInt("SWARM_DAG_CYCLE_BUDGET_MS", cfg.CycleCheckBudgetMS)
	cfg.EnforceOnStatusChange = getEnvBool("SWARM_DAG_ENFORCE_STATUS", cfg.EnforceOnStatusChange)
	cfg.EmitEvents = getEnvBool("SWARM_DAG_EMIT_EVENTS", cfg.EmitEvents)
	cfg.Debug = getEnvBool("SWARM_DAG_DEBUG", cfg.Debug)
	cfg.ReadyTasksDefaultLimit = getEnvInt("SWARM_DAG_READY_LIMIT", cfg.ReadyTasksDefaultLimit)
	cfg.ReadyTasksMaxLimit = getEnvInt("SWARM_DAG_READY_MAX_LIMIT", cfg.ReadyTasksMaxLimit)
	return cfg
}

// Validate checks the configuration for internal consistency.
//
// # Outputs
//
//   - error: Non-nil if any field is out of range, wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.CacheTTL < time.Second {
		return fmt.Errorf("%w: cache_ttl %s below minimum 1s", ErrInvalidConfig, c.CacheTTL)
	}
	if c.ReadyTasksDefaultLimit > c.ReadyTasksMaxLimit {
		return fmt.Errorf("%w: ready_tasks_default_limit %d exceeds ready_tasks_max_limit %d",
			ErrInvalidConfig, c.ReadyTasksDefaultLimit, c.ReadyTasksMaxLimit)
	}
	return nil
}

// CycleCheckBudget returns the cycle probe budget as a duration.
func (c Config) CycleCheckBudget() time.Duration {
	return time.Duration(c.CycleCheckBudgetMS) * time.Millisecond
}

// ValidationPolicy returns the dag validation thresholds derived from this
// configuration.
func (c Config) ValidationPolicy() dag.ValidationPolicy {
	return dag.ValidationPolicy{
		MaxInDegree:    c.MaxInDegreeWarning,
		MaxOutDegree:   c.MaxOutDegreeWarning,
		MaxChainLength: c.MaxChainLengthWarning,
	}
}

// =============================================================================
// Environment Helpers
// =============================================================================

func getEnvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
