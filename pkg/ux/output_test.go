// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Success(t *testing.T) {
	result := IconSuccess.Render()
	if result == "" {
		t.Error("expected non-empty result for IconSuccess")
	}
}

func TestIcon_Render_Warning(t *testing.T) {
	result := IconWarning.Render()
	if result == "" {
		t.Error("expected non-empty result for IconWarning")
	}
}

func TestIcon_Render_Error(t *testing.T) {
	result := IconError.Render()
	if result == "" {
		t.Error("expected non-empty result for IconError")
	}
}

func TestIcon_Render_Pending(t *testing.T) {
	result := IconPending.Render()
	if result == "" {
		t.Error("expected non-empty result for IconPending")
	}
}

func TestIcon_Render_Blocked(t *testing.T) {
	result := IconBlocked.Render()
	if result == "" {
		t.Error("expected non-empty result for IconBlocked")
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Test icons that don't have specific styling
	icons := []Icon{IconArrow, IconBullet}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	// Save and restore personality
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Title("Execution Order")
	})

	// In machine mode, Title should output nothing
	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestTitle_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Title("Execution Order")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Success Tests
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Success("DAG is valid")
	})

	if output != "OK: DAG is valid\n" {
		t.Errorf("expected 'OK: DAG is valid', got %q", output)
	}
}

func TestSuccess_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Success("DAG is valid")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestSuccess_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Success("DAG is valid")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Warning Tests
// =============================================================================

func TestWarning_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Warning("graph has orphaned nodes")
	})

	if output != "WARN: graph has orphaned nodes\n" {
		t.Errorf("expected 'WARN: graph has orphaned nodes', got %q", output)
	}
}

func TestWarning_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Warning("graph has orphaned nodes")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestWarning_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Warning("graph has orphaned nodes")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestError_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Error("cycle detected")
	})

	if output != "ERROR: cycle detected\n" {
		t.Errorf("expected 'ERROR: cycle detected', got %q", output)
	}
}

func TestError_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Error("cycle detected")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestError_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Error("cycle detected")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Info Tests
// =============================================================================

func TestInfo_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Info("3 tasks ready")
	})

	if output != "3 tasks ready\n" {
		t.Errorf("expected plain '3 tasks ready', got %q", output)
	}
}

func TestInfo_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Info("3 tasks ready")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Muted Tests
// =============================================================================

func TestMuted_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Muted("Secondary text")
	})

	// In machine mode, Muted should output nothing
	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestMuted_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Muted("Secondary text")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Box("Stats", "10 nodes, 12 edges")
	})

	if output != "Stats: 10 nodes, 12 edges\n" {
		t.Errorf("expected 'Stats: 10 nodes, 12 edges', got %q", output)
	}
}

func TestBox_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Box("Stats", "10 nodes, 12 edges")
	})

	if output == "" {
		t.Error("expected styled box output in full mode")
	}
}

// =============================================================================
// WarningBox Tests
// =============================================================================

func TestWarningBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		WarningBox("Validation", "long dependency chain")
	})

	if output != "WARN Validation: long dependency chain\n" {
		t.Errorf("expected 'WARN Validation: long dependency chain', got %q", output)
	}
}

func TestWarningBox_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		WarningBox("Validation", "long dependency chain")
	})

	if output == "" {
		t.Error("expected styled warning box output in full mode")
	}
}

// =============================================================================
// TaskLine Tests
// =============================================================================

func TestTaskLine_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		TaskLine("T-1", IconSuccess, "completed")
	})

	if output != "✓\tT-1\tcompleted\n" {
		t.Errorf("expected tab-separated output, got %q", output)
	}
}

func TestTaskLine_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		TaskLine("T-1", IconSuccess, "completed")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestTaskLine_FullMode_WithDetail(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		TaskLine("T-3", IconBlocked, "waiting on T-2")
	})

	if output == "" {
		t.Error("expected styled output with detail in full mode")
	}
}

func TestTaskLine_FullMode_NoDetail(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		TaskLine("T-1", IconSuccess, "")
	})

	if output == "" {
		t.Error("expected styled output without detail in full mode")
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Summary(5, 2, 7)
	})

	if output != "SUMMARY: ready=5 blocked=2 total=7\n" {
		t.Errorf("expected machine format summary, got %q", output)
	}
}

func TestSummary_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Summary(10, 0, 10)
	})

	if output == "" {
		t.Error("expected styled summary output in full mode")
	}
}

// =============================================================================
// ProgressBar Tests
// =============================================================================

func TestProgressBar_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	result := ProgressBar(5, 10, 20)

	if result != "5/10" {
		t.Errorf("expected '5/10', got %q", result)
	}
}

func TestProgressBar_FullMode_HalfFull(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(5, 10, 20)

	if result == "" {
		t.Error("expected styled progress bar in full mode")
	}
}

func TestProgressBar_FullMode_Empty(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(0, 10, 20)

	if result == "" {
		t.Error("expected styled progress bar even when empty")
	}
}

func TestProgressBar_FullMode_Full(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(10, 10, 20)

	if result == "" {
		t.Error("expected styled progress bar when full")
	}
}

// =============================================================================
// repeatChar Tests
// =============================================================================

func TestRepeatChar_Positive(t *testing.T) {
	result := repeatChar('X', 5)
	if result != "XXXXX" {
		t.Errorf("expected 'XXXXX', got %q", result)
	}
}

func TestRepeatChar_Zero(t *testing.T) {
	result := repeatChar('X', 0)
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestRepeatChar_Negative(t *testing.T) {
	result := repeatChar('X', -5)
	if result != "" {
		t.Errorf("expected empty string for negative count, got %q", result)
	}
}

func TestRepeatChar_Unicode(t *testing.T) {
	result := repeatChar('█', 3)
	if result != "███" {
		t.Errorf("expected '███', got %q", result)
	}
}

// =============================================================================
// Style Constants Tests
// =============================================================================

func TestColorConstants(t *testing.T) {
	// Verify color constants are defined
	colors := []interface{}{
		ColorTealBright,
		ColorTealPrimary,
		ColorTealVibrant,
		ColorTealMedium,
		ColorTealDeep,
		ColorTealOcean,
		ColorDeepSea,
		ColorAbyss,
		ColorMidnight,
		ColorSlate,
		ColorDarkest,
		ColorSuccess,
		ColorWarning,
		ColorError,
		ColorMuted,
	}

	for i, c := range colors {
		if c == nil {
			t.Errorf("color at index %d is nil", i)
		}
	}
}

func TestIconConstants(t *testing.T) {
	icons := map[string]Icon{
		"Success": IconSuccess,
		"Warning": IconWarning,
		"Error":   IconError,
		"Pending": IconPending,
		"Blocked": IconBlocked,
		"Running": IconRunning,
		"Arrow":   IconArrow,
		"Bullet":  IconBullet,
	}

	for name, icon := range icons {
		if string(icon) == "" {
			t.Errorf("icon %s is empty", name)
		}
	}
}
