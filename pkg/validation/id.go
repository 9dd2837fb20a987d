// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for caller-provided identifiers that are used in
// store keys, file paths, or log fields. Using these validators prevents injection
// attacks (key collision, path traversal, log forgery).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// idPattern matches valid channel and task identifiers.
// Allows: letters, digits, then dots (design.api), underscores, colons
// (agent:7), at signs, hyphens (C-42)
// Max length: 128 characters
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@\-]{0,127}$`)

// ValidateID validates a channel or task identifier before it is used as a
// store key or path component.
//
// Valid identifiers:
//   - 1-128 characters
//   - Letters A-Z, a-z
//   - Digits 0-9
//   - Dots (.), underscores (_), colons (:), at signs (@), hyphens (-)
//     after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateID(channelID); err != nil {
//	    return fmt.Errorf("invalid channel id: %w", err)
//	}
//	// Safe to use as a store key
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-128 alphanumeric chars, dots, underscores, colons, at signs, or hyphens)", id)
	}

	return nil
}

// ValidateIDs validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeID trims and validates an identifier.
// Returns the trimmed identifier if valid, or an error if invalid.
//
// Identifiers are case-sensitive, so no case folding is applied.
//
//	safeID, err := validation.SanitizeID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is trimmed and validated
func SanitizeID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
