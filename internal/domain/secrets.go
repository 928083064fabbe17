// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactString replaces a string with asterisks of the same length
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}

	return strings.Repeat("*", len(s))
}

// IsRedactedValue checks if a value appears to be redacted (all asterisks).
// API clients send the redacted form back to mean "keep the stored value".
func IsRedactedValue(value string) bool {
	if value == "" {
		return false
	}

	for _, char := range value {
		if char != '*' {
			return false
		}
	}
	return true
}
