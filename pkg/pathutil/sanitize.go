// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathutil sanitizes strings for use as filesystem path segments.
package pathutil

import "strings"

// illegal covers the characters rejected on at least one supported
// filesystem.
const illegal = `<>:"/\|?*`

var reserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// SanitizeSegment makes s safe as a single path segment: illegal and
// control characters are stripped, trailing dots and spaces removed, and
// Windows reserved device names prefixed with an underscore.
func SanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || strings.ContainsRune(illegal, r) {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimRight(b.String(), ". ")

	if reserved[strings.ToLower(out)] {
		out = "_" + out
	}
	return out
}
