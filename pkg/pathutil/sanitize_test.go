// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"The.Movie.2024.1080p.BluRay.x264-GRP", "The.Movie.2024.1080p.BluRay.x264-GRP"},
		{"a/b\\c:d", "abcd"},
		{"name<>:\"|?*", "name"},
		{"trailing...", "trailing"},
		{"trailing   ", "trailing"},
		{"con", "_con"},
		{"COM1", "_COM1"},
		{"conference", "conference"},
		{"tab\there", "tabhere"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeSegment(tt.input), "input %q", tt.input)
	}
}
