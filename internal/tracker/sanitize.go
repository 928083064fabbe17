// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"regexp"
	"strings"
	"sync"
)

// Sanitize operation types a schema may declare.
const (
	SanitizeReplaceSpaces = "replace_spaces"
	SanitizeRemovePattern = "remove_pattern"
	SanitizeCollapseDots  = "collapse_dots"
	SanitizeStripDots     = "strip_dots"
	SanitizeMaxLength     = "max_length"
	SanitizeLowercase     = "lowercase"
	SanitizeUppercase     = "uppercase"
)

var collapseDotsRe = regexp.MustCompile(`\.{2,}`)

// patternCache memoizes compiled remove_pattern expressions across calls;
// schemas are static after load so the set stays tiny.
var patternCache sync.Map

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// SanitizeName runs the schema's ordered sanitization pipeline over name.
// Unknown operation types and invalid patterns are skipped so a bad schema
// entry degrades to a no-op instead of blocking uploads.
func (s *Schema) SanitizeName(name string) string {
	result := name
	for _, op := range s.Sanitize.Operations {
		switch op.Type {
		case SanitizeReplaceSpaces:
			replacement := op.Replacement
			if replacement == "" {
				replacement = "."
			}
			result = strings.ReplaceAll(result, " ", replacement)
		case SanitizeRemovePattern:
			if op.Pattern == "" {
				continue
			}
			re, err := compiledPattern(op.Pattern)
			if err != nil {
				continue
			}
			result = re.ReplaceAllString(result, "")
		case SanitizeCollapseDots:
			result = collapseDotsRe.ReplaceAllString(result, ".")
		case SanitizeStripDots:
			result = strings.Trim(result, ".")
		case SanitizeMaxLength:
			length := op.Length
			if length <= 0 {
				length = 255
			}
			if len(result) > length {
				result = result[:length]
			}
		case SanitizeLowercase:
			result = strings.ToLower(result)
		case SanitizeUppercase:
			result = strings.ToUpper(result)
		}
	}
	return result
}
