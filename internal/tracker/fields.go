// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Context is the build context upload fields resolve against. Values may
// be scalars, []byte blobs, slices, or nested maps addressed by dotted
// paths ("mediainfo.video.format", "tmdb.genres[*].id").
type Context map[string]any

var (
	wildcardKey = regexp.MustCompile(`^(.+?)\[\*\]$`)
	indexedKey  = regexp.MustCompile(`^(.+?)\[(\d+)\]$`)
	placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)
)

// Resolve walks a dotted path. A direct hit on the full path wins over
// traversal so flat keys containing dots still work.
func (c Context) Resolve(path string) any {
	if path == "" {
		return nil
	}
	if v, ok := c[path]; ok {
		return v
	}

	parts := strings.Split(path, ".")
	value, ok := c[parts[0]]
	if !ok {
		return nil
	}
	if len(parts) == 1 {
		return value
	}
	return resolvePath(value, strings.Join(parts[1:], "."))
}

// resolvePath descends into decoded JSON/YAML structures. Supports
// indexed access key[N] and wildcard key[*], which flattens results from
// every element.
func resolvePath(data any, path string) any {
	if path == "" {
		return data
	}

	keys := strings.Split(path, ".")
	value := data

	for i, key := range keys {
		if value == nil {
			return nil
		}

		if m := wildcardKey.FindStringSubmatch(key); m != nil {
			value = fieldOf(value, m[1])
			list, ok := value.([]any)
			if !ok {
				return nil
			}
			remaining := strings.Join(keys[i+1:], ".")
			if remaining == "" {
				return list
			}
			var results []any
			for _, item := range list {
				sub := resolvePath(item, remaining)
				if sub == nil {
					continue
				}
				if subList, ok := sub.([]any); ok {
					results = append(results, subList...)
				} else {
					results = append(results, sub)
				}
			}
			if len(results) == 0 {
				return nil
			}
			return results
		}

		if m := indexedKey.FindStringSubmatch(key); m != nil {
			value = fieldOf(value, m[1])
			list, ok := value.([]any)
			if !ok {
				return nil
			}
			idx, _ := strconv.Atoi(m[2])
			if idx >= len(list) {
				return nil
			}
			value = list[idx]
			continue
		}

		value = fieldOf(value, key)
	}

	return value
}

func fieldOf(value any, key string) any {
	switch m := value.(type) {
	case map[string]any:
		return m[key]
	case Context:
		return m[key]
	default:
		return nil
	}
}

// Interpolate replaces {variable} placeholders with context values. Unknown
// placeholders are left as-is so a missing value is visible, not silent.
func (c Context) Interpolate(template string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value := c.Resolve(name)
		if value == nil {
			return match
		}
		return stringify(value)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		// Decoded JSON numbers; keep integers clean.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toList normalizes slice-ish values for repeated fields.
func toList(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out
	default:
		return []any{value}
	}
}
