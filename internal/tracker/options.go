// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"regexp"
	"strings"
)

// Genre is one TMDB genre for option mapping.
type Genre struct {
	ID   int
	Name string
}

// Metadata is the release metadata option mapping draws from.
type Metadata struct {
	ReleaseName string
	Resolution  string
	Source      string
	Languages   []string
	Genres      []Genre
	// Season/Episode are nil for movies; a non-nil zero means "complete".
	Season  *int
	Episode *int
	IsTV    bool
}

var seasonEpisodeRe = regexp.MustCompile(`[Ss](\d{1,2})[.\s]?[Ee](\d{1,2})`)
var seasonOnlyRe = regexp.MustCompile(`[Ss](\d{1,2})([^Ee]|$)`)

// BuildOptions resolves every option facet in the schema against the
// metadata. Keys are the schema's API option type ids; values are a single
// id or a list per multi_select.
func (s *Schema) BuildOptions(meta Metadata) map[string]any {
	options := make(map[string]any)

	for name, opt := range s.Options {
		if opt.Type == "" {
			continue
		}

		switch name {
		case "language":
			if ids := opt.mapLanguages(meta.Languages); len(ids) > 0 {
				if opt.MultiSelect {
					options[opt.Type] = ids
				} else {
					options[opt.Type] = ids[0]
				}
			}
		case "quality":
			if id, ok := opt.mapQuality(meta.Resolution, meta.Source, meta.ReleaseName); ok {
				options[opt.Type] = id
			}
		case "genre":
			if ids := opt.mapGenres(meta.Genres); len(ids) > 0 {
				options[opt.Type] = ids
			}
		case "season":
			if meta.IsTV {
				season := meta.Season
				if season == nil {
					season = detectSeason(meta.ReleaseName)
				}
				if id, ok := opt.mapOrdinal(season); ok {
					options[opt.Type] = id
				}
			}
		case "episode":
			if meta.IsTV {
				episode := meta.Episode
				if episode == nil {
					episode = detectEpisode(meta.ReleaseName)
				}
				if id, ok := opt.mapOrdinal(episode); ok {
					options[opt.Type] = id
				}
			}
		}
	}

	return options
}

func normalizeKey(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, "-", "_")
	return strings.ReplaceAll(v, " ", "_")
}

// mapLanguages resolves language ids by direct then partial key match. If
// both a French and an English id resolved and auto_multi is set, the
// multi id is added as well.
func (o OptionConfig) mapLanguages(languages []string) []int {
	var ids []int
	add := func(id int) {
		for _, existing := range ids {
			if existing == id {
				return
			}
		}
		ids = append(ids, id)
	}

	for _, lang := range languages {
		key := normalizeKey(lang)
		if id, ok := o.Mappings[key]; ok {
			add(id)
			continue
		}
		for mapKey, id := range o.Mappings {
			if strings.Contains(key, mapKey) || strings.Contains(mapKey, key) {
				add(id)
				break
			}
		}
	}

	if o.AutoMulti && o.AutoMultiValue != 0 {
		hasFrench, hasEnglish := false, false
		for mapKey, id := range o.Mappings {
			isFrench := strings.Contains(mapKey, "french") || strings.Contains(mapKey, "vff") || mapKey == "fr"
			isEnglish := strings.Contains(mapKey, "english") || mapKey == "en"
			for _, resolved := range ids {
				if resolved != id {
					continue
				}
				if isFrench {
					hasFrench = true
				}
				if isEnglish {
					hasEnglish = true
				}
			}
		}
		if hasFrench && hasEnglish {
			add(o.AutoMultiValue)
		}
	}

	if len(ids) == 0 {
		ids = o.defaultIDs()
	}
	return ids
}

// mapQuality resolves the quality id: combined resolution_source key,
// substring match, source-only, release-name token match, resolution
// fallback, then default.
func (o OptionConfig) mapQuality(resolution, source, releaseName string) (int, bool) {
	resNorm := normalizeResolution(normalizeKey(resolution))
	sourceNorm := normalizeSource(normalizeKey(source), strings.ToLower(releaseName))
	releaseLower := strings.ToLower(releaseName)

	if id, ok := o.Mappings[resNorm+"_"+sourceNorm]; ok {
		return id, true
	}

	for key, id := range o.Mappings {
		if resNorm != "" && sourceNorm != "" &&
			strings.Contains(key, resNorm) && strings.Contains(key, sourceNorm) {
			return id, true
		}
	}

	if id, ok := o.Mappings[sourceNorm]; ok {
		return id, true
	}

	if releaseLower != "" {
		for key, id := range o.Mappings {
			parts := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
			all := len(parts) > 0
			for _, p := range parts {
				if p == "" || !strings.Contains(releaseLower, p) {
					all = false
					break
				}
			}
			if all {
				return id, true
			}
		}
	}

	if id, ok := o.ResolutionFallback[resNorm]; ok {
		return id, true
	}

	if defaults := o.defaultIDs(); len(defaults) > 0 {
		return defaults[0], true
	}
	return 0, false
}

func normalizeResolution(res string) string {
	switch {
	case strings.Contains(res, "2160"), strings.Contains(res, "4k"), strings.Contains(res, "uhd"):
		return "2160p"
	case strings.Contains(res, "1080"):
		return "1080p"
	case strings.Contains(res, "720"):
		return "720p"
	case strings.Contains(res, "480"):
		return "480p"
	default:
		return res
	}
}

func normalizeSource(source, releaseLower string) string {
	switch {
	case strings.Contains(source, "remux"), strings.Contains(releaseLower, "remux"):
		return "remux"
	case strings.Contains(source, "web"):
		return "web"
	case strings.Contains(source, "blu"):
		return "bluray"
	case strings.Contains(source, "hdtv"):
		return "hdtv"
	case strings.Contains(source, "hdrip"), strings.Contains(source, "bdrip"):
		return "hdrip"
	default:
		return source
	}
}

// mapGenres resolves genre ids: tmdb id mapping first, then name mapping
// with partial match.
func (o OptionConfig) mapGenres(genres []Genre) []int {
	var ids []int
	add := func(id int) {
		if id == 0 {
			return
		}
		for _, existing := range ids {
			if existing == id {
				return
			}
		}
		ids = append(ids, id)
	}

	for _, genre := range genres {
		if id, ok := o.TmdbMappings[genre.ID]; ok {
			add(id)
			continue
		}

		name := normalizeKey(genre.Name)
		if id, ok := o.NameMappings[name]; ok {
			add(id)
			continue
		}
		for key, id := range o.NameMappings {
			if strings.Contains(name, key) || strings.Contains(key, name) {
				add(id)
				break
			}
		}
	}
	return ids
}

// mapOrdinal computes season/episode ids: nil or zero means complete,
// otherwise base+n capped at max.
func (o OptionConfig) mapOrdinal(n *int) (int, bool) {
	if n == nil || *n == 0 {
		if o.CompleteValue != 0 {
			return o.CompleteValue, true
		}
		return 0, false
	}

	id := o.BaseValue + *n
	if o.MaxValue != 0 && id > o.MaxValue {
		id = o.MaxValue
	}
	return id, true
}

func (o OptionConfig) defaultIDs() []int {
	switch v := o.Default.(type) {
	case int:
		return []int{v}
	case []any:
		var ids []int
		for _, item := range v {
			if n, ok := item.(int); ok {
				ids = append(ids, n)
			}
		}
		return ids
	default:
		return nil
	}
}

func detectSeason(releaseName string) *int {
	if m := seasonEpisodeRe.FindStringSubmatch(releaseName); m != nil {
		n := atoiSafe(m[1])
		return &n
	}
	if m := seasonOnlyRe.FindStringSubmatch(releaseName); m != nil {
		n := atoiSafe(m[1])
		return &n
	}
	return nil
}

func detectEpisode(releaseName string) *int {
	if m := seasonEpisodeRe.FindStringSubmatch(releaseName); m != nil {
		n := atoiSafe(m[2])
		return &n
	}
	return nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
