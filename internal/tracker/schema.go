// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tracker implements the config-driven tracker adapter. A Schema
// parsed from YAML describes everything site-specific: auth, endpoints,
// upload fields, option mappings, categories, search and response shapes.
// The adapter itself carries no per-tracker branches.
package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seedarr/seedarr/internal/errkind"
)

// Auth types a schema may declare.
const (
	AuthBearer  = "bearer"
	AuthAPIKey  = "api_key"
	AuthPasskey = "passkey"
	AuthCookie  = "cookie"
	AuthNone    = "none"
)

// Field types upload.fields may declare.
const (
	FieldFile     = "file"
	FieldString   = "string"
	FieldJSON     = "json"
	FieldBoolean  = "boolean"
	FieldRepeated = "repeated"
	FieldNumber   = "number"
)

var validAuthTypes = map[string]bool{
	AuthBearer: true, AuthAPIKey: true, AuthPasskey: true, AuthCookie: true, AuthNone: true,
}

var validFieldTypes = map[string]bool{
	FieldFile: true, FieldString: true, FieldJSON: true, FieldBoolean: true,
	FieldRepeated: true, FieldNumber: true,
}

// Schema is one tracker's declarative configuration.
type Schema struct {
	Tracker      Identity                   `yaml:"tracker"`
	Auth         AuthConfig                 `yaml:"auth"`
	Cloudflare   CloudflareConfig           `yaml:"cloudflare"`
	Endpoints    map[string]Endpoint        `yaml:"endpoints"`
	RateLimiting map[string]RateLimitConfig `yaml:"rate_limiting"`
	Upload       UploadConfig               `yaml:"upload"`
	Options      map[string]OptionConfig    `yaml:"options"`
	Categories   map[string]string          `yaml:"categories"`
	Search       SearchConfig               `yaml:"search"`
	Response     ResponseConfig             `yaml:"response"`
	Validation   map[string]ValidationRule  `yaml:"validation"`
	Sanitize     SanitizeConfig             `yaml:"sanitize"`
	Prowlarr     ProwlarrHints              `yaml:"prowlarr"`
}

// Identity names the tracker.
type Identity struct {
	Name    string `yaml:"name"`
	Slug    string `yaml:"slug"`
	BaseURL string `yaml:"base_url"`
	// SourceFlag is the metainfo source tag, default uppercased slug.
	SourceFlag string `yaml:"source_flag"`
}

// AuthConfig selects the credential scheme.
type AuthConfig struct {
	Type string `yaml:"type"`
	// Header carries the credential for bearer and api_key auth.
	Header string `yaml:"header"`
	// Prefix prepends the bearer token, default "Bearer ".
	Prefix string `yaml:"prefix"`
	// QueryParam additionally sends the key as a query parameter when set.
	QueryParam string `yaml:"query_param"`
	// PasskeyParam names the announce/query passkey parameter, default
	// "passkey".
	PasskeyParam string `yaml:"passkey_param"`
}

// CloudflareConfig enables challenge solving in front of the site.
type CloudflareConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
}

// Endpoint is a URL template plus method. A schema may write it as a bare
// string, which means GET/POST is decided by the operation.
type Endpoint struct {
	Path   string `yaml:"path"`
	Method string `yaml:"method"`
}

// UnmarshalYAML accepts both `upload: /api/upload` and the mapping form.
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Path = node.Value
		return nil
	}

	type plain Endpoint
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Endpoint(p)
	return nil
}

// RateLimitConfig overrides the shared bucket for one action.
type RateLimitConfig struct {
	Capacity   float64 `yaml:"capacity"`
	RefillRate float64 `yaml:"refill_rate"`
}

// UploadConfig holds the ordered upload field descriptors.
type UploadConfig struct {
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec describes one upload form field.
type FieldSpec struct {
	// Name is the API form field name.
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Source is the dotted path into the build context; defaults to Name.
	Source   string `yaml:"source"`
	Default  any    `yaml:"default"`
	Required bool   `yaml:"required"`
	// Filename templates the attached file name for file fields.
	Filename string         `yaml:"filename"`
	Sanitize *FieldSanitize `yaml:"sanitize"`
}

// FieldSanitize applies per-field string cleanup.
type FieldSanitize struct {
	ReplaceSpaces string `yaml:"replace_spaces"`
	MaxLength     int    `yaml:"max_length"`
}

// OptionConfig maps one semantic facet to the tracker's option ids.
type OptionConfig struct {
	// Type is the API option type key the resolved ids are keyed under.
	Type        string `yaml:"type"`
	MultiSelect bool   `yaml:"multi_select"`
	Default     any    `yaml:"default"`

	Mappings     map[string]int `yaml:"mappings"`
	TmdbMappings map[int]int    `yaml:"tmdb_mappings"`
	NameMappings map[string]int `yaml:"name_mappings"`
	// ResolutionFallback resolves quality by resolution alone when no
	// combined mapping matches.
	ResolutionFallback map[string]int `yaml:"resolution_fallback"`

	AutoMulti      bool `yaml:"auto_multi"`
	AutoMultiValue int  `yaml:"auto_multi_value"`

	// Season/episode facets compute ids arithmetically.
	CompleteValue int `yaml:"complete_value"`
	BaseValue     int `yaml:"base_value"`
	MaxValue      int `yaml:"max_value"`
}

// SearchConfig shapes duplicate-check queries and their responses.
type SearchConfig struct {
	Params       SearchParams   `yaml:"params"`
	DefaultQuery string         `yaml:"default_query"`
	Response     SearchResponse `yaml:"response"`
}

// SearchParams names the query parameters the site expects.
type SearchParams struct {
	TmdbID string `yaml:"tmdb_id"`
	ImdbID string `yaml:"imdb_id"`
	Query  string `yaml:"query"`
}

// SearchResponse selects the result parser.
type SearchResponse struct {
	// Format is "json" or "torznab_xml".
	Format string `yaml:"format"`
	// Path locates the torrent list inside a JSON response.
	Path string `yaml:"path"`
}

// ResponseConfig shapes the upload response parser.
type ResponseConfig struct {
	Upload UploadResponse `yaml:"upload"`
}

// UploadResponse names the dotted paths inside the upload reply.
type UploadResponse struct {
	SuccessField       string `yaml:"success_field"`
	ErrorField         string `yaml:"error_field"`
	TorrentIDField     string `yaml:"torrent_id_field"`
	TorrentURLTemplate string `yaml:"torrent_url_template"`
}

// ValidationRule constrains one build-context field before upload.
type ValidationRule struct {
	Required  bool   `yaml:"required"`
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
	Pattern   string `yaml:"pattern"`
}

// SanitizeConfig is the ordered name-sanitization pipeline.
type SanitizeConfig struct {
	Operations []SanitizeOp `yaml:"operations"`
}

// SanitizeOp is one sanitization step.
type SanitizeOp struct {
	Type        string `yaml:"type"`
	Replacement string `yaml:"replacement"`
	Pattern     string `yaml:"pattern"`
	Length      int    `yaml:"length"`
}

// ProwlarrHints match this tracker to a Prowlarr indexer.
type ProwlarrHints struct {
	IndexerNames []string `yaml:"indexer_names"`
	URLPatterns  []string `yaml:"url_patterns"`
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errkind.Wrap(errkind.KindValidation, err, "decode tracker schema")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tracker schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// LoadDir parses every .yaml/.yml schema in dir, keyed by slug.
func LoadDir(dir string) (map[string]*Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	schemas := make(map[string]*Schema)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		s, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		schemas[s.Tracker.Slug] = s
	}
	return schemas, nil
}

// Validate checks structural requirements. All problems are reported at
// once so a schema author fixes one round, not one error per round.
func (s *Schema) Validate() error {
	var problems []string

	if s.Tracker.Name == "" {
		problems = append(problems, "tracker.name is required")
	}
	if s.Tracker.Slug == "" {
		problems = append(problems, "tracker.slug is required")
	}

	if s.Auth.Type != "" && !validAuthTypes[s.Auth.Type] {
		problems = append(problems, fmt.Sprintf("auth.type %q is not recognized", s.Auth.Type))
	}

	if _, ok := s.Endpoints["upload"]; !ok {
		problems = append(problems, "endpoints.upload is required")
	}

	hasTorrent := false
	for _, f := range s.Upload.Fields {
		if f.Name == "" {
			problems = append(problems, "upload field without a name")
			continue
		}
		if f.Type != "" && !validFieldTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("upload field %q has unknown type %q", f.Name, f.Type))
		}
		if f.Name == "torrent" || f.Source == "torrent_data" {
			hasTorrent = true
		}
	}
	if !hasTorrent {
		problems = append(problems, "upload.fields must include the torrent file field")
	}

	for name, opt := range s.Options {
		if opt.Type == "" {
			problems = append(problems, fmt.Sprintf("option %q is missing its type key", name))
		}
	}

	if len(problems) > 0 {
		return errkind.New(errkind.KindValidation, "invalid tracker schema: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AuthType returns the declared auth type, defaulting to none.
func (s *Schema) AuthType() string {
	if s.Auth.Type == "" {
		return AuthNone
	}
	return s.Auth.Type
}

// Endpoint returns the endpoint for key along with whether it is defined.
func (s *Schema) Endpoint(key string) (Endpoint, bool) {
	e, ok := s.Endpoints[key]
	return e, ok
}
