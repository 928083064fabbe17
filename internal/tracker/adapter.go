// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/pkg/ratelimit"
	"github.com/seedarr/seedarr/pkg/torznab"
)

// Credentials are the runtime secrets for one tracker.
type Credentials struct {
	APIKey  string
	Passkey string
}

// Clearance is a solved Cloudflare challenge: the cookies plus the user
// agent they were issued to. Requests must present both or the site
// challenges again.
type Clearance struct {
	Cookies   []*http.Cookie
	UserAgent string
}

// ChallengeSolver obtains Cloudflare clearance for a protected URL.
type ChallengeSolver interface {
	Solve(ctx context.Context, targetURL string) (*Clearance, error)
}

// SearchResult is one release found on the tracker.
type SearchResult struct {
	Title    string `json:"title"`
	TmdbID   int64  `json:"tmdbId,omitempty"`
	ImdbID   string `json:"imdbId,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Seeders  int    `json:"seeders"`
	Leechers int    `json:"leechers"`
	URL      string `json:"url,omitempty"`
}

// UploadResult is a parsed successful upload response.
type UploadResult struct {
	TorrentID  string         `json:"torrentId,omitempty"`
	TorrentURL string         `json:"torrentUrl,omitempty"`
	Raw        map[string]any `json:"-"`
}

// TestResult is the outcome of a dry-run hook.
type TestResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Adapter executes tracker operations driven entirely by the schema. It
// carries no per-tracker branches; anything site-specific lives in the
// schema document.
type Adapter struct {
	schema *Schema
	creds  Credentials
	guards *registry.Registry
	solver ChallengeSolver

	httpClient   *http.Client
	uploadClient *http.Client

	mu        sync.Mutex
	clearance *Clearance
}

// NewAdapter builds an adapter for one schema. The schema's rate_limiting
// overrides are installed into the shared registry so all instances pace
// against the same buckets. solver may be nil when the schema does not
// require Cloudflare bypass.
func NewAdapter(schema *Schema, creds Credentials, guards *registry.Registry, solver ChallengeSolver) *Adapter {
	for action, rl := range schema.RateLimiting {
		key := ratelimit.Key(schema.serviceName(), action)
		if err := guards.Limits.Configure(key, ratelimit.Config{Capacity: rl.Capacity, RefillRate: rl.RefillRate}); err != nil {
			log.Warn().Err(err).Str("tracker", schema.Tracker.Slug).Str("action", action).
				Msg("tracker: ignoring invalid rate limit override")
		}
	}

	return &Adapter{
		schema: schema,
		creds:  creds,
		guards: guards,
		solver: solver,
		// Small endpoints respond quickly; uploads push the full torrent
		// plus NFO through Cloudflare and may take minutes.
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		uploadClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Slug returns the tracker slug.
func (a *Adapter) Slug() string {
	return a.schema.Tracker.Slug
}

// Schema returns the underlying schema.
func (a *Adapter) Schema() *Schema {
	return a.schema
}

func (s *Schema) serviceName() string {
	return "tracker/" + s.Tracker.Slug
}

// AnnounceURL composes the announce endpoint with the passkey applied.
func (a *Adapter) AnnounceURL() string {
	base := strings.TrimRight(a.schema.Tracker.BaseURL, "/")
	if a.creds.Passkey == "" {
		return base + "/announce"
	}
	param := a.schema.Auth.PasskeyParam
	if param == "" {
		param = "passkey"
	}
	return base + "/announce?" + param + "=" + url.QueryEscape(a.creds.Passkey)
}

// SourceFlag is the metainfo source value for this tracker.
func (a *Adapter) SourceFlag() string {
	if a.schema.Tracker.SourceFlag != "" {
		return a.schema.Tracker.SourceFlag
	}
	return strings.ToUpper(a.schema.Tracker.Slug)
}

// Authenticate prepares a session: obtains Cloudflare clearance when the
// schema requires it, then verifies credentials against the authenticate
// endpoint if one is declared.
func (a *Adapter) Authenticate(ctx context.Context) error {
	if a.schema.Cloudflare.Enabled {
		if a.solver == nil {
			return errkind.New(errkind.KindValidation, "tracker %s requires cloudflare bypass but no solver is configured", a.Slug())
		}
		clearance, err := a.solver.Solve(ctx, a.schema.Tracker.BaseURL)
		if err != nil {
			return fmt.Errorf("cloudflare clearance for %s: %w", a.Slug(), err)
		}
		a.mu.Lock()
		a.clearance = clearance
		a.mu.Unlock()
	}

	endpoint, ok := a.schema.Endpoint("authenticate")
	if !ok {
		return nil
	}

	return a.guards.Call(ctx, a.schema.serviceName(), "auth", func(ctx context.Context) error {
		req, err := a.newRequest(ctx, endpoint, http.MethodGet, nil, "")
		if err != nil {
			return err
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return errkind.FromTransportErr(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return errkind.FromHTTPStatus(resp.StatusCode, 0, string(body))
		}
		return nil
	})
}

// Search queries the tracker's search endpoint with the given parameters
// and parses the response per the schema's declared format.
func (a *Adapter) Search(ctx context.Context, params map[string]string) ([]SearchResult, error) {
	endpoint, ok := a.schema.Endpoint("search")
	if !ok {
		return nil, errkind.New(errkind.KindValidation, "tracker %s has no search endpoint", a.Slug())
	}

	var results []SearchResult
	err := a.guards.Call(ctx, a.schema.serviceName(), "search", func(ctx context.Context) error {
		req, err := a.newRequest(ctx, endpoint, http.MethodGet, nil, "")
		if err != nil {
			return err
		}

		q := req.URL.Query()
		for key, value := range params {
			if value != "" {
				q.Set(key, value)
			}
		}
		req.URL.RawQuery = q.Encode()

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return errkind.FromTransportErr(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errkind.FromTransportErr(err)
		}
		if resp.StatusCode >= 400 {
			return errkind.FromHTTPStatus(resp.StatusCode, 0, string(body))
		}

		results, err = a.parseSearchResponse(body)
		return err
	})
	return results, err
}

// DuplicateQuery identifies a release for duplicate checking, strongest
// identifier first.
type DuplicateQuery struct {
	TmdbID      int64
	ImdbID      string
	ReleaseName string
}

// DuplicateCheck runs the cascade search: TMDB id, then IMDB id, then the
// sanitized release name. It returns the matches and which identifier
// produced them.
func (a *Adapter) DuplicateCheck(ctx context.Context, q DuplicateQuery) ([]SearchResult, string, error) {
	params := a.schema.Search.Params

	if q.TmdbID > 0 {
		key := params.TmdbID
		if key == "" {
			key = "tmdbid"
		}
		matches, err := a.Search(ctx, map[string]string{key: fmt.Sprintf("%d", q.TmdbID)})
		if err != nil {
			return nil, "", err
		}
		if len(matches) > 0 {
			return matches, "tmdb", nil
		}
	}

	if q.ImdbID != "" {
		key := params.ImdbID
		if key == "" {
			key = "imdbid"
		}
		matches, err := a.Search(ctx, map[string]string{key: q.ImdbID})
		if err != nil {
			return nil, "", err
		}
		if len(matches) > 0 {
			return matches, "imdb", nil
		}
	}

	if q.ReleaseName != "" {
		key := params.Query
		if key == "" {
			key = "q"
		}
		matches, err := a.Search(ctx, map[string]string{key: a.schema.SanitizeName(q.ReleaseName)})
		if err != nil {
			return nil, "", err
		}
		// Name search is fuzzy; only results matching the normalized
		// release name count as duplicates.
		want := normalizeRelease(q.ReleaseName)
		filtered := matches[:0]
		for _, m := range matches {
			if normalizeRelease(m.Title) == want {
				filtered = append(filtered, m)
			}
		}
		if len(filtered) > 0 {
			return filtered, "name", nil
		}
	}

	return nil, "", nil
}

// normalizeRelease reduces a release name to lowercase alphanumeric tokens
// so dot/space/dash variants of the same release compare equal.
func normalizeRelease(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte(' ')
				lastSep = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Upload builds the multipart request from the schema's field descriptors
// and the build context, then posts it. Validation failures are terminal
// and happen before any network traffic.
func (a *Adapter) Upload(ctx context.Context, uc Context) (*UploadResult, error) {
	endpoint, ok := a.schema.Endpoint("upload")
	if !ok {
		return nil, errkind.New(errkind.KindValidation, "tracker %s has no upload endpoint", a.Slug())
	}

	if err := a.validateUpload(uc); err != nil {
		return nil, err
	}

	var result *UploadResult
	err := a.guards.Call(ctx, a.schema.serviceName(), "upload", func(ctx context.Context) error {
		// The body is rebuilt per attempt; a consumed reader cannot be
		// retried.
		body, contentType, err := a.buildUploadBody(uc)
		if err != nil {
			return err
		}

		method := endpoint.Method
		if method == "" {
			method = http.MethodPost
		}

		req, err := a.newRequest(ctx, endpoint, method, body, contentType)
		if err != nil {
			return err
		}
		req.ContentLength = int64(body.Len())

		log.Debug().Str("tracker", a.Slug()).Str("url", req.URL.Redacted()).Int("bytes", body.Len()).
			Msg("tracker: uploading release")

		resp, err := a.uploadClient.Do(req)
		if err != nil {
			return errkind.FromTransportErr(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errkind.FromTransportErr(err)
		}

		result, err = a.parseUploadResponse(resp.StatusCode, raw, uc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateUpload enforces the schema's validation section plus required
// upload fields against the build context.
func (a *Adapter) validateUpload(uc Context) error {
	var problems []string

	for _, field := range a.schema.Upload.Fields {
		if !field.Required {
			continue
		}
		if value := uc.Resolve(field.sourcePath()); value == nil && field.Default == nil {
			problems = append(problems, fmt.Sprintf("required field %q has no value", field.Name))
		}
	}

	for path, rule := range a.schema.Validation {
		value := uc.Resolve(path)
		str, _ := value.(string)
		if value != nil && str == "" {
			str = stringify(value)
		}

		if rule.Required && str == "" {
			problems = append(problems, fmt.Sprintf("%s is required", path))
			continue
		}
		if str == "" {
			continue
		}
		if rule.MinLength > 0 && len(str) < rule.MinLength {
			problems = append(problems, fmt.Sprintf("%s is shorter than %d characters", path, rule.MinLength))
		}
		if rule.MaxLength > 0 && len(str) > rule.MaxLength {
			problems = append(problems, fmt.Sprintf("%s exceeds %d characters", path, rule.MaxLength))
		}
		if rule.Pattern != "" {
			re, err := compiledPattern(rule.Pattern)
			if err == nil && !re.MatchString(str) {
				problems = append(problems, fmt.Sprintf("%s does not match %s", path, rule.Pattern))
			}
		}
	}

	if len(problems) > 0 {
		return errkind.New(errkind.KindValidation, "upload payload invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (f FieldSpec) sourcePath() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// buildUploadBody walks the ordered field descriptors and writes the
// multipart form. Repeated fields emit one form entry per value, never a
// JSON array; at least one supported site rejects the array form.
func (a *Adapter) buildUploadBody(uc Context) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range a.schema.Upload.Fields {
		value := uc.Resolve(field.sourcePath())
		if value == nil {
			value = field.Default
		}
		if value == nil {
			if field.Required {
				return nil, "", errkind.New(errkind.KindValidation, "required field %q has no value", field.Name)
			}
			continue
		}

		switch field.Type {
		case FieldFile:
			data, err := fileBytes(value)
			if err != nil {
				return nil, "", errkind.Wrap(errkind.KindValidation, err, "field %q", field.Name)
			}
			filename := field.Filename
			if filename == "" {
				filename = field.Name + ".bin"
			}
			part, err := w.CreateFormFile(field.Name, uc.Interpolate(filename))
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(data); err != nil {
				return nil, "", err
			}

		case FieldRepeated:
			for _, item := range toList(value) {
				if err := w.WriteField(field.Name, stringify(item)); err != nil {
					return nil, "", err
				}
			}

		case FieldJSON:
			blob, err := json.Marshal(value)
			if err != nil {
				return nil, "", errkind.Wrap(errkind.KindValidation, err, "encode field %q", field.Name)
			}
			if err := w.WriteField(field.Name, string(blob)); err != nil {
				return nil, "", err
			}

		default:
			// string, boolean, number share the stringified form.
			s := stringify(value)
			if field.Sanitize != nil {
				if field.Sanitize.ReplaceSpaces != "" {
					s = strings.ReplaceAll(s, " ", field.Sanitize.ReplaceSpaces)
				}
				if field.Sanitize.MaxLength > 0 && len(s) > field.Sanitize.MaxLength {
					s = s[:field.Sanitize.MaxLength]
				}
			}
			if err := w.WriteField(field.Name, s); err != nil {
				return nil, "", err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func fileBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("file value is %T, want bytes", value)
	}
}

// parseUploadResponse interprets the reply per the schema's response
// section. A declared success field that reads false is a rejection; a
// rejection mentioning a duplicate classifies as DuplicateRelease so the
// policy layer can treat it as a skip.
func (a *Adapter) parseUploadResponse(status int, body []byte, uc Context) (*UploadResult, error) {
	if status >= 400 {
		return nil, errkind.FromHTTPStatus(status, 0, string(body))
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		// Some sites answer uploads with a plain 200 and no JSON body.
		if status < 300 {
			return &UploadResult{}, nil
		}
		return nil, errkind.New(errkind.KindTrackerPermanent, "unparseable upload response: %.200s", string(body))
	}

	rc := a.schema.Response.Upload

	if rc.SuccessField != "" {
		if ok, isBool := resolvePath(data, rc.SuccessField).(bool); isBool && !ok {
			message := "upload rejected"
			if rc.ErrorField != "" {
				if m := resolvePath(data, rc.ErrorField); m != nil {
					message = stringify(m)
				}
			}
			if strings.Contains(strings.ToLower(message), "duplicate") {
				return nil, errkind.New(errkind.KindDuplicateRelease, "%s", message)
			}
			return nil, errkind.New(errkind.KindTrackerPermanent, "%s", message)
		}
	}

	result := &UploadResult{Raw: data}
	if rc.TorrentIDField != "" {
		if id := resolvePath(data, rc.TorrentIDField); id != nil {
			result.TorrentID = stringify(id)
		}
	}
	if rc.TorrentURLTemplate != "" {
		vars := Context{
			"tracker_url": strings.TrimRight(a.schema.Tracker.BaseURL, "/"),
			"torrent_id":  result.TorrentID,
		}
		for k, v := range uc {
			vars[k] = v
		}
		result.TorrentURL = vars.Interpolate(rc.TorrentURLTemplate)
	}
	return result, nil
}

// newRequest builds a request for an endpoint with auth, clearance cookies
// and the solved user agent applied. Paths are URL templates interpolated
// against the credential context.
func (a *Adapter) newRequest(ctx context.Context, endpoint Endpoint, method string, body io.Reader, contentType string) (*http.Request, error) {
	creds := Context{
		"api_key": a.creds.APIKey,
		"passkey": a.creds.Passkey,
	}

	path := creds.Interpolate(endpoint.Path)
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = strings.TrimRight(a.schema.Tracker.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", a.Slug(), err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.8")

	a.applyAuth(req)
	a.applyClearance(req)
	return req, nil
}

func (a *Adapter) applyAuth(req *http.Request) {
	switch a.schema.AuthType() {
	case AuthBearer:
		header := a.schema.Auth.Header
		if header == "" {
			header = "Authorization"
		}
		prefix := a.schema.Auth.Prefix
		if prefix == "" {
			prefix = "Bearer "
		}
		if a.creds.APIKey != "" {
			req.Header.Set(header, prefix+a.creds.APIKey)
		}
	case AuthAPIKey:
		header := a.schema.Auth.Header
		if header == "" {
			header = "X-Api-Key"
		}
		if a.creds.APIKey != "" {
			req.Header.Set(header, a.creds.APIKey)
		}
	case AuthPasskey:
		param := a.schema.Auth.PasskeyParam
		if param == "" {
			param = "passkey"
		}
		if a.creds.Passkey != "" {
			q := req.URL.Query()
			q.Set(param, a.creds.Passkey)
			req.URL.RawQuery = q.Encode()
		}
	}

	if a.schema.Auth.QueryParam != "" && a.creds.APIKey != "" {
		q := req.URL.Query()
		q.Set(a.schema.Auth.QueryParam, a.creds.APIKey)
		req.URL.RawQuery = q.Encode()
	}
}

func (a *Adapter) applyClearance(req *http.Request) {
	a.mu.Lock()
	clearance := a.clearance
	a.mu.Unlock()

	if clearance == nil {
		return
	}
	for _, cookie := range clearance.Cookies {
		req.AddCookie(cookie)
	}
	if clearance.UserAgent != "" {
		req.Header.Set("User-Agent", clearance.UserAgent)
	}
}

// parseSearchResponse dispatches on the schema's declared format.
func (a *Adapter) parseSearchResponse(body []byte) ([]SearchResult, error) {
	if a.schema.Search.Response.Format == "torznab_xml" {
		return parseTorznab(body)
	}
	return a.parseJSONSearch(body)
}

func parseTorznab(body []byte) ([]SearchResult, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<error") {
		var tErr torznab.Error
		if err := xml.Unmarshal(body, &tErr); err != nil {
			return nil, fmt.Errorf("decode torznab error: %w", err)
		}
		return nil, errkind.New(errkind.KindExternalUnavailable, "torznab error %s: %s", tErr.Code, tErr.Message)
	}

	var rss torznab.Rss
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("decode torznab response: %w", err)
	}

	results := make([]SearchResult, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		seeders, _ := parseInt(item.Attr("seeders"))
		leechers, _ := parseInt(item.Attr("peers"))
		results = append(results, SearchResult{
			Title:    item.Title,
			TmdbID:   item.TmdbID(),
			ImdbID:   item.ImdbID(),
			Size:     item.Size,
			Seeders:  seeders,
			Leechers: leechers,
			URL:      item.GUID,
		})
	}
	return results, nil
}

func (a *Adapter) parseJSONSearch(body []byte) ([]SearchResult, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errkind.New(errkind.KindExternalUnavailable, "unparseable search response: %.200s", string(body))
	}

	list := data
	if path := a.schema.Search.Response.Path; path != "" {
		list = resolvePath(data, path)
	}

	items, ok := list.([]any)
	if !ok {
		if list == nil {
			return nil, nil
		}
		return nil, errkind.New(errkind.KindValidation, "search response path %q is not a list", a.schema.Search.Response.Path)
	}

	results := make([]SearchResult, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		r := SearchResult{
			Title:  firstString(item, "title", "name", "release_name"),
			ImdbID: firstString(item, "imdb_id", "imdbid"),
			URL:    firstString(item, "url", "download_url", "link"),
		}
		r.TmdbID, _ = parseInt64(firstRaw(item, "tmdb_id", "tmdbid"))
		r.Size, _ = parseInt64(firstRaw(item, "size", "size_bytes"))
		r.Seeders, _ = parseInt(stringify(firstRaw(item, "seeders")))
		r.Leechers, _ = parseInt(stringify(firstRaw(item, "leechers", "peers")))
		results = append(results, r)
	}
	return results, nil
}

func firstRaw(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	v := firstRaw(m, keys...)
	if v == nil {
		return ""
	}
	return stringify(v)
}

func parseInt(s string) (int, error) {
	n, err := parseInt64(s)
	return int(n), err
}

func parseInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		if n == "" {
			return 0, nil
		}
		var out int64
		_, err := fmt.Sscanf(n, "%d", &out)
		return out, err
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// TestAuth dry-runs authentication.
func (a *Adapter) TestAuth(ctx context.Context) TestResult {
	if err := a.Authenticate(ctx); err != nil {
		return TestResult{Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("authenticated against %s", a.schema.Tracker.Name)}
}

// TestSearch dry-runs the search endpoint with the schema's default query.
func (a *Adapter) TestSearch(ctx context.Context) TestResult {
	query := a.schema.Search.DefaultQuery
	if query == "" {
		query = "test"
	}
	key := a.schema.Search.Params.Query
	if key == "" {
		key = "q"
	}

	results, err := a.Search(ctx, map[string]string{key: query})
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("search returned %d results", len(results))}
}

// TestUpload builds and validates the upload payload without transmitting
// anything. The details list the form entries that would be sent.
func (a *Adapter) TestUpload(uc Context) TestResult {
	if err := a.validateUpload(uc); err != nil {
		return TestResult{Message: err.Error()}
	}

	body, _, err := a.buildUploadBody(uc)
	if err != nil {
		return TestResult{Message: err.Error()}
	}

	var details []string
	for _, field := range a.schema.Upload.Fields {
		if uc.Resolve(field.sourcePath()) == nil && field.Default == nil {
			continue
		}
		kind := field.Type
		if kind == "" {
			kind = FieldString
		}
		details = append(details, fmt.Sprintf("%s (%s)", field.Name, kind))
	}

	return TestResult{
		Success: true,
		Message: fmt.Sprintf("payload valid, %d bytes", body.Len()),
		Details: details,
	}
}
