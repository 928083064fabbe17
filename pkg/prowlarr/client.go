// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarr provides a minimal Prowlarr API wrapper used for
// Torznab-style duplicate searches across indexers.
package prowlarr

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/pkg/torznab"
)

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
	Version    string
}

// Client provides Torznab-style access to Prowlarr indexers.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// NewClient constructs a new Client using the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "seedarr"
	}
	if v := strings.TrimSpace(cfg.Version); v != "" && !strings.Contains(ua, v) {
		ua = fmt.Sprintf("%s/%s", ua, v)
	}

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// Indexer represents a configured Prowlarr indexer returned by the API.
type Indexer struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Implementation string `json:"implementation"`
	Enable         bool   `json:"enable"`
	Protocol       string `json:"protocol"` // "unknown", "usenet", "torrent"
}

// SearchIndexer performs a Torznab search via the specified Prowlarr
// indexer ID. params typically carry "q" and id hints like "tmdbid".
func (c *Client) SearchIndexer(ctx context.Context, indexerID string, params map[string]string) (torznab.Rss, error) {
	var rss torznab.Rss

	if strings.TrimSpace(indexerID) == "" {
		return rss, errkind.New(errkind.KindValidation, "prowlarr indexer ID is required")
	}

	query := url.Values{}
	for key, value := range params {
		if strings.TrimSpace(value) == "" {
			continue
		}
		query.Set(key, value)
	}
	if query.Get("t") == "" {
		query.Set("t", "search")
	}
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	endpoint, err := url.JoinPath(c.host, "api", "v1", "indexer", strings.TrimSpace(indexerID), "newznab")
	if err != nil {
		return rss, fmt.Errorf("build prowlarr endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rss, fmt.Errorf("build prowlarr request: %w", err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rss, errkind.FromTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rss, errkind.FromTransportErr(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return rss, errkind.FromHTTPStatus(resp.StatusCode, 0, string(body))
	}

	// Torznab reports failures as an <error> document with HTTP 200.
	if strings.HasPrefix(strings.TrimSpace(string(body)), "<error") {
		var tErr torznab.Error
		if err := xml.Unmarshal(body, &tErr); err != nil {
			return rss, fmt.Errorf("decode torznab error response: %w", err)
		}
		return rss, errkind.New(errkind.KindExternalUnavailable, "torznab error %s: %s", tErr.Code, tErr.Message)
	}

	if err := xml.Unmarshal(body, &rss); err != nil {
		return rss, fmt.Errorf("decode prowlarr response: %w", err)
	}

	return rss, nil
}

// GetIndexers retrieves all configured indexers from the Prowlarr instance.
func (c *Client) GetIndexers(ctx context.Context) ([]Indexer, error) {
	endpoint, err := url.JoinPath(c.host, "api", "v1", "indexer")
	if err != nil {
		return nil, fmt.Errorf("build prowlarr endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build prowlarr request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errkind.FromTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errkind.FromHTTPStatus(resp.StatusCode, 0, string(body))
	}

	var payload []Indexer
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode prowlarr response: %w", err)
	}

	return payload, nil
}

// Test checks connectivity and authentication against the indexer list
// endpoint.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.GetIndexers(ctx)
	return err
}
