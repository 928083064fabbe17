// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torznab holds the XML types for Torznab search responses as
// returned by Prowlarr's newznab-compatible indexer endpoints.
package torznab

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Rss is the top-level Torznab search response.
type Rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel wraps the result items.
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item is one search result.
type Item struct {
	Title       string      `xml:"title"`
	GUID        string      `xml:"guid"`
	Link        string      `xml:"link"`
	Comments    string      `xml:"comments"`
	PubDate     string      `xml:"pubDate"`
	Size        int64       `xml:"size"`
	Category    []string    `xml:"category"`
	Attributes  []Attribute `xml:"attr"`
	Description string      `xml:"description"`
}

// Attribute is a torznab:attr key/value pair.
type Attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Attr returns the named torznab attribute value, or "".
func (i Item) Attr(name string) string {
	for _, a := range i.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return ""
}

// TmdbID returns the result's TMDB id attribute, or 0.
func (i Item) TmdbID() int64 {
	id, _ := strconv.ParseInt(i.Attr("tmdbid"), 10, 64)
	return id
}

// ImdbID returns the result's IMDB id in "tt0000000" form, or "".
func (i Item) ImdbID() string {
	raw := i.Attr("imdbid")
	if raw == "" {
		raw = i.Attr("imdb")
	}
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "tt") {
		return raw
	}
	// Some indexers emit the bare numeric id.
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return "tt" + raw
	}
	return raw
}

// Error is a Torznab error document, returned instead of an Rss body.
type Error struct {
	XMLName xml.Name `xml:"error"`
	Code    string   `xml:"code,attr"`
	Message string   `xml:"description,attr"`
}
