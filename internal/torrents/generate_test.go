// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func TestPieceSize(t *testing.T) {
	t.Parallel()

	const (
		kib = int64(1024)
		mib = 1024 * kib
		gib = 1024 * mib
	)

	tests := []struct {
		size int64
		want int64
	}{
		{100 * mib, 512 * kib},
		{512 * mib, 512 * kib},
		{700 * mib, 1 * mib},
		{int64(1.5 * float64(gib)), 2 * mib},
		{3 * gib, 4 * mib},
		{6 * gib, 8 * mib},
		{40 * gib, 16 * mib},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PieceSize(tt.size), "size %d", tt.size)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	data, err := Generate(path, "Movie.2024.1080p.BluRay.x264-GRP.mkv", Options{
		AnnounceURL: "https://tracker.example/announce?passkey=secret",
		Source:      "TRK",
		PieceLength: 1024,
	})
	require.NoError(t, err)

	var mi struct {
		Announce string `bencode:"announce"`
		Info     struct {
			Name        string `bencode:"name"`
			Length      int64  `bencode:"length"`
			PieceLength int64  `bencode:"piece length"`
			Pieces      []byte `bencode:"pieces"`
			Private     int    `bencode:"private"`
			Source      string `bencode:"source"`
		} `bencode:"info"`
	}
	require.NoError(t, bencode.DecodeBytes(data, &mi))

	assert.Equal(t, "https://tracker.example/announce?passkey=secret", mi.Announce)
	assert.Equal(t, "Movie.2024.1080p.BluRay.x264-GRP.mkv", mi.Info.Name)
	assert.EqualValues(t, 3000, mi.Info.Length)
	assert.EqualValues(t, 1024, mi.Info.PieceLength)
	assert.Equal(t, 1, mi.Info.Private)
	assert.Equal(t, "TRK", mi.Info.Source)

	// 3000 bytes at 1024-byte pieces is 3 pieces, one sha1 each.
	require.Len(t, mi.Info.Pieces, 3*sha1.Size)

	// The final short piece hashes only the remaining bytes.
	last := sha1.Sum(payload[2048:])
	assert.Equal(t, last[:], mi.Info.Pieces[2*sha1.Size:])
}

func TestGenerate_DifferentSourceChangesInfo(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(path, []byte("payload-bytes"), 0o644))

	a, err := Generate(path, "movie.mkv", Options{AnnounceURL: "https://a.example/announce", Source: "AAA"})
	require.NoError(t, err)
	b, err := Generate(path, "movie.mkv", Options{AnnounceURL: "https://a.example/announce", Source: "BBB"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestGenerate_Validation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.mkv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Generate(path, "empty.mkv", Options{AnnounceURL: "https://a.example/announce"})
	assert.Error(t, err)

	_, err = Generate(path, "empty.mkv", Options{})
	assert.Error(t, err)

	_, err = Generate(filepath.Join(t.TempDir(), "missing.mkv"), "x", Options{AnnounceURL: "https://a.example/announce"})
	assert.Error(t, err)
}
