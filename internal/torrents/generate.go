// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torrents builds private-tracker metainfo files for upload. Each
// tracker gets its own torrent since announce URL and source flag differ
// per site and both change the infohash.
package torrents

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/bencode"

	"github.com/seedarr/seedarr/internal/errkind"
)

// Options tunes one generated torrent.
type Options struct {
	// AnnounceURL is the tracker announce endpoint, passkey included.
	AnnounceURL string
	// Source is the tracker's source flag, making the infohash unique per
	// site so cross-tracker snatches cannot collide.
	Source string
	// Comment is an optional free-form comment.
	Comment string
	// CreatedBy identifies the generator.
	CreatedBy string
	// PieceLength overrides the automatic piece size (bytes). Zero selects
	// from the file size.
	PieceLength int64
}

type infoDict struct {
	Name        string `bencode:"name"`
	Length      int64  `bencode:"length"`
	PieceLength int64  `bencode:"piece length"`
	Pieces      []byte `bencode:"pieces"`
	Private     int    `bencode:"private"`
	Source      string `bencode:"source,omitempty"`
}

type metainfo struct {
	Announce     string   `bencode:"announce"`
	Comment      string   `bencode:"comment,omitempty"`
	CreatedBy    string   `bencode:"created by,omitempty"`
	CreationDate int64    `bencode:"creation date"`
	Info         infoDict `bencode:"info"`
}

// PieceSize selects the piece length for a payload of totalSize bytes.
// The ladder targets 1000-2000 pieces with the usual 512 KiB - 16 MiB
// bounds private trackers expect.
func PieceSize(totalSize int64) int64 {
	const (
		kib = int64(1024)
		mib = 1024 * kib
		gib = 1024 * mib
	)

	switch {
	case totalSize <= 512*mib:
		return 512 * kib
	case totalSize <= 1*gib:
		return 1 * mib
	case totalSize <= 2*gib:
		return 2 * mib
	case totalSize <= 4*gib:
		return 4 * mib
	case totalSize <= 8*gib:
		return 8 * mib
	default:
		return 16 * mib
	}
}

// Generate builds the metainfo for a single-file payload and returns the
// bencoded bytes. name is the file name embedded in the torrent, normally
// the release name plus extension.
func Generate(filePath, name string, opts Options) ([]byte, error) {
	if opts.AnnounceURL == "" {
		return nil, errkind.New(errkind.KindValidation, "announce url is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindValidation, err, "open payload %s", filePath)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat payload: %w", err)
	}
	if stat.Size() == 0 {
		return nil, errkind.New(errkind.KindValidation, "payload %s is empty", filePath)
	}

	pieceLength := opts.PieceLength
	if pieceLength <= 0 {
		pieceLength = PieceSize(stat.Size())
	}

	pieces, err := hashPieces(f, pieceLength)
	if err != nil {
		return nil, fmt.Errorf("hash pieces: %w", err)
	}

	createdBy := opts.CreatedBy
	if createdBy == "" {
		createdBy = "seedarr"
	}

	mi := metainfo{
		Announce:     opts.AnnounceURL,
		Comment:      opts.Comment,
		CreatedBy:    createdBy,
		CreationDate: time.Now().Unix(),
		Info: infoDict{
			Name:        name,
			Length:      stat.Size(),
			PieceLength: pieceLength,
			Pieces:      pieces,
			Private:     1,
			Source:      opts.Source,
		},
	}

	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(&mi); err != nil {
		return nil, fmt.Errorf("encode metainfo: %w", err)
	}
	return buf.Bytes(), nil
}

func hashPieces(r io.Reader, pieceLength int64) ([]byte, error) {
	var pieces []byte
	buf := make([]byte, pieceLength)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha1.Sum(buf[:n])
			pieces = append(pieces, sum[:]...)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return pieces, nil
}
