// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/seedarr/seedarr/internal/dbinterface"
)

var ErrTrackerNotFound = errors.New("tracker not found")

// Tracker is a stored tracker configuration: the declarative schema blob
// plus runtime credentials and the enabled flag. Credentials are encrypted
// at rest with AES-GCM.
type Tracker struct {
	ID               int64     `json:"id"`
	Slug             string    `json:"slug"`
	Name             string    `json:"name"`
	Enabled          bool      `json:"enabled"`
	SchemaYAML       string    `json:"-"`
	APIKeyEncrypted  string    `json:"-"`
	PasskeyEncrypted string    `json:"-"`
	SkipOnDuplicate  bool      `json:"skipOnDuplicate"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TrackerStore manages tracker rows.
type TrackerStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

// NewTrackerStore creates a TrackerStore. The encryption key must be 32
// bytes (AES-256).
func NewTrackerStore(db dbinterface.Querier, encryptionKey []byte) (*TrackerStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	return &TrackerStore{db: db, encryptionKey: encryptionKey}, nil
}

func (s *TrackerStore) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *TrackerStore) decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("malformed ciphertext")
	}

	nonce, rest := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, rest, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Credentials returns the decrypted API key and passkey.
func (s *TrackerStore) Credentials(t *Tracker) (apiKey, passkey string, err error) {
	apiKey, err = s.decrypt(t.APIKeyEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("decrypt api key: %w", err)
	}
	passkey, err = s.decrypt(t.PasskeyEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("decrypt passkey: %w", err)
	}
	return apiKey, passkey, nil
}

// Create inserts a tracker with its schema and credentials.
func (s *TrackerStore) Create(ctx context.Context, slug, name, schemaYAML, apiKey, passkey string, enabled bool) (*Tracker, error) {
	if slug == "" {
		return nil, errors.New("slug cannot be empty")
	}
	if schemaYAML == "" {
		return nil, errors.New("schema cannot be empty")
	}

	encKey, err := s.encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}
	encPasskey, err := s.encrypt(passkey)
	if err != nil {
		return nil, fmt.Errorf("encrypt passkey: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trackers (slug, name, enabled, schema_yaml, api_key_encrypted, passkey_encrypted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, slug, name, enabled, schemaYAML, nullable(encKey), nullable(encPasskey))
	if err != nil {
		return nil, fmt.Errorf("create tracker: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

const trackerColumns = `
	id, slug, name, enabled, schema_yaml, api_key_encrypted, passkey_encrypted,
	skip_on_duplicate, created_at, updated_at
`

func scanTracker(row interface{ Scan(...any) error }) (*Tracker, error) {
	var (
		t       Tracker
		apiKey  sql.NullString
		passkey sql.NullString
	)
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Enabled, &t.SchemaYAML, &apiKey, &passkey, &t.SkipOnDuplicate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.APIKeyEncrypted = apiKey.String
	t.PasskeyEncrypted = passkey.String
	return &t, nil
}

// Get retrieves a tracker by id.
func (s *TrackerStore) Get(ctx context.Context, id int64) (*Tracker, error) {
	t, err := scanTracker(s.db.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracker: %w", err)
	}
	return t, nil
}

// GetBySlug retrieves a tracker by slug.
func (s *TrackerStore) GetBySlug(ctx context.Context, slug string) (*Tracker, error) {
	t, err := scanTracker(s.db.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracker by slug: %w", err)
	}
	return t, nil
}

// ListEnabled returns the enabled trackers ordered by slug.
func (s *TrackerStore) ListEnabled(ctx context.Context) ([]*Tracker, error) {
	return s.list(ctx, true)
}

// List returns all trackers ordered by slug.
func (s *TrackerStore) List(ctx context.Context) ([]*Tracker, error) {
	return s.list(ctx, false)
}

func (s *TrackerStore) list(ctx context.Context, enabledOnly bool) ([]*Tracker, error) {
	query := `SELECT ` + trackerColumns + ` FROM trackers`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY slug ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	defer rows.Close()

	var trackers []*Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, t)
	}
	return trackers, rows.Err()
}

// SetEnabled flips the enabled flag.
func (s *TrackerStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trackers SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("set tracker enabled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTrackerNotFound
	}
	return nil
}

// UpdateSchema replaces the schema blob.
func (s *TrackerStore) UpdateSchema(ctx context.Context, id int64, schemaYAML string) error {
	if schemaYAML == "" {
		return errors.New("schema cannot be empty")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE trackers SET schema_yaml = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, schemaYAML, id)
	if err != nil {
		return fmt.Errorf("update tracker schema: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTrackerNotFound
	}
	return nil
}

// UpdateCredentials re-encrypts and stores new credentials.
func (s *TrackerStore) UpdateCredentials(ctx context.Context, id int64, apiKey, passkey string) error {
	encKey, err := s.encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	encPasskey, err := s.encrypt(passkey)
	if err != nil {
		return fmt.Errorf("encrypt passkey: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE trackers SET api_key_encrypted = ?, passkey_encrypted = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, nullable(encKey), nullable(encPasskey), id)
	if err != nil {
		return fmt.Errorf("update tracker credentials: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTrackerNotFound
	}
	return nil
}
