// Package apikey provides SHA-256-based API key validation against the SQL
// store. Raw keys are generated with crypto/rand, hashed before storage,
// and validated by comparing the hash of the presented key with the stored
// hash. Keys can be created, revoked, and listed.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jxskiss/base62"

	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo holds metadata about a validated API key.
type KeyInfo struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	RateLimit int        `db:"rate_limit" json:"rate_limit"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// Validator validates API keys against the api_keys table.
type Validator struct {
	db     *database.DB
	logger *slog.Logger
}

// NewValidator creates a new API key validator over an opened, migrated
// database.
func NewValidator(db *database.DB) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Validate checks a raw API key against the database.
// Returns KeyInfo on success, or ErrInvalidKey / ErrExpiredKey on failure.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var info KeyInfo
	err := v.db.GetContext(ctx, &info, v.db.Rebind(
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = ? AND is_active = ?`),
		HashKey(rawKey), true,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredKey
	}
	return &info, nil
}

// CreateKey generates a new API key, stores its hash, and returns the raw key.
// The raw key is returned only once and cannot be retrieved again.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *KeyInfo, error) {
	rawKey := generateRawKey()
	info := &KeyInfo{
		ID:        newID(),
		Name:      name,
		RateLimit: rateLimit,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	_, err := v.db.ExecContext(ctx, v.db.Rebind(
		`INSERT INTO api_keys (id, key_hash, name, rate_limit, is_active, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		info.ID, HashKey(rawKey), info.Name, info.RateLimit, info.IsActive, info.CreatedAt, info.ExpiresAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "id", info.ID, "name", name, "rate_limit", rateLimit)
	return rawKey, info, nil
}

// RevokeKey deactivates an API key so it can no longer be used.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	return v.revoke(ctx, "key_hash", HashKey(rawKey))
}

// RevokeID deactivates the key with the given id.
func (v *Validator) RevokeID(ctx context.Context, id string) error {
	return v.revoke(ctx, "id", id)
}

func (v *Validator) revoke(ctx context.Context, column, value string) error {
	result, err := v.db.ExecContext(ctx, v.db.Rebind(
		`UPDATE api_keys SET is_active = ? WHERE `+column+` = ? AND is_active = ?`),
		false, value, true,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidKey
	}

	v.logger.Info("api key revoked", "by", column)
	return nil
}

// ListKeys returns all active API keys (without the raw key / hash).
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	keys := []KeyInfo{}
	err := v.db.SelectContext(ctx, &keys, v.db.Rebind(
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys WHERE is_active = ? ORDER BY created_at DESC`), true)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

// generateRawKey returns a cryptographically random 32-byte hex-encoded string
// suitable for use as an API key.
func generateRawKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func newID() string {
	b := make([]byte, 9)
	_, _ = rand.Read(b)
	return "key_" + base62.EncodeToString(b)
}
