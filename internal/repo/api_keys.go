package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"caseline/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, q Queryer, key domain.APIKey) error {
	_, err := exec(ctx, q, `INSERT INTO api_keys(id,person_id,name,key_hash,roles,created_at,created_by) VALUES (?,?,?,?,?,?,?)`,
		key.ID, key.PersonID, nullableStringPtr(key.Name), key.KeyHash, key.Roles, key.CreatedAt, key.CreatedBy)
	return err
}

// GetActiveAPIKeyByHash returns a non-revoked key by its hashed value.
func (r Repo) GetActiveAPIKeyByHash(ctx context.Context, q Queryer, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	err := get(ctx, q, &key, `SELECT id,person_id,name,key_hash,roles,created_at,created_by,revoked_at FROM api_keys WHERE key_hash=? AND revoked_at IS NULL`, hash)
	return key, err
}

// ListAPIKeys returns API keys, optionally filtered by person.
func (r Repo) ListAPIKeys(ctx context.Context, q Queryer, personID string) ([]domain.APIKey, error) {
	query := `SELECT id,person_id,name,key_hash,roles,created_at,created_by,revoked_at FROM api_keys`
	var args []any
	if personID != "" {
		query += ` WHERE person_id=?`
		args = append(args, personID)
	}
	query += ` ORDER BY created_at DESC, id`
	keys := []domain.APIKey{}
	if err := selectAll(ctx, q, &keys, query, args...); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r Repo) RevokeAPIKey(ctx context.Context, q Queryer, id, at string) error {
	return execOne(ctx, q, `UPDATE api_keys SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, at, id)
}
