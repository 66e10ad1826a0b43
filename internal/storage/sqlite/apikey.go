package sqlite

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

const (
	findAPIKeySQL = `SELECT id, key_hash, name, user_id, role
		FROM api_keys WHERE key_hash = ? AND active = 1`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, role)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = excluded.key_hash,
			name = excluded.name,
			user_id = excluded.user_id,
			role = excluded.role,
			active = 1`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository on SQLite.
type APIKeyRepository struct {
	q querier
}

// NewAPIKeyRepository returns an APIKeyRepository on db.
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{q: db}
}

// FindByHash returns the active key with the given HMAC hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		k    auth.APIKeyInfo
		role string
	)
	err := r.q.QueryRowContext(ctx, findAPIKeySQL, hash).Scan(&k.ID, &k.KeyHash, &k.Name, &k.UserID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	k.Role = auth.Role(role)
	return &k, nil
}

// Upsert creates or replaces an API key.
func (r *APIKeyRepository) Upsert(ctx context.Context, k *auth.APIKeyInfo) error {
	if _, err := r.q.ExecContext(ctx, upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.UserID, string(k.Role)); err != nil {
		return errors.Wrapf(err, "upsert api key %q", k.ID)
	}
	return nil
}
