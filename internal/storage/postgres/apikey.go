package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

const (
	findAPIKeySQL = `SELECT id, key_hash, name, user_id, role
		FROM api_keys WHERE key_hash = $1 AND active`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			user_id = EXCLUDED.user_id,
			role = EXCLUDED.role,
			active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	q querier
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{q: pool}
}

// FindByHash returns the active key with the given HMAC hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	rows, err := r.q.Query(ctx, findAPIKeySQL, hash)
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	info, err := collectOne(rows, scanAPIKey, auth.ErrUnauthorized)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Upsert creates or replaces an API key.
func (r *APIKeyRepository) Upsert(ctx context.Context, k *auth.APIKeyInfo) error {
	if _, err := r.q.Exec(ctx, upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.UserID, string(k.Role)); err != nil {
		return errors.Wrapf(err, "upsert api key %q", k.ID)
	}
	return nil
}

func scanAPIKey(row pgx.CollectableRow) (auth.APIKeyInfo, error) {
	var (
		k    auth.APIKeyInfo
		role string
	)
	if err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.UserID, &role); err != nil {
		return k, err
	}
	k.Role = auth.Role(role)
	return k, nil
}
