package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/dbx"
	"github.com/dmitrijs2005/clipsync/internal/server/models"
)

// ApiKeyRepository implements API key storage over a dbx.DBTX.
type ApiKeyRepository struct {
	db dbx.DBTX
}

func NewApiKeyRepository(db dbx.DBTX) *ApiKeyRepository {
	return &ApiKeyRepository{db: db}
}

func (r *ApiKeyRepository) Create(ctx context.Context, key *models.ApiKey) (*models.ApiKey, error) {
	query := `
		INSERT INTO api_keys (user_id, token, label, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		key.AccountID, key.Token, key.Label, key.ExpiresAt).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *ApiKeyRepository) GetByToken(ctx context.Context, token string) (*models.ApiKey, error) {
	query := `
		SELECT id, user_id, token, label, created_at, last_used_at, expires_at, revoked
		FROM api_keys
		WHERE token = $1
	`
	key := &models.ApiKey{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&key.ID, &key.AccountID, &key.Token, &key.Label,
		&key.CreatedAt, &key.LastUsedAt, &key.ExpiresAt, &key.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *ApiKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Revoke marks the key revoked. The account filter keeps one account from
// revoking another account's key by ID.
func (r *ApiKeyRepository) Revoke(ctx context.Context, accountID, id string) error {
	query := `UPDATE api_keys SET revoked = TRUE WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *ApiKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.ApiKey, error) {
	query := `
		SELECT id, user_id, token, label, created_at, last_used_at, expires_at, revoked
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ApiKey
	for rows.Next() {
		key := &models.ApiKey{}
		if err := rows.Scan(
			&key.ID, &key.AccountID, &key.Token, &key.Label,
			&key.CreatedAt, &key.LastUsedAt, &key.ExpiresAt, &key.Revoked,
		); err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
