package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/dbx"
	"github.com/dmitrijs2005/clipsync/internal/history"
)

// EntryRepository implements history.Store over a dbx.DBTX. Dedup by
// (user_id, content_hash) is delegated to the database: the upsert is a
// single atomic statement, so two simultaneous pushes of the same content
// cannot produce two rows.
type EntryRepository struct {
	db dbx.DBTX
}

func NewEntryRepository(db dbx.DBTX) *EntryRepository {
	return &EntryRepository{db: db}
}

const entryColumns = `id, user_id, kind, content, preview, content_hash, device_label, created_at, synced_at, storage_key`

// escapeLike neutralizes LIKE metacharacters so a user query matches them
// literally. The queries using it carry a matching ESCAPE clause.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *EntryRepository) FindByHash(ctx context.Context, accountID, hash string) (*history.Entry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE user_id = $1 AND content_hash = $2
	`
	return scanEntry(r.db.QueryRowContext(ctx, query, accountID, hash))
}

// Upsert inserts the entry or, when the account already holds the same
// content hash, bumps the existing row in place. The existing row keeps
// its ID, and the later created_at wins the position regardless of which
// push arrived first; xmax <> 0 reports whether the row pre-existed.
func (r *EntryRepository) Upsert(ctx context.Context, e *history.Entry) (*history.Entry, bool, error) {
	query := `
		INSERT INTO entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, content_hash)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			content = EXCLUDED.content,
			preview = EXCLUDED.preview,
			device_label = EXCLUDED.device_label,
			created_at = GREATEST(entries.created_at, EXCLUDED.created_at),
			synced_at = EXCLUDED.synced_at,
			storage_key = EXCLUDED.storage_key
		RETURNING id, created_at, (xmax <> 0)
	`
	stored := e.Clone()
	var deduplicated bool
	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.AccountID, e.Kind, e.Content, e.Preview, e.ContentHash,
		e.DeviceLabel, e.CreatedAt, e.SyncedAt, e.StorageKey).
		Scan(&stored.ID, &stored.CreatedAt, &deduplicated)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return stored, deduplicated, nil
}

func (r *EntryRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int, since time.Time) ([]*history.Entry, int, error) {
	countQuery := `
		SELECT COUNT(*) FROM entries
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at > $2)
	`
	var sinceArg any
	if !since.IsZero() {
		sinceArg = since
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, accountID, sinceArg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at > $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, sinceArg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	result, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *EntryRepository) SearchByPreview(ctx context.Context, accountID, query string, limit int) ([]*history.Entry, int, error) {
	if query == "" {
		return r.ListByAccount(ctx, accountID, limit, 0, time.Time{})
	}

	pattern := "%" + escapeLike(query) + "%"

	countQuery := `
		SELECT COUNT(*) FROM entries
		WHERE user_id = $1 AND kind = $2 AND preview ILIKE $3 ESCAPE '\'
	`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, accountID, history.KindText, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	selectQuery := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE user_id = $1 AND kind = $2 AND preview ILIKE $3 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, selectQuery, accountID, history.KindText, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	result, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *EntryRepository) Touch(ctx context.Context, accountID, id string, ts time.Time) (*history.Entry, error) {
	query := `
		UPDATE entries SET created_at = $3
		WHERE user_id = $1 AND id = $2
		RETURNING ` + entryColumns + `
	`
	return scanEntry(r.db.QueryRowContext(ctx, query, accountID, id, ts))
}

func (r *EntryRepository) Delete(ctx context.Context, accountID, id string) error {
	query := `DELETE FROM entries WHERE user_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, accountID, id)
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

func (r *EntryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM entries WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *EntryRepository) Clear(ctx context.Context, accountID string) error {
	query := `DELETE FROM entries WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanEntry(row *sql.Row) (*history.Entry, error) {
	e := &history.Entry{}
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Content, &e.Preview,
		&e.ContentHash, &e.DeviceLabel, &e.CreatedAt, &e.SyncedAt, &e.StorageKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]*history.Entry, error) {
	defer rows.Close()

	var result []*history.Entry
	for rows.Next() {
		e := &history.Entry{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Content, &e.Preview,
			&e.ContentHash, &e.DeviceLabel, &e.CreatedAt, &e.SyncedAt, &e.StorageKey,
		); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
