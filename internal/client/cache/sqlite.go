// Package cache is the device-side clipboard history: a bounded,
// deduplicated mirror of the account history kept either in memory or in a
// local sqlite file, with change notifications for the UI layer.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/client/cache/migrations"
	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/dbx"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements history.Store over a local sqlite database so the
// cache survives restarts. Timestamps are stored as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB

	mu       sync.Mutex
	maxItems int
}

// OpenSQLiteStore opens (creating if needed) the cache database and runs
// pending migrations.
func OpenSQLiteStore(ctx context.Context, dsn string, maxItems int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &SQLiteStore{db: db, maxItems: maxItems}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SetMaxItems changes the cache bound and trims immediately, so shrinking
// the bound takes effect without waiting for the next upsert. 0 disables
// trimming.
func (s *SQLiteStore) SetMaxItems(n int) {
	s.mu.Lock()
	s.maxItems = n
	s.mu.Unlock()

	if n <= 0 {
		return
	}
	// Best effort; the next upsert enforces the bound again.
	_, _ = s.db.ExecContext(context.Background(),
		`DELETE FROM entries WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY account_id ORDER BY created_at DESC, id) AS rn
				FROM entries
			) WHERE rn <= ?)`, n)
}

func (s *SQLiteStore) limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxItems
}

// escapeLike neutralizes LIKE metacharacters so a user query matches them
// literally. The queries using it carry a matching ESCAPE clause.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *SQLiteStore) FindByHash(ctx context.Context, accountID, hash string) (*history.Entry, error) {
	query := `SELECT id, account_id, kind, content, preview, content_hash, device_label, created_at, synced_at, storage_key
		FROM entries WHERE account_id = ? AND content_hash = ?`
	return scanSQLiteEntry(s.db.QueryRowContext(ctx, query, accountID, hash))
}

// Upsert runs as one transaction: find-by-hash, insert or update, trim.
func (s *SQLiteStore) Upsert(ctx context.Context, e *history.Entry) (*history.Entry, bool, error) {
	stored := e.Clone()
	var deduplicated bool

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var existingID string
		var existingCreated int64
		err := tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM entries WHERE account_id = ? AND content_hash = ?`,
			e.AccountID, e.ContentHash).Scan(&existingID, &existingCreated)

		switch {
		case err == nil:
			deduplicated = true
			stored.ID = existingID
			// The later timestamp keeps the position, regardless of which
			// push arrived first.
			if prev := time.UnixMilli(existingCreated).UTC(); prev.After(stored.CreatedAt) {
				stored.CreatedAt = prev
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE entries SET kind = ?, content = ?, preview = ?, device_label = ?, created_at = ?, synced_at = ?, storage_key = ?
				 WHERE id = ?`,
				e.Kind, e.Content, e.Preview, e.DeviceLabel,
				stored.CreatedAt.UnixMilli(), e.SyncedAt.UnixMilli(), e.StorageKey, existingID)
			if err != nil {
				return fmt.Errorf("failed to update entry: %w", err)
			}

		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO entries (id, account_id, kind, content, preview, content_hash, device_label, created_at, synced_at, storage_key)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.AccountID, e.Kind, e.Content, e.Preview, e.ContentHash,
				e.DeviceLabel, e.CreatedAt.UnixMilli(), e.SyncedAt.UnixMilli(), e.StorageKey)
			if err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}

		default:
			return fmt.Errorf("failed to select entry: %w", err)
		}

		if limit := s.limit(); limit > 0 {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM entries WHERE account_id = ? AND id NOT IN (
					SELECT id FROM entries WHERE account_id = ? ORDER BY created_at DESC, id LIMIT ?)`,
				e.AccountID, e.AccountID, limit)
			if err != nil {
				return fmt.Errorf("failed to trim entries: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, deduplicated, nil
}

func (s *SQLiteStore) ListByAccount(ctx context.Context, accountID string, limit, offset int, since time.Time) ([]*history.Entry, int, error) {
	var sinceMillis int64
	if !since.IsZero() {
		sinceMillis = since.UnixMilli()
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE account_id = ? AND created_at > ?`,
		accountID, sinceMillis).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, kind, content, preview, content_hash, device_label, created_at, synced_at, storage_key
		 FROM entries WHERE account_id = ? AND created_at > ?
		 ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		accountID, sinceMillis, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select entries: %w", err)
	}
	result, err := scanSQLiteEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *SQLiteStore) SearchByPreview(ctx context.Context, accountID, query string, limit int) ([]*history.Entry, int, error) {
	if query == "" {
		return s.ListByAccount(ctx, accountID, limit, 0, time.Time{})
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE account_id = ? AND kind = ? AND LOWER(preview) LIKE ? ESCAPE '\'`,
		accountID, history.KindText, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count matches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, kind, content, preview, content_hash, device_label, created_at, synced_at, storage_key
		 FROM entries WHERE account_id = ? AND kind = ? AND LOWER(preview) LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, id LIMIT ?`,
		accountID, history.KindText, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select matches: %w", err)
	}
	result, err := scanSQLiteEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *SQLiteStore) Touch(ctx context.Context, accountID, id string, ts time.Time) (*history.Entry, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET created_at = ? WHERE account_id = ? AND id = ?`,
		ts.UnixMilli(), accountID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to touch entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return nil, common.ErrorNotFound
	}

	query := `SELECT id, account_id, kind, content, preview, content_hash, device_label, created_at, synced_at, storage_key
		FROM entries WHERE account_id = ? AND id = ?`
	return scanSQLiteEntry(s.db.QueryRowContext(ctx, query, accountID, id))
}

func (s *SQLiteStore) Delete(ctx context.Context, accountID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE account_id = ? AND id = ?`, accountID, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Clear(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

func scanSQLiteEntry(row *sql.Row) (*history.Entry, error) {
	e := &history.Entry{}
	var createdMillis, syncedMillis int64
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Content, &e.Preview,
		&e.ContentHash, &e.DeviceLabel, &createdMillis, &syncedMillis, &e.StorageKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	e.CreatedAt = time.UnixMilli(createdMillis).UTC()
	e.SyncedAt = time.UnixMilli(syncedMillis).UTC()
	return e, nil
}

func scanSQLiteEntries(rows *sql.Rows) ([]*history.Entry, error) {
	defer rows.Close()

	var result []*history.Entry
	for rows.Next() {
		e := &history.Entry{}
		var createdMillis, syncedMillis int64
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Content, &e.Preview,
			&e.ContentHash, &e.DeviceLabel, &createdMillis, &syncedMillis, &e.StorageKey,
		); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(createdMillis).UTC()
		e.SyncedAt = time.UnixMilli(syncedMillis).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
