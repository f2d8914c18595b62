package history

import (
	"context"
	"time"
)

// Store is the persistence collaborator behind the engine. Implementations
// must scope every lookup to the given account: an entry belonging to a
// different account behaves exactly like a missing one
// (common.ErrorNotFound), never leaking cross-account existence.
type Store interface {
	// FindByHash returns the entry with the given content hash, or
	// common.ErrorNotFound.
	FindByHash(ctx context.Context, accountID, hash string) (*Entry, error)

	// Upsert inserts the entry, or — if an entry with the same content hash
	// already exists for the account — updates that entry's CreatedAt,
	// preview and device metadata in place. The check-then-write is a single
	// atomic unit per (account, hash): two simultaneous pushes of the same
	// new content must not produce two records. Returns the stored entry and
	// whether it was deduplicated onto an existing record.
	Upsert(ctx context.Context, e *Entry) (*Entry, bool, error)

	// ListByAccount returns entries ordered by CreatedAt descending. A
	// nonzero since restricts results to entries created after it; offset
	// skips from the top. The second result is the total count matching the
	// since filter, regardless of limit and offset.
	ListByAccount(ctx context.Context, accountID string, limit, offset int, since time.Time) ([]*Entry, int, error)

	// SearchByPreview returns text-kind entries whose preview contains query
	// case-insensitively, ordered like ListByAccount, plus the total match
	// count. An empty query matches every entry of any kind.
	SearchByPreview(ctx context.Context, accountID, query string, limit int) ([]*Entry, int, error)

	// Touch bumps the entry's CreatedAt to ts and returns the updated entry.
	Touch(ctx context.Context, accountID, id string, ts time.Time) (*Entry, error)

	// Delete removes the entry permanently.
	Delete(ctx context.Context, accountID, id string) error

	// DeleteOlderThan permanently removes entries of every account created
	// before cutoff, returning how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Clear removes every entry of the account.
	Clear(ctx context.Context, accountID string) error
}
