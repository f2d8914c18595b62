package history

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/hashx"
	"github.com/google/uuid"
)

const (
	// DefaultPullLimit bounds a pull that does not specify its own limit.
	DefaultPullLimit = 100

	// DefaultMaxContentBytes is the default per-entry content ceiling.
	DefaultMaxContentBytes = 5 * 1024 * 1024
)

// Engine maintains the ordered, deduplicated clipboard history for accounts
// over a Store. Content identity, not push identity, determines record
// identity: pushing content whose hash already exists bumps the existing
// record instead of inserting a new one.
type Engine struct {
	store           Store
	maxContentBytes int
	now             func() time.Time
}

func NewEngine(store Store, maxContentBytes int) *Engine {
	if maxContentBytes <= 0 {
		maxContentBytes = DefaultMaxContentBytes
	}
	return &Engine{store: store, maxContentBytes: maxContentBytes, now: time.Now}
}

// Push validates and stores an entry. Missing hash, preview, ID, and
// timestamps are derived here so callers can push raw content. The returned
// bool reports deduplication: true means the push matched an existing
// content hash and the stored entry keeps its original identity.
func (e *Engine) Push(ctx context.Context, entry *Entry) (*Entry, bool, error) {
	if len(entry.Content) == 0 && entry.StorageKey == "" {
		return nil, false, fmt.Errorf("%w: empty content", common.ErrorValidation)
	}
	if len(entry.Content) > e.maxContentBytes {
		return nil, false, fmt.Errorf("%w: content is %d bytes, limit %d",
			common.ErrorValidation, len(entry.Content), e.maxContentBytes)
	}

	if entry.ContentHash == "" {
		entry.ContentHash = hashx.ContentHash(entry.Content)
	}
	if len(entry.ContentHash) > 64 {
		return nil, false, fmt.Errorf("%w: content hash longer than 64 chars", common.ErrorValidation)
	}
	if entry.Preview == "" {
		switch entry.Kind {
		case KindText:
			entry.Preview = hashx.TextPreview(entry.Content)
		case KindImage:
			entry.Preview = hashx.BinaryPreview("Image", len(entry.Content))
		default:
			entry.Preview = hashx.BinaryPreview("File", len(entry.Content))
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	now := e.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.SyncedAt = now

	stored, deduplicated, err := e.store.Upsert(ctx, entry)
	if err != nil {
		return nil, false, fmt.Errorf("upsert entry: %w", err)
	}
	return stored, deduplicated, nil
}

// Pull returns up to limit entries most-recent-first, skipping offset
// entries. A nonzero since restricts to entries created after it. hasMore
// reports truncation; total is the full count matching the since filter.
func (e *Engine) Pull(ctx context.Context, accountID string, limit, offset int, since time.Time) (entries []*Entry, hasMore bool, total int, err error) {
	if limit <= 0 {
		limit = DefaultPullLimit
	}
	entries, total, err = e.store.ListByAccount(ctx, accountID, limit, offset, since)
	if err != nil {
		return nil, false, 0, fmt.Errorf("list entries: %w", err)
	}
	hasMore = offset+len(entries) < total
	return entries, hasMore, total, nil
}

// Search matches query as a case-insensitive substring of the preview of
// text-kind entries. An empty query matches everything ("show all").
func (e *Engine) Search(ctx context.Context, accountID, query string, limit int) (entries []*Entry, totalMatches int, hasMore bool, err error) {
	if limit <= 0 {
		limit = DefaultPullLimit
	}
	entries, totalMatches, err = e.store.SearchByPreview(ctx, accountID, query, limit)
	if err != nil {
		return nil, 0, false, fmt.Errorf("search entries: %w", err)
	}
	return entries, totalMatches, totalMatches > len(entries), nil
}

// MoveToTop bumps the entry's timestamp to now without changing content,
// used when a device re-selects an existing item.
func (e *Engine) MoveToTop(ctx context.Context, accountID, id string) (*Entry, error) {
	entry, err := e.store.Touch(ctx, accountID, id, e.now().UTC())
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes the entry permanently.
func (e *Engine) Delete(ctx context.Context, accountID, id string) error {
	return e.store.Delete(ctx, accountID, id)
}

// CleanupOlderThan removes entries older than retentionDays and reports how
// many were deleted. Intended for a periodic schedule on the relay.
func (e *Engine) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := e.now().UTC().AddDate(0, 0, -retentionDays)
	n, err := e.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention cleanup: %w", err)
	}
	return n, nil
}

// Clear removes the whole history of one account.
func (e *Engine) Clear(ctx context.Context, accountID string) error {
	return e.store.Clear(ctx, accountID)
}
