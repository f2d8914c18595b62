package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
)

// MemoryStore is an in-memory Store. With maxItems > 0 it behaves as the
// bounded device cache: after any insertion it trims from the tail (oldest
// by current order) until size <= maxItems, and shrinking maxItems trims
// immediately. maxItems == 0 means unbounded.
//
// All methods are safe for concurrent use; the mutex makes the dedup
// check-then-upsert atomic per store.
type MemoryStore struct {
	mu       sync.Mutex
	maxItems int
	entries  []*Entry // ordered by CreatedAt descending
}

func NewMemoryStore(maxItems int) *MemoryStore {
	return &MemoryStore{maxItems: maxItems}
}

// SetMaxItems changes the bound and trims immediately if it shrank.
func (s *MemoryStore) SetMaxItems(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxItems = n
	s.trimLocked()
}

// Len returns the number of stored entries across all accounts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].CreatedAt.After(s.entries[j].CreatedAt)
	})
}

func (s *MemoryStore) trimLocked() {
	if s.maxItems <= 0 {
		return
	}
	if len(s.entries) > s.maxItems {
		s.entries = s.entries[:s.maxItems]
	}
}

func (s *MemoryStore) findLocked(accountID string, match func(*Entry) bool) (int, *Entry) {
	for i, e := range s.entries {
		if e.AccountID == accountID && match(e) {
			return i, e
		}
	}
	return -1, nil
}

func (s *MemoryStore) FindByHash(_ context.Context, accountID, hash string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, e := s.findLocked(accountID, func(e *Entry) bool { return e.ContentHash == hash })
	if e == nil {
		return nil, common.ErrorNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Upsert(_ context.Context, entry *Entry) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existing := s.findLocked(entry.AccountID, func(e *Entry) bool {
		return e.ContentHash == entry.ContentHash
	})
	if existing != nil {
		// Content identity wins: keep the record's ID, bump everything else.
		// The later timestamp keeps the position, regardless of which push
		// arrived first.
		if entry.CreatedAt.After(existing.CreatedAt) {
			existing.CreatedAt = entry.CreatedAt
		}
		existing.SyncedAt = entry.SyncedAt
		existing.Preview = entry.Preview
		existing.DeviceLabel = entry.DeviceLabel
		existing.Kind = entry.Kind
		existing.StorageKey = entry.StorageKey
		if len(entry.Content) > 0 {
			existing.Content = append([]byte(nil), entry.Content...)
		}
		s.sortLocked()
		return existing.Clone(), true, nil
	}

	s.entries = append(s.entries, entry.Clone())
	s.sortLocked()
	s.trimLocked()
	return entry.Clone(), false, nil
}

func (s *MemoryStore) ListByAccount(_ context.Context, accountID string, limit, offset int, since time.Time) ([]*Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Entry
	for _, e := range s.entries {
		if e.AccountID != accountID {
			continue
		}
		if !since.IsZero() && !e.CreatedAt.After(since) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*Entry, len(matched))
	for i, e := range matched {
		out[i] = e.Clone()
	}
	return out, total, nil
}

func (s *MemoryStore) SearchByPreview(_ context.Context, accountID, query string, limit int) ([]*Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)

	var matched []*Entry
	for _, e := range s.entries {
		if e.AccountID != accountID {
			continue
		}
		if query == "" {
			matched = append(matched, e)
			continue
		}
		if e.Kind != KindText {
			continue
		}
		if strings.Contains(strings.ToLower(e.Preview), needle) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*Entry, len(matched))
	for i, e := range matched {
		out[i] = e.Clone()
	}
	return out, total, nil
}

func (s *MemoryStore) Touch(_ context.Context, accountID, id string, ts time.Time) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, e := s.findLocked(accountID, func(e *Entry) bool { return e.ID == id })
	if e == nil {
		return nil, common.ErrorNotFound
	}
	e.CreatedAt = ts
	s.sortLocked()
	return e.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, e := s.findLocked(accountID, func(e *Entry) bool { return e.ID == id })
	if e == nil {
		return common.ErrorNotFound
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

func (s *MemoryStore) Clear(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.AccountID != accountID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}
