// Package history implements the clipboard history synchronization engine:
// an ordered, deduplicated, account-scoped set of clipboard entries. The
// relay runs it over durable storage; devices run it over a bounded
// in-memory (or sqlite-backed) cache. The contract is identical on both
// sides, only the Store differs.
package history

import (
	"time"

	"github.com/dmitrijs2005/clipsync/internal/protocol"
)

// Kind classifies clipboard content. The numeric values match the wire
// representation.
type Kind int

const (
	KindText  Kind = 1
	KindImage Kind = 2
	KindFile  Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Entry is one clipboard item. ContentHash defines its identity within an
// account: a second push of identical content bumps CreatedAt on the
// existing record instead of creating a new one.
type Entry struct {
	ID          string
	AccountID   string
	Kind        Kind
	Content     []byte
	Preview     string
	ContentHash string
	DeviceLabel string
	CreatedAt   time.Time
	SyncedAt    time.Time
	// StorageKey points at externally stored content (large binary
	// payloads); when set, Content may be empty.
	StorageKey string
}

// Clone returns a shallow copy with its own content buffer.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Content != nil {
		c.Content = append([]byte(nil), e.Content...)
	}
	return &c
}

// ToWire converts a domain entry to its wire representation.
func ToWire(e *Entry) protocol.Entry {
	w := protocol.Entry{
		ID:          e.ID,
		Kind:        protocol.EntryKind(e.Kind),
		Content:     e.Content,
		Preview:     e.Preview,
		ContentHash: e.ContentHash,
		DeviceLabel: e.DeviceLabel,
		StorageKey:  e.StorageKey,
	}
	if !e.CreatedAt.IsZero() {
		w.CreatedAtMillis = e.CreatedAt.UnixMilli()
	}
	if !e.SyncedAt.IsZero() {
		w.SyncedAtMillis = e.SyncedAt.UnixMilli()
	}
	return w
}

// FromWire converts a wire entry to a domain entry owned by accountID.
func FromWire(w *protocol.Entry, accountID string) *Entry {
	e := &Entry{
		ID:          w.ID,
		AccountID:   accountID,
		Kind:        Kind(w.Kind),
		Content:     w.Content,
		Preview:     w.Preview,
		ContentHash: w.ContentHash,
		DeviceLabel: w.DeviceLabel,
		StorageKey:  w.StorageKey,
	}
	if w.CreatedAtMillis != 0 {
		e.CreatedAt = time.UnixMilli(w.CreatedAtMillis).UTC()
	}
	if w.SyncedAtMillis != 0 {
		e.SyncedAt = time.UnixMilli(w.SyncedAtMillis).UTC()
	}
	return e
}
