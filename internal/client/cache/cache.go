package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/history"
)

// Event describes a cache change a UI layer may want to react to.
type Event int

const (
	EventEntryAdded Event = iota + 1
	EventEntryRemoved
	EventHistoryCleared
)

// Listener receives cache change notifications. The entry may be nil for
// removal and clear events.
type Listener func(event Event, entry *history.Entry)

// Store is the persistence the cache runs over: a history.Store that can
// also bound its size. Both history.MemoryStore and SQLiteStore qualify.
type Store interface {
	history.Store
	SetMaxItems(n int)
}

// Cache is the device-side clipboard history. It applies the same dedup and
// ordering rules as the relay through a shared engine, bounds its size, and
// notifies listeners on changes.
type Cache struct {
	engine *history.Engine
	store  Store

	mu        sync.RWMutex
	accountID string
	listeners []Listener
}

func New(store Store, maxItems int) *Cache {
	store.SetMaxItems(maxItems)
	return &Cache{
		engine: history.NewEngine(store, 0),
		store:  store,
	}
}

// SetAccount scopes the cache to the logged-in account.
func (c *Cache) SetAccount(accountID string) {
	c.mu.Lock()
	c.accountID = accountID
	c.mu.Unlock()
}

func (c *Cache) Account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

// Subscribe registers a change listener. Listeners run synchronously on the
// goroutine that mutated the cache.
func (c *Cache) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *Cache) notify(event Event, entry *history.Entry) {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l(event, entry)
	}
}

// Remember stores an entry, local copy or one received from the relay, and
// reports whether it deduplicated onto an existing record.
func (c *Cache) Remember(ctx context.Context, entry *history.Entry) (*history.Entry, bool, error) {
	entry.AccountID = c.Account()
	stored, deduplicated, err := c.engine.Push(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	c.notify(EventEntryAdded, stored)
	return stored, deduplicated, nil
}

func (c *Cache) List(ctx context.Context, limit, offset int, since time.Time) ([]*history.Entry, bool, int, error) {
	return c.engine.Pull(ctx, c.Account(), limit, offset, since)
}

func (c *Cache) Search(ctx context.Context, query string, limit int) ([]*history.Entry, int, bool, error) {
	return c.engine.Search(ctx, c.Account(), query, limit)
}

func (c *Cache) MoveToTop(ctx context.Context, id string) (*history.Entry, error) {
	return c.engine.MoveToTop(ctx, c.Account(), id)
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.engine.Delete(ctx, c.Account(), id); err != nil {
		return err
	}
	c.notify(EventEntryRemoved, nil)
	return nil
}

// Clear wipes the account's cached history, for logout or a remote wipe.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.engine.Clear(ctx, c.Account()); err != nil {
		return err
	}
	c.notify(EventHistoryCleared, nil)
	return nil
}

// SetMaxItems rebounds the cache.
func (c *Cache) SetMaxItems(n int) {
	c.store.SetMaxItems(n)
}
