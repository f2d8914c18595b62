package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
)

const (
	// listPageSize caps how many entries list and search print at once.
	listPageSize = 20
	// syncPageSize is the page size used when hydrating the cache from the relay.
	syncPageSize = 100
)

func formatEntry(e *history.Entry) string {
	return fmt.Sprintf("%s  %-5s  %s  %s",
		e.ID, e.Kind, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Preview)
}

// Push collects clipboard text and sends it to the relay. The relay's
// canonical copy (with server-assigned ID and timestamps) is what lands in
// the local cache, so both sides agree on identity. If the relay is
// unreachable the entry is kept locally and uploaded by a later sync.
func (a *App) Push(ctx context.Context) error {
	text, err := GetMultiline(a.reader, "Enter clipboard text (double Enter to finish):", os.Stdout)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if text == "" {
		fmt.Println("Nothing to push")
		return nil
	}

	wire := protocol.Entry{
		Kind:            protocol.EntryKindText,
		Content:         []byte(text),
		DeviceLabel:     a.config.DeviceName,
		CreatedAtMillis: time.Now().UnixMilli(),
	}

	ack, err := a.conn.Push(ctx, wire)
	if err != nil {
		log.Printf("error pushing to relay: %s (keeping entry locally)", err.Error())
		entry := history.FromWire(&wire, a.cache.Account())
		if _, _, cerr := a.cache.Remember(ctx, entry); cerr != nil {
			log.Printf("error caching entry: %s", cerr.Error())
			return cerr
		}
		return err
	}

	entry := history.FromWire(&ack.Entry, a.cache.Account())
	if _, _, err := a.cache.Remember(ctx, entry); err != nil {
		log.Printf("error caching entry: %s", err.Error())
		return err
	}

	if ack.Deduplicated {
		fmt.Println("Already in history, moved to top")
	} else {
		fmt.Println("Pushed:", entry.Preview)
	}
	return nil
}

// List prints the most recent history entries from the local cache.
func (a *App) List(ctx context.Context) error {
	entries, hasMore, total, err := a.cache.List(ctx, listPageSize, 0, time.Time{})
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	for _, e := range entries {
		fmt.Println(formatEntry(e))
	}
	if hasMore {
		fmt.Printf("...and %d more\n", total-len(entries))
	}
	return nil
}

// Search prompts for a query and prints matching text entries from the
// local cache. An empty query matches everything.
func (a *App) Search(ctx context.Context) error {
	query, err := getSimpleText(a.reader, "Enter search text", os.Stdout)
	if err != nil {
		return err
	}

	entries, totalMatches, hasMore, err := a.cache.Search(ctx, query, listPageSize)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	for _, e := range entries {
		fmt.Println(formatEntry(e))
	}
	if hasMore {
		fmt.Printf("...and %d more matches\n", totalMatches-len(entries))
	}
	return nil
}

// Top prompts for an entry ID and moves it to the head of the history, on
// the relay and in the local cache. When the relay is offline only the
// local cache is updated.
func (a *App) Top(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter entry id to move to top", os.Stdout)
	if err != nil {
		return err
	}

	if _, err := a.conn.MoveToTop(ctx, id); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			log.Printf("Error: %s", err.Error())
			return err
		}
		log.Printf("relay offline, updating local cache only")
	}

	if _, err := a.cache.MoveToTop(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Println("Moved to top")
	return nil
}

// Delete prompts for an entry ID and removes it from the relay and the
// local cache.
func (a *App) Delete(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter entry id to delete", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.conn.Delete(ctx, id); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			log.Printf("Error: %s", err.Error())
			return err
		}
		log.Printf("relay offline, updating local cache only")
	}

	if err := a.cache.Delete(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Println("Deleted", id)
	return nil
}

// Sync pages through the relay history and lands every entry in the local
// cache. Entries already cached are deduplicated by content hash.
func (a *App) Sync(ctx context.Context) error {
	var offset uint32
	fetched := 0
	for {
		hist, err := a.conn.Pull(ctx, syncPageSize, offset, time.Time{})
		if err != nil {
			return err
		}
		for i := range hist.Entries {
			entry := history.FromWire(&hist.Entries[i], a.cache.Account())
			if _, _, err := a.cache.Remember(ctx, entry); err != nil {
				return err
			}
		}
		fetched += len(hist.Entries)
		if !hist.HasMore || len(hist.Entries) == 0 {
			break
		}
		offset += uint32(len(hist.Entries))
	}
	log.Printf("Synced %d entries from relay", fetched)
	return nil
}
