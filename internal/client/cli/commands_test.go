package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/client/cache"
	"github.com/dmitrijs2005/clipsync/internal/client/config"
	"github.com/dmitrijs2005/clipsync/internal/client/conn"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
)

// ------------ helpers ------------

func readerFromLines(lines ...string) *bufio.Reader {
	if len(lines) == 0 || lines[len(lines)-1] != "" {
		lines = append(lines, "")
	}
	return bufio.NewReader(strings.NewReader(strings.Join(lines, "\n")))
}

// newTestApp builds an App over an in-memory cache and a relay client that
// was never dialed, so every relay call fails with net.ErrClosed. That is
// exactly the offline code path the commands must survive.
func newTestApp(t *testing.T, lines ...string) *App {
	t.Helper()

	cfg := &config.Config{
		ServerAddr:     "127.0.0.1:0",
		DeviceName:     "test-device",
		MaxCacheItems:  50,
		RequestTimeout: time.Second,
	}

	c := cache.New(history.NewMemoryStore(cfg.MaxCacheItems), cfg.MaxCacheItems)
	c.SetAccount("acc1")

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	client := conn.NewClient(cfg.ServerAddr, conn.Device{ID: "d1", Name: cfg.DeviceName, Platform: "linux"}, "test", logger)

	return &App{
		config: cfg,
		conn:   client,
		cache:  c,
		reader: readerFromLines(lines...),
	}
}

func seedEntry(t *testing.T, a *App, content string, at time.Time) *history.Entry {
	t.Helper()
	stored, _, err := a.cache.Remember(context.Background(), &history.Entry{
		Kind:      history.KindText,
		Content:   []byte(content),
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return stored
}

// ------------ tests ------------

func TestPush_OfflineKeepsEntryLocally(t *testing.T) {
	app := newTestApp(t, "offline text")

	err := app.Push(context.Background())
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("want net.ErrClosed, got %v", err)
	}

	entries, _, total, err := app.cache.List(context.Background(), 10, 0, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || entries[0].Preview != "offline text" {
		t.Fatalf("entry not cached: total=%d entries=%+v", total, entries)
	}
	if entries[0].DeviceLabel != "test-device" {
		t.Fatalf("device label not set: %q", entries[0].DeviceLabel)
	}
}

func TestTop_OfflineReordersCache(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	app := newTestApp(t)
	first := seedEntry(t, app, "first", base)
	seedEntry(t, app, "second", base.Add(time.Minute))

	app.reader = readerFromLines(first.ID)
	if err := app.Top(context.Background()); err != nil {
		t.Fatalf("top: %v", err)
	}

	entries, _, _, err := app.cache.List(context.Background(), 10, 0, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries[0].ID != first.ID {
		t.Fatalf("expected %s on top, got %s", first.ID, entries[0].ID)
	}
}

func TestDelete_OfflineRemovesFromCache(t *testing.T) {
	app := newTestApp(t)
	stored := seedEntry(t, app, "to delete", time.Now())

	app.reader = readerFromLines(stored.ID)
	if err := app.Delete(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, _, total, err := app.cache.List(context.Background(), 10, 0, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("entry still cached, total=%d", total)
	}
}

func TestSearch_ReadsQueryFromPrompt(t *testing.T) {
	app := newTestApp(t, "meeting")
	seedEntry(t, app, "meeting notes for monday", time.Now().Add(-time.Minute))
	seedEntry(t, app, "unrelated", time.Now())

	if err := app.Search(context.Background()); err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestLogout_ClearsAccountBinding(t *testing.T) {
	app := newTestApp(t)
	app.userName = "bob"

	if err := app.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if app.userName != "" {
		t.Fatalf("userName not cleared: %q", app.userName)
	}
	if app.cache.Account() != "" {
		t.Fatalf("cache account not cleared: %q", app.cache.Account())
	}
}

func TestRegister_OfflineFails(t *testing.T) {
	origText, origPw := getSimpleText, getPassword
	getSimpleText = func(r *bufio.Reader, prompt string, w io.Writer) (string, error) { return "bob", nil }
	getPassword = func(w io.Writer) ([]byte, error) { return []byte("password123"), nil }
	t.Cleanup(func() { getSimpleText, getPassword = origText, origPw })

	app := newTestApp(t)
	if err := app.Register(context.Background()); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("want net.ErrClosed, got %v", err)
	}
	if app.isLoggedIn() {
		t.Fatal("must not be logged in after failed register")
	}
}
