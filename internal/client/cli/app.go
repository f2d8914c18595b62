package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/dmitrijs2005/clipsync/internal/client/cache"
	"github.com/dmitrijs2005/clipsync/internal/client/config"
	"github.com/dmitrijs2005/clipsync/internal/client/conn"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/google/uuid"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App ties the relay connection and the local history cache to the REPL.
type App struct {
	config   *config.Config
	conn     *conn.Client
	cache    *cache.Cache
	reader   *bufio.Reader
	userName string
}

func NewApp(cfg *config.Config) (*App, error) {

	ctx := context.Background()

	store, err := cache.OpenSQLiteStore(ctx, cfg.DatabasePath, cfg.MaxCacheItems)
	if err != nil {
		log.Printf("error initializing local cache: %s", err.Error())
		return nil, err
	}

	a := &App{
		config: cfg,
		cache:  cache.New(store, cfg.MaxCacheItems),
		reader: bufio.NewReader(os.Stdin),
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	device := conn.Device{
		ID:       uuid.NewString(),
		Name:     cfg.DeviceName,
		Platform: runtime.GOOS,
	}

	a.conn = conn.NewClient(cfg.ServerAddr, device, Version, logger,
		conn.WithHeartbeatInterval(cfg.HeartbeatInterval),
		conn.WithRequestTimeout(cfg.RequestTimeout),
		conn.WithBroadcastHandler(a.onBroadcast),
	)

	return a, nil
}

// onBroadcast lands clipboard pushes from sibling devices in the local cache.
// It runs on the connection's read loop, never on the REPL goroutine.
func (a *App) onBroadcast(p *protocol.ClipboardBroadcastPayload) {
	entry := history.FromWire(&p.Entry, a.cache.Account())
	if _, _, err := a.cache.Remember(context.Background(), entry); err != nil {
		log.Printf("error caching broadcast: %s", err.Error())
		return
	}
	log.Printf("clipboard update from %s: %s", p.OriginDevice, entry.Preview)
}

func (a *App) isLoggedIn() bool {
	return a.conn.AccountID() != ""
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = fmt.Sprintf("(%s) ", a.userName)
	}
	return s
}

// Run dials the relay and starts the REPL. It blocks until the user exits.
// A failed dial is not fatal: the local cache stays usable and the user can
// issue "reconnect" once the relay is back.
func (a *App) Run(ctx context.Context) {
	defer a.conn.Close()

	if err := a.conn.Dial(ctx); err != nil {
		log.Printf("relay unavailable: %s (local history only, try 'reconnect')", err.Error())
	}

	log.Println("Welcome to clipsync CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
