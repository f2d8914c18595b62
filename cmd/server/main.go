package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/dmitrijs2005/clipsync/internal/server"
	"github.com/dmitrijs2005/clipsync/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	// A leading non-flag argument selects a management command
	// (issue-key, revoke-key, list-keys) instead of the relay loop.
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		if err := server.RunAdmin(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
