package server

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/server/auth"
	"github.com/dmitrijs2005/clipsync/internal/server/config"
	"github.com/dmitrijs2005/clipsync/internal/server/models"
	"github.com/dmitrijs2005/clipsync/internal/server/storage"
)

// keyManager is the slice of the auth service the admin commands need.
// auth.Service satisfies it.
type keyManager interface {
	IssueApiKey(ctx context.Context, accountID, label string, expiresAt *time.Time) (*models.ApiKey, error)
	RevokeApiKey(ctx context.Context, accountID, keyID string) error
	ListApiKeys(ctx context.Context, accountID string) ([]*models.ApiKey, error)
}

// RunAdmin executes one relay management command against the configured
// database and returns. It backs the key-management subcommands of the
// server binary, which is how API keys for headless devices get minted:
//
//	clipsync-server issue-key -u <username> [-l <label>] [-e <days>]
//	clipsync-server revoke-key -u <username> -k <key id>
//	clipsync-server list-keys -u <username>
func RunAdmin(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	store, err := storage.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer store.Close()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	svc := auth.NewService(store.Users(), store.ApiKeys(),
		cfg.SecretKey, cfg.ResumeTokenValidityDuration, logger)

	return runAdmin(ctx, store.Users(), svc, args, out)
}

func runAdmin(ctx context.Context, users auth.UserRepository, keys keyManager, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command (want issue-key, revoke-key or list-keys)", common.ErrorValidation)
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "issue-key":
		fs := flag.NewFlagSet("issue-key", flag.ContinueOnError)
		username := fs.String("u", "", "account username")
		label := fs.String("l", "", "key label")
		expireDays := fs.Int("e", 0, "expiry in days, 0 for no expiry")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		user, err := lookupUser(ctx, users, *username)
		if err != nil {
			return err
		}

		var expiresAt *time.Time
		if *expireDays > 0 {
			t := time.Now().UTC().AddDate(0, 0, *expireDays)
			expiresAt = &t
		}

		key, err := keys.IssueApiKey(ctx, user.ID, *label, expiresAt)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "issued key %s for %s\n", key.ID, user.Username)
		fmt.Fprintf(out, "token (shown once): %s\n", key.Token)
		return nil

	case "revoke-key":
		fs := flag.NewFlagSet("revoke-key", flag.ContinueOnError)
		username := fs.String("u", "", "account username")
		keyID := fs.String("k", "", "key id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		user, err := lookupUser(ctx, users, *username)
		if err != nil {
			return err
		}
		if *keyID == "" {
			return fmt.Errorf("%w: -k key id is required", common.ErrorValidation)
		}

		if err := keys.RevokeApiKey(ctx, user.ID, *keyID); err != nil {
			return err
		}
		fmt.Fprintf(out, "revoked key %s for %s\n", *keyID, user.Username)
		return nil

	case "list-keys":
		fs := flag.NewFlagSet("list-keys", flag.ContinueOnError)
		username := fs.String("u", "", "account username")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		user, err := lookupUser(ctx, users, *username)
		if err != nil {
			return err
		}

		list, err := keys.ListApiKeys(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, k := range list {
			status := "active"
			if !k.Usable(time.Now().UTC()) {
				status = "unusable"
			}
			fmt.Fprintf(out, "%s  %-10s  %s  created %s\n",
				k.ID, status, k.Label, k.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "%d key(s)\n", len(list))
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q (want issue-key, revoke-key or list-keys)", common.ErrorValidation, cmd)
	}
}

func lookupUser(ctx context.Context, users auth.UserRepository, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: -u username is required", common.ErrorValidation)
	}
	return users.GetByUsername(ctx, username)
}
