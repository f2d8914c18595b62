package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts the user for a username and password and attempts to
// create a new account on the relay. A successful registration also
// authenticates the connection, so the user is logged in afterwards.
//
// The password byte slice is securely wiped before returning. Any I/O or
// relay error is returned unchanged.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	resp, err := a.conn.Register(ctx, userName, string(password))
	if err != nil {
		log.Printf("Registration unsuccessful: %s", err.Error())
		return err
	}

	a.finishLogin(ctx, userName, resp.AccountID)
	fmt.Println("Success!")
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// On success it binds the connection to the account, points the local cache
// at it, and pulls the relay history so the cache is warm. The password is
// securely wiped before returning.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	resp, err := a.conn.Login(ctx, &protocol.AuthLoginPayload{Username: userName, Password: string(password)})
	if err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	log.Printf("Login successful")
	a.finishLogin(ctx, userName, resp.AccountID)
	return nil
}

// LoginWithKey authenticates with a previously issued API key instead of
// credentials. Useful for headless devices where no password prompt fits.
func (a *App) LoginWithKey(ctx context.Context) error {
	key, err := getSimpleText(a.reader, "Enter API key", os.Stdout)
	if err != nil {
		return err
	}

	resp, err := a.conn.LoginWithApiKey(ctx, key)
	if err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	log.Printf("Login successful")
	a.finishLogin(ctx, "api-key", resp.AccountID)
	return nil
}

// finishLogin records the account binding and warms the local cache from the
// relay. A failed warm-up is logged, not fatal: broadcasts and later syncs
// will fill the gap.
func (a *App) finishLogin(ctx context.Context, userName, accountID string) {
	a.userName = userName
	a.cache.SetAccount(accountID)

	if err := a.Sync(ctx); err != nil {
		log.Printf("error syncing history: %s", err.Error())
	}
}

// Logout drops the account binding on the relay and detaches the local
// cache. Cached entries stay on disk for the next login.
func (a *App) Logout(ctx context.Context) error {
	if err := a.conn.Logout(); err != nil {
		log.Printf("error logging out: %s", err.Error())
	}
	a.userName = ""
	a.cache.SetAccount("")
	return nil
}

// Reconnect redials the relay. If a resume token is held from a previous
// login, the connection is re-authenticated automatically.
func (a *App) Reconnect(ctx context.Context) error {
	if err := a.conn.Reconnect(ctx); err != nil {
		log.Printf("error reconnecting: %s", err.Error())
		return err
	}
	if id := a.conn.AccountID(); id != "" {
		a.cache.SetAccount(id)
	}
	log.Printf("Reconnected to %s", a.config.ServerAddr)
	return nil
}
