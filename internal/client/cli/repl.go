package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	LoginWithKey(ctx context.Context) error
	Push(ctx context.Context) error
	List(ctx context.Context) error
	Search(ctx context.Context) error
	Top(ctx context.Context) error
	Delete(ctx context.Context) error
	Sync(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the clipsync CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help           — show available commands
//	  - register       — create an account
//	  - login          — authenticate with a password
//	  - key            — authenticate with an API key
//	  - reconnect      — redial the relay
//	  - exit | quit    — leave the program
//
//	Logged in:
//	  - help           — show available commands
//	  - push           — push clipboard text to the relay
//	  - list           — list history entries
//	  - search         — search text entries
//	  - top            — move an entry to the top
//	  - delete         — delete an entry
//	  - sync           — pull relay history into the local cache
//	  - reconnect      — redial the relay
//	  - logout         — log out
//	  - exit | quit    — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("clipsync %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: push, (l)ist, search, top, delete, sync, reconnect, logout, exit")
			} else {
				printlnFn("Available commands: register, login, key, reconnect, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "key":
			_ = a.LoginWithKey(ctx)

		case "push":
			_ = a.Push(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "search":
			_ = a.Search(ctx)

		case "top":
			_ = a.Top(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "reconnect":
			_ = a.Reconnect(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
