// Package cli provides the interactive clipsync command-line client.
//
// It wires configuration, the local SQLite history cache, the relay
// connection, and an interactive REPL. Typical flow: connect to the relay,
// prompt for credentials, then execute user commands while broadcasts from
// sibling devices land in the local cache in the background.
//
// Key features:
//   - Register / Login (password, API key, or resume token on reconnect)
//   - Push clipboard text to the relay
//   - List / Search / Top / Delete history entries
//   - Sync the local cache from the relay history
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
