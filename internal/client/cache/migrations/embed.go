// Package migrations embeds the goose SQL migrations for the device cache.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
