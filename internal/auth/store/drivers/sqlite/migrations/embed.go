// Package migrations embeds the SQLite schema so the binary carries it.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
