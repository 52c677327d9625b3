// Package migrations embeds the reference server's PostgreSQL schema.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
