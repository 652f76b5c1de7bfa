// Package migrations embeds the goose SQL migration files.
//
// Files follow the YYYYMMDDHHMMSS_description.sql convention and are applied
// in order during database initialization.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
