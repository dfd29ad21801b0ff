package migrations

import "embed"

// FS contains the embedded SQLite migrations for the slides service.
//
//go:embed *.sql
var FS embed.FS
