// Package dbmigrations exposes the embedded SQL migrations for the Postgres draw cache.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into KINO binaries.
//
//go:embed *.sql
var Files embed.FS
