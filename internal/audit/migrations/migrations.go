// Package migrations embeds the audit schema's goose migration files.
package migrations

import "embed"

// FS holds the embedded .sql migration files, consumed by goose.SetBaseFS.
//
//go:embed *.sql
var FS embed.FS
