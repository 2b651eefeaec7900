// Package migrations embeds the sequential schema SQL files applied by
// store.Open. There is no transport-agnostic migration framework in this
// module (the teacher's relies on a Matrix-specific upgrade table), so
// store.runMigrations walks these files in name order against a
// schema_migrations tracking table instead.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
