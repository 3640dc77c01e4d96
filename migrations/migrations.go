// Package migrations embeds the goose SQL migration files for every
// SQL-backed store implementation (sqlitestore, postgresstore), the way the
// teacher's internal/database package points goose at a migrations
// directory, but embedded so the binary carries its own schema rather than
// depending on a migrations/ directory existing on disk at runtime.
//
// SQLite and Postgres get separate trees because their DDL dialects diverge
// (AUTOINCREMENT vs. GENERATED ALWAYS AS IDENTITY, INTEGER vs. BOOLEAN) even
// though the resulting schemas are equivalent.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLiteFS embed.FS

//go:embed postgres/*.sql
var PostgresFS embed.FS
