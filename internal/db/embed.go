package db

import "embed"

// migrationFS embeds all SQL schema migrations into the compiled binary.
// At runtime, no migration files need to exist on disk.
//
//go:embed migrations/*.sql
var migrationFS embed.FS
