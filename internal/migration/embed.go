package migration

import "embed"

// Schema files ship inside the binary; ordering comes from the numeric
// filename prefix.
//
//go:embed migrations/*.up.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"
