package sqlassets

import "embed"

// Migrations holds the goose migrations applied by the CLI and by store tests.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the SQL files.
const MigrationsDir = "migrations"
