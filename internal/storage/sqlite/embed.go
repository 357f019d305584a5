package sqlite

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationsRoot returns an fs.FS rooted at the migrations directory so
// migration filenames have no path prefix, matching
// storage.MigrationManager's expectations.
func migrationsRoot() (fs.FS, error) {
	return fs.Sub(migrationFS, "migrations")
}
