package auth

import "embed"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS exposes the embedded schema migrations so callers can
// run them with the migration runner of their choice.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
