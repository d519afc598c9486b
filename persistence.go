package accounts

import (
	"embed"
	"io/fs"

	"github.com/goliatone/go-persistence-bun"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// RegisterPersistenceModels registers the package models with
// go-persistence-bun. Call once during application bootstrap, before the
// persistence client is created.
func RegisterPersistenceModels() {
	persistence.RegisterModel((*User)(nil))
}

// MigrationsSource returns the migration files rooted at the directory the
// persistence client expects, ready for RegisterDialectMigrations.
func MigrationsSource() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations")
}
