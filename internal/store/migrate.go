package store

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the sphinx and site tables. newznab owns them in production, so this
// is only used to stand up test and development databases.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(s.dialect.goose); err != nil {
		return err
	}
	goose.SetTableName("sphinxfix_migrations")
	return goose.UpContext(ctx, s.db, "migrations")
}
