package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies all pending schema migrations. It is safe to call on
// every startup; an up-to-date schema is not an error.
func Migrate(conf Config) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, conf.DSN)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	log := logx.Component("store")
	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("schema migrated")
	return nil
}
