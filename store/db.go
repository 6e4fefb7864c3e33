// Package store persists threads, messages and campaigns in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Config carries the database connection settings.
type Config struct {
	DSN          string        `envconfig:"DSN" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	PingTimeout  time.Duration `envconfig:"PING_TIMEOUT" split_words:"true" default:"5s"`
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, conf Config) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(conf.DSN)))
	sqldb.SetMaxOpenConns(conf.MaxOpenConns)
	sqldb.SetMaxIdleConns(conf.MaxOpenConns)

	db := bun.NewDB(sqldb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(ctx, conf.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
