// Package storage is the Postgres-backed (bun) persistence layer: a
// pooled database connection for database_reader/database_writer node
// closures, and a graph save/load codec.
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	conns   sync.Map // dsn string -> *bun.DB
	connsMu sync.Mutex
)

// dbFor returns (creating if needed) a pooled bun.DB for dsn.
// database_reader/writer settings each carry their own DSN, so connections
// are pooled per-DSN rather than assuming one fixed database per process.
func dbFor(dsn string) (*bun.DB, error) {
	if v, ok := conns.Load(dsn); ok {
		return v.(*bun.DB), nil
	}

	connsMu.Lock()
	defer connsMu.Unlock()
	if v, ok := conns.Load(dsn); ok {
		return v.(*bun.DB), nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(5*time.Second),
		pgdriver.WithDialTimeout(5*time.Second),
		pgdriver.WithReadTimeout(5*time.Second),
		pgdriver.WithWriteTimeout(5*time.Second),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	conns.Store(dsn, db)
	log.Debug().Msg("storage: opened database_reader/writer connection")
	return db, nil
}

// CloseAll closes every pooled connection, for graceful shutdown.
func CloseAll() {
	conns.Range(func(key, value any) bool {
		_ = value.(*bun.DB).Close()
		conns.Delete(key)
		return true
	})
}
