// Package sqlite backs sqlds with SQLite through database/sql and the CGo-free
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"tabstat/internal/source/sqlds"
)

func init() {
	sqlds.Register("sqlite", New)
}

// New opens cfg.DSN (a file path or ":memory:") and verifies it with a ping.
func New(ctx context.Context, cfg sqlds.Config) (sqlds.Querier, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &sqlds.DBQuerier{DB: db, MaxRows: cfg.MaxRows}, nil
}
