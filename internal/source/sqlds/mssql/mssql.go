// Package mssql backs sqlds with SQL Server through database/sql.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"tabstat/internal/source/sqlds"
)

func init() {
	sqlds.Register("mssql", New)
}

// New opens a SQL Server connection for cfg.DSN and verifies it with a ping,
// so DSN mistakes surface at open time rather than mid-query.
func New(ctx context.Context, cfg sqlds.Config) (sqlds.Querier, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &sqlds.DBQuerier{DB: db, MaxRows: cfg.MaxRows}, nil
}
