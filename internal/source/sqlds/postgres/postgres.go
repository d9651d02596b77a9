// Package postgres backs sqlds with a native pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tabstat/internal/source/sqlds"
)

func init() {
	sqlds.Register("postgres", New)
}

// Querier implements sqlds.Querier over pgxpool.
type Querier struct {
	pool    *pgxpool.Pool
	maxRows int
}

// New opens a pool for cfg.DSN.
func New(ctx context.Context, cfg sqlds.Config) (sqlds.Querier, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	return &Querier{pool: pool, maxRows: cfg.MaxRows}, nil
}

// Close closes the connection pool.
func (q *Querier) Close() { q.pool.Close() }

// Query runs one query and renders the grid with the shared canonical rules.
func (q *Querier) Query(ctx context.Context, query string) ([]string, [][]string, error) {
	rows, err := q.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out [][]string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: read row %d: %w", len(out)+1, err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = sqlds.RenderValue(v)
		}
		out = append(out, row)

		if q.maxRows > 0 && len(out) > q.maxRows {
			return nil, nil, fmt.Errorf("postgres: result exceeds %d rows", q.maxRows)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return cols, out, nil
}
