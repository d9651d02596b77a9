// Package sqlds is the SQL query input source: it runs one read-only query
// against a registered database backend and returns the result grid.
//
// Backends live in subpackages and self-register from init(); binaries pull
// them in with a blank import of sqlds/all.
package sqlds

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Config selects a backend and one query's limits.
type Config struct {
	// Driver is a registered backend name ("postgres", "mssql", "sqlite").
	Driver string

	// DSN is passed to the backend untouched; its shape is backend-specific.
	DSN string

	// MaxRows caps the result size; 0 means unlimited. Exceeding the cap is
	// an error so a truncated grid never masquerades as the full result.
	MaxRows int
}

// Querier runs queries against one open connection (or pool).
type Querier interface {
	// Query returns the result columns and rows, with every value rendered
	// to its canonical string form (NULL becomes an empty cell).
	Query(ctx context.Context, query string) (columns []string, rows [][]string, err error)

	// Close releases the underlying connections. Call once.
	Close()
}

type factory func(ctx context.Context, cfg Config) (Querier, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a driver name.
//
// Call from an init() in a backend package. Registering an empty name, a nil
// factory, or the same name twice panics: backend wiring mistakes should
// fail at startup, not at query time.
func Register(driver string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if driver == "" {
		panic("sqlds: Register called with empty driver")
	}
	if f == nil {
		panic("sqlds: Register called with nil factory")
	}
	if _, exists := factories[driver]; exists {
		panic(fmt.Sprintf("sqlds: factory already registered for driver=%q", driver))
	}

	factories[driver] = f
}

// Drivers lists the registered backend names, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Querier for cfg.Driver.
//
// Errors: empty or unregistered driver names, and whatever the backend
// factory returns (bad DSN, unreachable server).
func Open(ctx context.Context, cfg Config) (Querier, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("sqlds: missing driver")
	}

	mu.RLock()
	f := factories[cfg.Driver]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("sqlds: unsupported driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}

// Query opens, runs one query, and closes. This is the path the input
// resolver uses: connections are per-request, matching the service's
// stateless model.
func Query(ctx context.Context, cfg Config, query string) ([]string, [][]string, error) {
	q, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer q.Close()
	return q.Query(ctx, query)
}

// DBQuerier adapts a database/sql handle to Querier. The mssql and sqlite
// backends share it; postgres speaks native pgx instead.
type DBQuerier struct {
	DB      *sql.DB
	MaxRows int
}

func (d *DBQuerier) Close() { d.DB.Close() }

func (d *DBQuerier) Query(ctx context.Context, query string) ([]string, [][]string, error) {
	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlds: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("sqlds: columns: %w", err)
	}

	var out [][]string
	scan := make([]any, len(cols))
	for i := range scan {
		scan[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, nil, fmt.Errorf("sqlds: scan row %d: %w", len(out)+1, err)
		}
		row := make([]string, len(cols))
		for i := range scan {
			row[i] = RenderValue(*scan[i].(*any))
		}
		out = append(out, row)

		if d.MaxRows > 0 && len(out) > d.MaxRows {
			return nil, nil, fmt.Errorf("sqlds: result exceeds %d rows", d.MaxRows)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sqlds: rows: %w", err)
	}
	return cols, out, nil
}

// RenderValue converts one driver value to its canonical cell form: NULL is
// the empty cell, times are RFC3339Nano in UTC, numbers render via strconv
// so no precision is lost to %v.
func RenderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		return tt.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", t)
	}
}
