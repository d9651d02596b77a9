package sqlds

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", what)
		}
	}()
	fn()
}

type fakeQuerier struct {
	header []string
	rows   [][]string
	err    error
	closed bool
}

func (f *fakeQuerier) Query(ctx context.Context, query string) ([]string, [][]string, error) {
	return f.header, f.rows, f.err
}

func (f *fakeQuerier) Close() { f.closed = true }

//
// Register / Drivers / Open
//

// TestRegister_Misuse checks the three wiring mistakes panic at
// registration time.
func TestRegister_Misuse(t *testing.T) {
	mustPanic(t, "empty driver", func() {
		Register("", func(ctx context.Context, cfg Config) (Querier, error) { return nil, nil })
	})
	mustPanic(t, "nil factory", func() {
		Register("nilfactory", nil)
	})

	Register("dup-driver", func(ctx context.Context, cfg Config) (Querier, error) { return nil, nil })
	mustPanic(t, "duplicate driver", func() {
		Register("dup-driver", func(ctx context.Context, cfg Config) (Querier, error) { return nil, nil })
	})
}

// TestDrivers checks registered names come back sorted.
func TestDrivers(t *testing.T) {
	Register("zz-sort", func(ctx context.Context, cfg Config) (Querier, error) { return nil, nil })
	Register("aa-sort", func(ctx context.Context, cfg Config) (Querier, error) { return nil, nil })

	names := Drivers()
	ia, iz := -1, -1
	for i, n := range names {
		switch n {
		case "aa-sort":
			ia = i
		case "zz-sort":
			iz = i
		}
	}
	if ia == -1 || iz == -1 {
		t.Fatalf("Drivers() = %v, missing registered names", names)
	}
	if ia > iz {
		t.Fatalf("Drivers() = %v, want sorted order", names)
	}
}

// TestOpen_UnknownDriver checks the error names the known backends.
func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	if err == nil {
		t.Fatal("Open with unknown driver succeeded")
	}
	if !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("err = %v, want the driver name in it", err)
	}
}

//
// Query
//

// TestQuery runs the open-query-close convenience against a fake backend
// and checks the connection is closed even on success.
func TestQuery(t *testing.T) {
	fq := &fakeQuerier{
		header: []string{"id", "name"},
		rows:   [][]string{{"1", "ada"}},
	}
	var gotCfg Config
	Register("fake-ok", func(ctx context.Context, cfg Config) (Querier, error) {
		gotCfg = cfg
		return fq, nil
	})

	header, rows, err := Query(context.Background(), Config{Driver: "fake-ok", DSN: "dsn://x", MaxRows: 7}, "select 1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !reflect.DeepEqual(header, fq.header) || !reflect.DeepEqual(rows, fq.rows) {
		t.Fatalf("got %v %v", header, rows)
	}
	if gotCfg.DSN != "dsn://x" || gotCfg.MaxRows != 7 {
		t.Fatalf("factory saw cfg %+v", gotCfg)
	}
	if !fq.closed {
		t.Fatal("querier was not closed")
	}
}

// TestQuery_BackendError checks query failures close the connection and
// propagate.
func TestQuery_BackendError(t *testing.T) {
	wantErr := errors.New("boom")
	fq := &fakeQuerier{err: wantErr}
	Register("fake-err", func(ctx context.Context, cfg Config) (Querier, error) {
		return fq, nil
	})

	_, _, err := Query(context.Background(), Config{Driver: "fake-err"}, "select 1")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if !fq.closed {
		t.Fatal("querier was not closed after error")
	}
}

//
// RenderValue
//

// TestRenderValue covers the canonical cell forms for driver values.
func TestRenderValue(t *testing.T) {
	t.Parallel()

	cet := time.FixedZone("CET", 3600)

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil is empty", in: nil, want: ""},
		{name: "string", in: "ada", want: "ada"},
		{name: "bytes", in: []byte("bits"), want: "bits"},
		{name: "bool true", in: true, want: "true"},
		{name: "bool false", in: false, want: "false"},
		{name: "int64", in: int64(-42), want: "-42"},
		{name: "int32", in: int32(7), want: "7"},
		{name: "int", in: 12, want: "12"},
		{name: "float64", in: 1.5, want: "1.5"},
		{name: "float64 large goes exponential", in: 1234567.0, want: "1.234567e+06"},
		{name: "float32", in: float32(2.5), want: "2.5"},
		{name: "time in UTC", in: time.Date(2024, 3, 1, 12, 0, 0, 0, cet), want: "2024-03-01T11:00:00Z"},
		{name: "fallback", in: uint8(3), want: "3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := RenderValue(tt.in); got != tt.want {
				t.Fatalf("RenderValue(%#v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
