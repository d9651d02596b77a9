// Package source resolves one input request into a dataset snapshot.
//
// Resolution is stateless by design: every request carries its own input
// reference, the backing source is re-read each time, and the resulting
// Dataset has no identity across requests. The resolver holds no cache and
// no handle registry, so concurrent requests cannot interact.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"tabstat/internal/dataset"
	"tabstat/internal/parser"
	csvparser "tabstat/internal/parser/csv"
	"tabstat/internal/parser/htmltable"
	"tabstat/internal/parser/jsonrows"
	"tabstat/internal/parser/xlsx"
	"tabstat/internal/source/file"
	"tabstat/internal/source/httpds"
	"tabstat/internal/source/sheets"
	"tabstat/internal/source/sqlds"
)

// SQLRequest names one database query input.
type SQLRequest struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Query  string `json:"query"`
}

// Request describes exactly one input. The first populated field wins,
// checked in order: uploaded bytes, local path, URL, sheet reference, SQL.
type Request struct {
	// UploadName and UploadData carry an uploaded file; the name is used
	// for format detection and the provenance label only.
	UploadName string `json:"upload_name,omitempty"`
	UploadData []byte `json:"-"`

	// Path is a local filesystem path.
	Path string `json:"path,omitempty"`

	// URL is an http(s) location.
	URL string `json:"url,omitempty"`

	// Sheet is a Google Sheet reference: a full URL or a bare spreadsheet ID.
	Sheet string `json:"sheet,omitempty"`

	// SQL selects a database query input.
	SQL *SQLRequest `json:"sql,omitempty"`

	// Format overrides detection ("csv", "xlsx", "json", "html"); empty
	// means detect from name and content.
	Format string `json:"format,omitempty"`

	// Encoding selects the CSV character encoding ("utf-8" default).
	Encoding string `json:"encoding,omitempty"`

	// SheetRange is an optional A1 range for sheet reads.
	SheetRange string `json:"sheet_range,omitempty"`
}

// LoadError wraps every failure on the path from input reference to
// Dataset. When a LoadError is returned, no Dataset exists.
type LoadError struct {
	Kind string // "upload", "path", "url", "sheet", "sql", "request"
	Ref  string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("load %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("load %s %q: %v", e.Kind, e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Config sizes and wires a Resolver.
type Config struct {
	// MaxBytes caps any single input; 0 means 64 MiB.
	MaxBytes int64

	// MaxSQLRows caps SQL result grids; 0 means 100000.
	MaxSQLRows int

	// HTTPTimeout bounds URL fetches; 0 means 30s.
	HTTPTimeout time.Duration

	// InsecureSkipVerify disables TLS verification on URL fetches.
	InsecureSkipVerify bool

	// Sheets configures the Sheets/Drive client.
	Sheets sheets.Config
}

const (
	defaultMaxBytes   = 64 << 20
	defaultMaxSQLRows = 100000
)

// Resolver turns Requests into Datasets. Safe for concurrent use; it holds
// only immutable configuration and concurrency-safe clients.
type Resolver struct {
	maxBytes   int64
	maxSQLRows int

	HTTP   *httpds.Client
	Sheets *sheets.Client
}

// NewResolver builds a resolver from cfg.
func NewResolver(cfg Config) *Resolver {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxSQLRows := cfg.MaxSQLRows
	if maxSQLRows <= 0 {
		maxSQLRows = defaultMaxSQLRows
	}

	return &Resolver{
		maxBytes:   maxBytes,
		maxSQLRows: maxSQLRows,
		HTTP: httpds.NewClient(httpds.Config{
			Timeout:            cfg.HTTPTimeout,
			MaxBytes:           maxBytes,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}),
		Sheets: sheets.NewClient(cfg.Sheets),
	}
}

// MaxBytes returns the input size cap, for surfaces that pre-limit request
// bodies.
func (r *Resolver) MaxBytes() int64 { return r.maxBytes }

/*
Resolve turns one Request into a Dataset.

What it does:
  - Picks the input: uploaded bytes, local path, URL, sheet, or SQL query.
  - Reads it fully, subject to the byte cap (row cap for SQL).
  - Detects the format (unless overridden), parses, and builds the snapshot.

Errors:
  - Every failure is a *LoadError naming the input kind and reference:
    missing input, unreadable path, fetch failure, bad sheet ref, SQL
    failure, unsupported format, parse failure, empty input, oversized
    input. On error no Dataset is returned.

Invariants:
  - No state survives the call: two identical requests re-read the source
    and may observe different content.
*/
func (r *Resolver) Resolve(ctx context.Context, req Request) (*dataset.Dataset, error) {
	switch {
	case len(req.UploadData) > 0:
		return r.resolveUpload(ctx, req)
	case req.Path != "":
		return r.resolvePath(ctx, req)
	case req.URL != "":
		return r.resolveURL(ctx, req)
	case req.Sheet != "":
		return r.resolveSheet(ctx, req)
	case req.SQL != nil:
		return r.resolveSQL(ctx, req)
	default:
		return nil, &LoadError{Kind: "request", Err: fmt.Errorf("no input given: provide upload, path, url, sheet or sql")}
	}
}

func (r *Resolver) resolveUpload(ctx context.Context, req Request) (*dataset.Dataset, error) {
	name := req.UploadName
	if name == "" {
		name = "upload"
	}
	if int64(len(req.UploadData)) > r.maxBytes {
		return nil, &LoadError{Kind: "upload", Ref: name, Err: fmt.Errorf("input exceeds %d bytes", r.maxBytes)}
	}

	ds, err := r.buildFromBytes(ctx, name, name, req.UploadData, req)
	if err != nil {
		return nil, &LoadError{Kind: "upload", Ref: name, Err: err}
	}
	return ds, nil
}

func (r *Resolver) resolvePath(ctx context.Context, req Request) (*dataset.Dataset, error) {
	src := file.NewLocal(req.Path)

	size, err := src.Size()
	if err != nil {
		return nil, &LoadError{Kind: "path", Ref: req.Path, Err: err}
	}
	if size > r.maxBytes {
		return nil, &LoadError{Kind: "path", Ref: req.Path, Err: fmt.Errorf("file is %d bytes, cap is %d", size, r.maxBytes)}
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, &LoadError{Kind: "path", Ref: req.Path, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return nil, &LoadError{Kind: "path", Ref: req.Path, Err: fmt.Errorf("read: %w", err)}
	}
	if int64(len(data)) > r.maxBytes {
		return nil, &LoadError{Kind: "path", Ref: req.Path, Err: fmt.Errorf("input exceeds %d bytes", r.maxBytes)}
	}

	ds, err := r.buildFromBytes(ctx, filepath.Base(req.Path), filepath.Base(req.Path), data, req)
	if err != nil {
		return nil, &LoadError{Kind: "path", Ref: req.Path, Err: err}
	}
	return ds, nil
}

func (r *Resolver) resolveURL(ctx context.Context, req Request) (*dataset.Dataset, error) {
	data, err := r.HTTP.Fetch(ctx, req.URL)
	if err != nil {
		return nil, &LoadError{Kind: "url", Ref: req.URL, Err: err}
	}

	name := path.Base(strings.SplitN(req.URL, "?", 2)[0])
	ds, err := r.buildFromBytes(ctx, name, req.URL, data, req)
	if err != nil {
		return nil, &LoadError{Kind: "url", Ref: req.URL, Err: err}
	}
	return ds, nil
}

func (r *Resolver) resolveSheet(ctx context.Context, req Request) (*dataset.Dataset, error) {
	ref, err := sheets.ParseRef(req.Sheet)
	if err != nil {
		return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: err}
	}
	label := "sheet:" + ref.SpreadsheetID

	grid, csvData, err := r.Sheets.ReadValues(ctx, ref, req.SheetRange)
	if err != nil {
		return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: err}
	}

	if csvData != nil {
		if int64(len(csvData)) > r.maxBytes {
			return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: fmt.Errorf("input exceeds %d bytes", r.maxBytes)}
		}
		header, rows, err := csvparser.Read(ctx, bytes.NewReader(csvData), csvparser.Options{Encoding: req.Encoding})
		if err != nil {
			return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: err}
		}
		ds, err := dataset.Build(label, header, rows)
		if err != nil {
			return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: err}
		}
		return ds, nil
	}

	if len(grid) == 0 {
		return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: fmt.Errorf("sheet has no rows")}
	}
	ds, err := dataset.Build(label, grid[0], grid[1:])
	if err != nil {
		return nil, &LoadError{Kind: "sheet", Ref: req.Sheet, Err: err}
	}
	return ds, nil
}

func (r *Resolver) resolveSQL(ctx context.Context, req Request) (*dataset.Dataset, error) {
	q := req.SQL
	ref := q.Driver + " query"

	if strings.TrimSpace(q.Query) == "" {
		return nil, &LoadError{Kind: "sql", Ref: ref, Err: fmt.Errorf("empty query")}
	}

	header, rows, err := sqlds.Query(ctx, sqlds.Config{
		Driver:  q.Driver,
		DSN:     q.DSN,
		MaxRows: r.maxSQLRows,
	}, q.Query)
	if err != nil {
		return nil, &LoadError{Kind: "sql", Ref: ref, Err: err}
	}

	ds, err := dataset.Build(ref, header, rows)
	if err != nil {
		return nil, &LoadError{Kind: "sql", Ref: ref, Err: err}
	}
	return ds, nil
}

// buildFromBytes detects the format of data and parses it into a Dataset
// labeled label. name feeds extension-based detection.
func (r *Resolver) buildFromBytes(ctx context.Context, name, label string, data []byte, req Request) (*dataset.Dataset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	format, err := parser.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if format == parser.FormatUnknown {
		head := data
		if len(head) > 512 {
			head = head[:512]
		}
		format = parser.Detect(name, head)
	}

	var (
		header []string
		rows   [][]string
	)
	switch format {
	case parser.FormatCSV:
		comma := ','
		if strings.EqualFold(filepath.Ext(name), ".tsv") || strings.EqualFold(req.Format, "tsv") {
			comma = '\t'
		}
		header, rows, err = csvparser.Read(ctx, bytes.NewReader(data), csvparser.Options{
			Comma:    comma,
			Encoding: req.Encoding,
		})
	case parser.FormatXLSX:
		header, rows, err = xlsx.Read(ctx, bytes.NewReader(data), xlsx.Options{})
	case parser.FormatJSON:
		header, rows, err = jsonrows.Read(ctx, bytes.NewReader(data), jsonrows.Options{})
	case parser.FormatHTML:
		header, rows, err = htmltable.Read(bytes.NewReader(data), htmltable.Options{})
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}

	return dataset.Build(label, header, rows)
}
