// Package csv reads delimiter-separated text into a header and rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Options control one read. The zero value reads comma-separated UTF-8 with
// no row cap.
type Options struct {
	// Comma is the field delimiter; 0 means ','. Pass '\t' for TSV.
	Comma rune

	// Encoding names the source character encoding: "" or "utf-8" reads
	// bytes as-is, "latin-1"/"iso-8859-1" and "windows-1252"/"cp1252" are
	// decoded before parsing.
	Encoding string

	// MaxRows caps the number of data rows read; 0 means unlimited.
	// Exceeding the cap is an error, not a silent truncation, because a
	// partial snapshot would report wrong statistics.
	MaxRows int
}

// Read parses CSV from r.
//
// Behavior, matching what probing tolerates in real exports:
//   - LazyQuotes and variable field counts are accepted; the dataset layer
//     pads or truncates ragged rows.
//   - A UTF-8 BOM on the first header cell is stripped.
//   - Cells are trimmed of edge whitespace.
//   - Entirely blank records are skipped.
//   - Cancellation is honored between records.
//
// Errors: unreadable input, an unknown Encoding name, or MaxRows exceeded.
func Read(ctx context.Context, r io.Reader, opt Options) ([]string, [][]string, error) {
	dec, err := decodingReader(r, opt.Encoding)
	if err != nil {
		return nil, nil, err
	}

	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(dec)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("csv: empty input")
		}
		return nil, nil, fmt.Errorf("csv: read header: %w", err)
	}
	header = cloneTrimmed(header)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var rows [][]string
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return header, rows, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv: read row %d: %w", len(rows)+2, err)
		}

		row := cloneTrimmed(rec)
		if blankRow(row) {
			continue
		}
		rows = append(rows, row)

		if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
			return nil, nil, fmt.Errorf("csv: input exceeds %d rows", opt.MaxRows)
		}
	}
}

// decodingReader wraps r with a charset decoder when one is requested.
func decodingReader(r io.Reader, name string) (io.Reader, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin-1", "latin1", "iso-8859-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// cloneTrimmed copies a record out of the reader's reused buffer, trimming
// cell whitespace.
func cloneTrimmed(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func blankRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
