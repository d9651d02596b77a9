// Package dataset holds the in-memory tabular snapshot every analysis runs
// against. A Dataset is built once from parsed rows and never mutated after
// that, so concurrent reads need no locking. Nothing here persists: callers
// build a Dataset per request and drop it with the response.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Column is one named column of the snapshot: the raw cell values plus a
// parallel missing mask and the inferred Kind.
type Column struct {
	Name string
	Kind Kind

	cells   []string
	missing []bool
}

// Len returns the number of cells (equal to the Dataset row count).
func (c *Column) Len() int { return len(c.cells) }

// IsMissing reports whether cell i is null.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// Value returns the raw cell i and ok=false when it is missing.
func (c *Column) Value(i int) (string, bool) {
	if c.missing[i] {
		return "", false
	}
	return c.cells[i], true
}

// Float parses cell i as a float64. ok is false for missing or unparsable
// cells; boolean cells are not coerced.
func (c *Column) Float(i int) (float64, bool) {
	if c.missing[i] {
		return 0, false
	}
	f, err := strconv.ParseFloat(c.cells[i], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NonNull counts non-missing cells.
func (c *Column) NonNull() int {
	n := 0
	for _, m := range c.missing {
		if !m {
			n++
		}
	}
	return n
}

// MissingCount counts missing cells.
func (c *Column) MissingCount() int { return len(c.missing) - c.NonNull() }

/*
Dataset is an immutable tabular snapshot.

What it is:
  - One header row plus zero or more data rows, stored column-oriented.
  - Column names are normalized identifiers (lowercase, underscores,
    de-duplicated) so results read the same across CSV, XLSX, JSON, HTML
    and SQL inputs.
  - Each cell is the raw string from the input; a parallel mask records
    which cells are missing (empty or an NA token).

What it is not:
  - Not a handle into the backing source. Two loads of the same reference
    produce two independent Datasets and may observe different content.
  - Not bounded-growth storage: callers enforce input size caps before
    building one.
*/
type Dataset struct {
	// Source is a human-readable provenance label (file name, URL, sheet
	// title, query). Display only.
	Source string

	Columns []Column

	rows int
}

// Rows returns the number of data rows (header excluded).
func (d *Dataset) Rows() int { return d.rows }

// Cols returns the number of columns.
func (d *Dataset) Cols() int { return len(d.Columns) }

// Column resolves a column by name. The lookup normalizes the argument the
// same way headers were normalized, so "Unit Price" finds "unit_price".
// Returns nil when no column matches.
func (d *Dataset) Column(name string) *Column {
	norm := NormalizeName(name)
	for i := range d.Columns {
		if d.Columns[i].Name == name || d.Columns[i].Name == norm {
			return &d.Columns[i]
		}
	}
	return nil
}

// ApproxBytes estimates the in-memory footprint of the snapshot. Used by the
// info operation; the estimate counts cell bytes plus fixed per-cell
// overhead, the way dataframe libraries report shallow memory usage.
func (d *Dataset) ApproxBytes() int64 {
	const cellOverhead = 17 // string header + missing flag
	var n int64
	for i := range d.Columns {
		c := &d.Columns[i]
		n += int64(len(c.Name))
		n += int64(len(c.cells)) * cellOverhead
		for _, v := range c.cells {
			n += int64(len(v))
		}
	}
	return n
}

// Build constructs a Dataset from a parsed header and rows.
//
// What it does:
//   - Normalizes and de-duplicates header names (empty headers become
//     column_N, clashes get _2, _3, ... suffixes).
//   - Pads short rows with missing cells and truncates long rows, so every
//     column has exactly len(rows) cells.
//   - Marks missing cells (empty/whitespace or NA token) and infers each
//     column's Kind from the rest.
//
// Errors: a header with zero columns. Zero data rows is fine and yields
// Rows()==0.
func Build(source string, header []string, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("dataset: no columns in input")
	}

	names := normalizeHeader(header)

	d := &Dataset{
		Source:  source,
		Columns: make([]Column, len(names)),
		rows:    len(rows),
	}

	for j := range names {
		cells := make([]string, len(rows))
		missing := make([]bool, len(rows))
		for i, row := range rows {
			var v string
			if j < len(row) {
				v = strings.TrimSpace(row[j])
			}
			if isMissingToken(v) {
				missing[i] = true
				v = ""
			}
			cells[i] = v
		}
		d.Columns[j] = Column{
			Name:    names[j],
			Kind:    inferKind(cells, missing),
			cells:   cells,
			missing: missing,
		}
	}

	return d, nil
}

// normalizeHeader maps raw header cells to unique normalized names.
func normalizeHeader(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]int, len(header))
	for i, h := range header {
		name := NormalizeName(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if name[0] >= '0' && name[0] <= '9' {
			name = "_" + name
		}
		name = truncateName(name)
		if n, ok := used[name]; ok {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		used[name] = 1
		names[i] = name
	}
	return names
}

// NormalizeName converts an arbitrary header cell into a safe lowercase
// identifier: whitespace and separator runs become a single underscore and
// anything outside [a-z0-9_] is dropped.
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			lastUnderscore = (r == '_')
			continue
		}

		// Drop everything else.
	}

	return strings.Trim(b.String(), "_")
}

// truncateName caps a name at 63 bytes without splitting a UTF-8 sequence.
func truncateName(s string) string {
	const maxLen = 63
	if len(s) <= maxLen {
		return s
	}
	b := []byte(s)
	cut := maxLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxLen]
	}
	return string(b[:cut])
}
