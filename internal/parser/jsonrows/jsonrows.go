// Package jsonrows reads JSON records into a header and rows.
//
// Accepted shapes:
//   - a root array of flat objects,
//   - an envelope object whose first array-valued field holds the records
//     (the {"data": [...]} pattern common in API exports),
//   - a single root object, which becomes one row.
//
// The header is the union of keys in first-seen order; values are rendered
// to strings and null becomes a missing cell.
package jsonrows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Options control one read.
type Options struct {
	// MaxRows caps the number of records; 0 means unlimited. Exceeding it is
	// an error.
	MaxRows int
}

type table struct {
	header []string
	index  map[string]int
	rows   []map[string]string
}

func (t *table) add(key string) {
	if _, ok := t.index[key]; ok {
		return
	}
	t.index[key] = len(t.header)
	t.header = append(t.header, key)
}

// Read parses JSON records from r.
func Read(ctx context.Context, r io.Reader, opt Options) ([]string, [][]string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	t := &table{index: make(map[string]int)}

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("json: empty input")
		}
		return nil, nil, fmt.Errorf("json: read first token: %w", err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return nil, nil, fmt.Errorf("json: root is %T, want object or array", tok)
	}

	switch d {
	case '[':
		if err := readArrayOfObjects(ctx, dec, t, opt.MaxRows); err != nil {
			return nil, nil, err
		}
	case '{':
		if err := readEnvelopeOrSingle(ctx, dec, t, opt.MaxRows); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("json: unsupported root delimiter %q", d)
	}

	if len(t.header) == 0 {
		return nil, nil, fmt.Errorf("json: no fields found")
	}

	rows := make([][]string, len(t.rows))
	for i, obj := range t.rows {
		row := make([]string, len(t.header))
		for k, v := range obj {
			row[t.index[k]] = v
		}
		rows[i] = row
	}
	return t.header, rows, nil
}

// readArrayOfObjects consumes array elements after '[' and the closing ']'.
func readArrayOfObjects(ctx context.Context, dec *json.Decoder, t *table, maxRows int) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if maxRows > 0 && len(t.rows) >= maxRows {
			return fmt.Errorf("json: input exceeds %d records", maxRows)
		}
		if err := readObjectRow(dec, t); err != nil {
			return err
		}
	}
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read array end: %w", err)
	}
	if end != json.Delim(']') {
		return fmt.Errorf("json: expected array end ']', got %v", end)
	}
	return nil
}

// readEnvelopeOrSingle walks a root object after '{'. The first array-valued
// field is treated as the record array; remaining fields are skipped. With
// no array field, the object itself becomes one row.
func readEnvelopeOrSingle(ctx context.Context, dec *json.Decoder, t *table, maxRows int) error {
	single := make(map[string]string)
	var singleKeys []string

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("json: object key not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read value of %q: %w", key, err)
		}

		if delim, ok := valTok.(json.Delim); ok && delim == '[' {
			if err := readArrayOfObjects(ctx, dec, t, maxRows); err != nil {
				return err
			}
			// Skip the rest of the envelope.
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return fmt.Errorf("json: skip envelope key: %w", err)
				}
				var skip any
				if err := dec.Decode(&skip); err != nil {
					return fmt.Errorf("json: skip envelope value: %w", err)
				}
			}
			end, err := dec.Token()
			if err != nil {
				return fmt.Errorf("json: read object end: %w", err)
			}
			if end != json.Delim('}') {
				return fmt.Errorf("json: expected object end '}', got %v", end)
			}
			return nil
		}

		v, err := materialize(dec, valTok)
		if err != nil {
			return err
		}
		single[key] = renderValue(v)
		singleKeys = append(singleKeys, key)
	}

	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read object end: %w", err)
	}
	if end != json.Delim('}') {
		return fmt.Errorf("json: expected object end '}', got %v", end)
	}

	for _, k := range singleKeys {
		t.add(k)
	}
	t.rows = append(t.rows, single)
	return nil
}

// readObjectRow consumes one object element, preserving key order for the
// union header.
func readObjectRow(dec *json.Decoder, t *table) error {
	open, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read record: %w", err)
	}
	if open != json.Delim('{') {
		return fmt.Errorf("json: record is %v, want an object", open)
	}

	obj := make(map[string]string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read record key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("json: record key not a string (got %T)", keyTok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("json: read value of %q: %w", key, err)
		}
		t.add(key)
		obj[key] = renderValue(v)
	}

	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read record end: %w", err)
	}
	if end != json.Delim('}') {
		return fmt.Errorf("json: expected record end '}', got %v", end)
	}

	t.rows = append(t.rows, obj)
	return nil
}

// materialize builds the value whose first token was already consumed.
func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	if d != '{' {
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
	m := make(map[string]any)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read nested key: %w", err)
		}
		k, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("json: nested key not a string (got %T)", kt)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("json: read nested value: %w", err)
		}
		m[k] = v
	}
	if end, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("json: read nested end: %w", err)
	} else if end != json.Delim('}') {
		return nil, fmt.Errorf("json: expected '}', got %v", end)
	}
	return m, nil
}

// renderValue flattens a decoded JSON value into a cell. Arrays of strings
// join with a comma; anything structured falls back to compact JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		ss := make([]string, 0, len(t))
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				b, err := json.Marshal(v)
				if err != nil {
					return fmt.Sprintf("%v", v)
				}
				return string(b)
			}
			ss = append(ss, s)
		}
		return strings.Join(ss, ",")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
