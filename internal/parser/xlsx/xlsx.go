// Package xlsx reads one worksheet of an XLSX workbook into a header and
// rows using the streaming row iterator, so only the selected sheet's cells
// are materialized.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Options control one read.
type Options struct {
	// Sheet selects a worksheet by name; empty means the first sheet in
	// workbook order.
	Sheet string

	// MaxRows caps the number of data rows; 0 means unlimited. Exceeding it
	// is an error.
	MaxRows int
}

// Read parses one sheet from the workbook in r. The first row is the header;
// later rows shorter than the header are padded by the dataset layer.
func Read(ctx context.Context, r io.Reader, opt Options) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx: open workbook: %w", err)
	}
	defer f.Close()

	sheet := strings.TrimSpace(opt.Sheet)
	if sheet == "" {
		sheet = firstSheet(f)
		if sheet == "" {
			return nil, nil, fmt.Errorf("xlsx: workbook has no sheets")
		}
	}

	it, err := f.Rows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx: open sheet %q: %w", sheet, err)
	}
	defer it.Close()

	if !it.Next() {
		return nil, nil, fmt.Errorf("xlsx: sheet %q is empty", sheet)
	}
	header, err := it.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx: read header: %w", err)
	}
	if len(header) == 0 {
		return nil, nil, fmt.Errorf("xlsx: sheet %q has an empty header row", sheet)
	}

	var rows [][]string
	for it.Next() {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		row, err := it.Columns()
		if err != nil {
			return nil, nil, fmt.Errorf("xlsx: read row %d: %w", len(rows)+2, err)
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)

		if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
			return nil, nil, fmt.Errorf("xlsx: sheet %q exceeds %d rows", sheet, opt.MaxRows)
		}
	}

	return header, rows, nil
}

// firstSheet returns the sheet with the lowest workbook index.
func firstSheet(f *excelize.File) string {
	sheetMap := f.GetSheetMap()
	if len(sheetMap) == 0 {
		return ""
	}
	idx := make([]int, 0, len(sheetMap))
	for i := range sheetMap {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return sheetMap[idx[0]]
}
