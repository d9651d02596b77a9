// Package htmltable extracts one <table> element from an HTML document into
// a header and rows.
package htmltable

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Options control one read.
type Options struct {
	// Index selects the nth table in DOM order (0-based) when a page has
	// more than one.
	Index int

	// MaxRows caps the number of data rows; 0 means unlimited. Exceeding it
	// is an error.
	MaxRows int
}

// Read parses the selected table.
//
// Header resolution: the first row containing <th> cells wins; otherwise the
// first <tr> is the header. Cell text is trimmed. Rows spanning via
// colspan/rowspan are read cell-by-cell without expansion; the dataset layer
// pads short rows.
func Read(r io.Reader, opt Options) ([]string, [][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("html: parse document: %w", err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, nil, fmt.Errorf("html: no <table> element found")
	}
	if opt.Index < 0 || opt.Index >= tables.Length() {
		return nil, nil, fmt.Errorf("html: table index %d out of range (document has %d)", opt.Index, tables.Length())
	}
	table := tables.Eq(opt.Index)

	var (
		header  []string
		rows    [][]string
		rowsErr error
	)

	table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := rowCells(tr)
		if len(cells) == 0 {
			return true
		}
		if header == nil {
			header = cells
			return true
		}
		// A later <th> row restarts the header only if no data was read yet;
		// some pages repeat header rows mid-table and those repeats are data
		// noise we keep as-is.
		rows = append(rows, cells)
		if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
			rowsErr = fmt.Errorf("html: table exceeds %d rows", opt.MaxRows)
			return false
		}
		return true
	})
	if rowsErr != nil {
		return nil, nil, rowsErr
	}

	if len(header) == 0 {
		return nil, nil, fmt.Errorf("html: table has no rows")
	}
	return header, rows, nil
}

// rowCells collects the trimmed text of a row's <th> or <td> cells.
func rowCells(tr *goquery.Selection) []string {
	var cells []string
	tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}
