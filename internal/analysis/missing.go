package analysis

import (
	"context"

	"tabstat/internal/dataset"
)

// ColumnMissing is the null-cell count of one column.
type ColumnMissing struct {
	Name    string `json:"name"`
	Missing int    `json:"missing"`
}

// MissingResult lists per-column missing counts in dataset column order.
// The per-column counts always sum to Total.
type MissingResult struct {
	Columns []ColumnMissing `json:"columns"`
	Total   int             `json:"total"`
}

func runMissing(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	out := &MissingResult{Columns: make([]ColumnMissing, 0, ds.Cols())}
	for i := range ds.Columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &ds.Columns[i]
		n := c.MissingCount()
		out.Columns = append(out.Columns, ColumnMissing{Name: c.Name, Missing: n})
		out.Total += n
	}
	return &Result{Op: req.Op, Missing: out}, nil
}
