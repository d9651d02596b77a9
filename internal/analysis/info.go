package analysis

import (
	"context"

	"tabstat/internal/dataset"
)

// ColumnInfo is the structural summary of one column.
type ColumnInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	NonNull int    `json:"non_null"`
}

// InfoResult reports the snapshot's literal dimensions, per-column kinds and
// non-null counts, and an approximate memory footprint.
type InfoResult struct {
	Source      string       `json:"source,omitempty"`
	Rows        int          `json:"rows"`
	Cols        int          `json:"cols"`
	MemoryBytes int64        `json:"memory_bytes"`
	Columns     []ColumnInfo `json:"columns"`
}

func runInfo(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	out := &InfoResult{
		Source:      ds.Source,
		Rows:        ds.Rows(),
		Cols:        ds.Cols(),
		MemoryBytes: ds.ApproxBytes(),
		Columns:     make([]ColumnInfo, 0, ds.Cols()),
	}
	for i := range ds.Columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &ds.Columns[i]
		out.Columns = append(out.Columns, ColumnInfo{
			Name:    c.Name,
			Kind:    c.Kind.String(),
			NonNull: c.NonNull(),
		})
	}
	return &Result{Op: req.Op, Info: out}, nil
}
