package analysis

import (
	"context"
	"crypto/sha256"
	"strings"

	"tabstat/internal/dataset"
)

// DuplicatesResult counts fully duplicated rows. A row is a duplicate when
// its canonical hash was already seen in an earlier row.
type DuplicatesResult struct {
	Rows          int `json:"rows"`
	DistinctRows  int `json:"distinct_rows"`
	DuplicateRows int `json:"duplicate_rows"`
}

// rowHashSep separates cells in the canonical row form. Missing cells are
// encoded as a single NUL byte so missing differs from empty-string.
const rowHashSep = "\x1f"

func runDuplicates(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	out := &DuplicatesResult{Rows: ds.Rows()}

	seen := make(map[[sha256.Size]byte]struct{}, ds.Rows())
	var b strings.Builder

	for i := 0; i < ds.Rows(); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		b.Reset()
		for j := range ds.Columns {
			if j > 0 {
				b.WriteString(rowHashSep)
			}
			v, ok := ds.Columns[j].Value(i)
			if !ok {
				b.WriteByte('\x00')
				continue
			}
			b.WriteString(v)
		}

		sum := sha256.Sum256([]byte(b.String()))
		if _, dup := seen[sum]; dup {
			out.DuplicateRows++
			continue
		}
		seen[sum] = struct{}{}
	}

	out.DistinctRows = out.Rows - out.DuplicateRows
	return &Result{Op: req.Op, Duplicates: out}, nil
}
