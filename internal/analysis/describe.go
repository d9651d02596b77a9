package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"tabstat/internal/dataset"
)

// ColumnStats is the numeric summary of one column. Count is the number of
// non-missing parseable values; Std is the sample standard deviation (n-1
// denominator), reported as 0 when Count < 2 so results stay NaN-free.
type ColumnStats struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// DescribeResult holds one stats row per summarized column, in dataset
// column order.
type DescribeResult struct {
	Columns []ColumnStats `json:"columns"`
}

// runDescribe summarizes every numeric column, or the single requested one.
//
// Errors (all *ComputeError):
//   - requested column does not exist
//   - requested column exists but is not numeric
//
// A dataset with no numeric columns and no requested column yields an empty
// result, not an error.
func runDescribe(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	var targets []*dataset.Column
	if req.Column != "" {
		c := ds.Column(req.Column)
		if c == nil {
			return nil, &ComputeError{Op: req.Op, Column: req.Column, Err: fmt.Errorf("no such column")}
		}
		if !c.Kind.Numeric() {
			return nil, &ComputeError{Op: req.Op, Column: req.Column, Err: fmt.Errorf("column is not numeric (kind %s)", c.Kind)}
		}
		targets = []*dataset.Column{c}
	} else {
		for i := range ds.Columns {
			if ds.Columns[i].Kind.Numeric() {
				targets = append(targets, &ds.Columns[i])
			}
		}
	}

	out := &DescribeResult{Columns: make([]ColumnStats, 0, len(targets))}
	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Columns = append(out.Columns, summarize(c))
	}
	return &Result{Op: req.Op, Describe: out}, nil
}

// summarize computes the stats row for one column: Welford accumulation for
// mean/std, then quantiles by linear interpolation on the sorted values.
func summarize(c *dataset.Column) ColumnStats {
	s := ColumnStats{Name: c.Name}

	var (
		vals = make([]float64, 0, c.Len())
		mean float64
		m2   float64
	)
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)

	for i := 0; i < c.Len(); i++ {
		x, ok := c.Float(i)
		if !ok {
			continue
		}
		vals = append(vals, x)
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
		delta := x - mean
		mean += delta / float64(len(vals))
		m2 += delta * (x - mean)
	}

	s.Count = len(vals)
	if s.Count == 0 {
		s.Min, s.Max = 0, 0
		return s
	}

	s.Mean = mean
	if s.Count > 1 {
		s.Std = math.Sqrt(m2 / float64(s.Count-1))
	}

	sort.Float64s(vals)
	s.Q25 = quantile(vals, 0.25)
	s.Median = quantile(vals, 0.5)
	s.Q75 = quantile(vals, 0.75)
	return s
}

// quantile interpolates linearly within a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
