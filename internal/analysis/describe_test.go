package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"tabstat/internal/dataset"
)

func mustBuild(t *testing.T, header []string, rows [][]string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Build("test", header, rows)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return ds
}

//
// describe
//

// TestDescribe verifies the numeric summary: one row per numeric column,
// counts bounded by the row count, and the documented example (column a of
// "a,b\n1,\n2,3\n" has count 2, mean 1.5).
func TestDescribe(t *testing.T) {
	t.Parallel()

	ds := mustBuild(t, []string{"a", "b"}, [][]string{
		{"1", ""},
		{"2", "3"},
	})

	res, err := Run(context.Background(), ds, Request{Op: "describe"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	d := res.Describe
	if d == nil {
		t.Fatalf("Describe payload is nil")
	}

	if len(d.Columns) != 2 {
		t.Fatalf("stats rows = %d, want 2 (one per numeric column)", len(d.Columns))
	}
	for _, c := range d.Columns {
		if c.Count > ds.Rows() {
			t.Fatalf("column %q count %d exceeds row count %d", c.Name, c.Count, ds.Rows())
		}
	}

	a := d.Columns[0]
	if a.Name != "a" || a.Count != 2 || a.Mean != 1.5 {
		t.Fatalf("column a = {name:%s count:%d mean:%v}, want {a 2 1.5}", a.Name, a.Count, a.Mean)
	}
	if a.Min != 1 || a.Max != 2 || a.Median != 1.5 {
		t.Fatalf("column a min/median/max = %v/%v/%v, want 1/1.5/2", a.Min, a.Median, a.Max)
	}

	b := d.Columns[1]
	if b.Count != 1 || b.Mean != 3 || b.Std != 0 {
		t.Fatalf("column b = {count:%d mean:%v std:%v}, want {1 3 0}", b.Count, b.Mean, b.Std)
	}
}

// TestDescribe_SampleStd verifies the n-1 standard deviation against a
// hand-computed value.
func TestDescribe_SampleStd(t *testing.T) {
	t.Parallel()

	ds := mustBuild(t, []string{"v"}, [][]string{{"2"}, {"4"}, {"4"}, {"4"}, {"5"}, {"5"}, {"7"}, {"9"}})

	res, err := Run(context.Background(), ds, Request{Op: "describe", Column: "v"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	c := res.Describe.Columns[0]

	// mean 5, sum of squared deviations 32, sample variance 32/7.
	wantStd := math.Sqrt(32.0 / 7.0)
	if math.Abs(c.Std-wantStd) > 1e-12 {
		t.Fatalf("Std = %v, want %v", c.Std, wantStd)
	}
	if c.Mean != 5 {
		t.Fatalf("Mean = %v, want 5", c.Mean)
	}
}

// TestDescribe_SingleColumnErrors verifies the failure branches of a named
// column: absent and non-numeric both fail as computation errors.
func TestDescribe_SingleColumnErrors(t *testing.T) {
	t.Parallel()

	ds := mustBuild(t, []string{"n", "s"}, [][]string{{"1", "x"}})

	tests := []struct {
		name   string
		column string
	}{
		{"absent column", "nope"},
		{"non-numeric column", "s"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Run(context.Background(), ds, Request{Op: "describe", Column: tt.column})
			var ce *ComputeError
			if !errors.As(err, &ce) {
				t.Fatalf("Run error = %v, want *ComputeError", err)
			}
			if ce.Column != tt.column {
				t.Fatalf("ComputeError.Column = %q, want %q", ce.Column, tt.column)
			}
		})
	}
}

// TestDescribe_NoNumericColumns verifies an all-text dataset yields an empty
// result rather than an error.
func TestDescribe_NoNumericColumns(t *testing.T) {
	t.Parallel()

	ds := mustBuild(t, []string{"s"}, [][]string{{"x"}, {"y"}})

	res, err := Run(context.Background(), ds, Request{Op: "describe"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(res.Describe.Columns) != 0 {
		t.Fatalf("stats rows = %d, want 0", len(res.Describe.Columns))
	}
}

//
// quantile
//

// TestQuantile verifies linear interpolation on sorted samples.
func TestQuantile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sorted []float64
		q      float64
		want   float64
	}{
		{"median of even sample", []float64{1, 2}, 0.5, 1.5},
		{"median of odd sample", []float64{1, 2, 3}, 0.5, 2},
		{"q25 interpolated", []float64{1, 2, 3, 4}, 0.25, 1.75},
		{"q0 is min", []float64{3, 5, 9}, 0, 3},
		{"q1 is max", []float64{3, 5, 9}, 1, 9},
		{"single value", []float64{7}, 0.75, 7},
		{"empty", nil, 0.5, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := quantile(tt.sorted, tt.q); got != tt.want {
				t.Fatalf("quantile(%v, %v) = %v, want %v", tt.sorted, tt.q, got, tt.want)
			}
		})
	}
}
