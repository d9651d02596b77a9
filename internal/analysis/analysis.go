// Package analysis implements the statistics operations that run against a
// dataset snapshot and the dispatcher that selects one by name.
//
// Dispatch is deliberately an enumerated table: every operation the service
// supports is one entry in the registry below, and the unknown-name branch is
// explicit. Adding an operation means adding one entry and one result payload
// field, nothing else.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tabstat/internal/dataset"
)

// Request names one operation run. Column optionally restricts describe to a
// single column; other operations ignore it.
type Request struct {
	Op     string `json:"op"`
	Column string `json:"column,omitempty"`
}

// Result is the tagged outcome of one operation: Op plus exactly one
// populated payload.
type Result struct {
	Op string `json:"op"`

	Describe   *DescribeResult   `json:"describe,omitempty"`
	Missing    *MissingResult    `json:"missing,omitempty"`
	Info       *InfoResult       `json:"info,omitempty"`
	Duplicates *DuplicatesResult `json:"duplicates,omitempty"`
}

// InvalidOpError reports an operation name outside the registry.
type InvalidOpError struct {
	Name  string
	Known []string
}

func (e *InvalidOpError) Error() string {
	return fmt.Sprintf("invalid operation %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ComputeError reports that a known operation failed against the snapshot it
// was given, e.g. describe of a column that does not exist or is not numeric.
type ComputeError struct {
	Op     string
	Column string
	Err    error
}

func (e *ComputeError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s of column %q failed: %v", e.Op, e.Column, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

type opFunc func(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error)

type opEntry struct {
	fn  opFunc
	doc string
}

// The operation registry. Names are exact: no aliases.
var registry = map[string]opEntry{
	"describe":       {runDescribe, "numeric summary per column: count, mean, std, min, quartiles, max"},
	"missing-values": {runMissing, "per-column null-cell counts and the dataset total"},
	"info":           {runInfo, "row and column counts, inferred kinds, non-null counts, memory estimate"},
	"duplicates":     {runDuplicates, "count of fully duplicated rows"},
}

// OpInfo describes one registered operation.
type OpInfo struct {
	Name string `json:"name"`
	Doc  string `json:"doc"`
}

// Operations lists the registered operations sorted by name.
func Operations() []OpInfo {
	out := make([]OpInfo, 0, len(registry))
	for name, e := range registry {
		out = append(out, OpInfo{Name: name, Doc: e.doc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func knownNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run dispatches req against ds.
//
// Errors:
//   - *InvalidOpError when req.Op is not registered; ds is not touched.
//   - *ComputeError when the operation itself fails.
//   - ctx.Err() when the context is cancelled mid-operation.
//
// Run never mutates ds; concurrent calls against the same snapshot are safe.
func Run(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	entry, ok := registry[req.Op]
	if !ok {
		return nil, &InvalidOpError{Name: req.Op, Known: knownNames()}
	}
	return entry.fn(ctx, ds, req)
}
