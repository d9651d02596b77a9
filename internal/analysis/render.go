package analysis

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Text renders the result as a plain-text table for terminals, the HTML
// result pane and MCP text fallbacks. One renderer per payload keeps the
// three surfaces identical.
func (r *Result) Text() string {
	switch {
	case r.Describe != nil:
		return renderDescribe(r.Describe)
	case r.Missing != nil:
		return renderMissing(r.Missing)
	case r.Info != nil:
		return renderInfo(r.Info)
	case r.Duplicates != nil:
		return renderDuplicates(r.Duplicates)
	default:
		return ""
	}
}

func renderDescribe(d *DescribeResult) string {
	if len(d.Columns) == 0 {
		return "describe: no numeric columns\n"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 0, 2, ' ', 0)
	fmt.Fprintln(w, "column\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax")
	for _, c := range d.Columns {
		fmt.Fprintf(w, "%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\n",
			c.Name, c.Count, c.Mean, c.Std, c.Min, c.Q25, c.Median, c.Q75, c.Max)
	}
	w.Flush()
	return b.String()
}

func renderMissing(m *MissingResult) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 0, 2, ' ', 0)
	fmt.Fprintln(w, "column\tmissing")
	for _, c := range m.Columns {
		fmt.Fprintf(w, "%s\t%d\n", c.Name, c.Missing)
	}
	w.Flush()
	fmt.Fprintf(&b, "total missing cells: %d\n", m.Total)
	return b.String()
}

func renderInfo(info *InfoResult) string {
	var b strings.Builder
	if info.Source != "" {
		fmt.Fprintf(&b, "source: %s\n", info.Source)
	}
	fmt.Fprintf(&b, "rows: %d  columns: %d\n", info.Rows, info.Cols)

	w := tabwriter.NewWriter(&b, 2, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tcolumn\tkind\tnon-null")
	for i, c := range info.Columns {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", i, c.Name, c.Kind, c.NonNull)
	}
	w.Flush()
	fmt.Fprintf(&b, "memory: ~%s\n", humanBytes(info.MemoryBytes))
	return b.String()
}

func renderDuplicates(d *DuplicatesResult) string {
	return fmt.Sprintf("rows: %d  distinct: %d  duplicates: %d\n",
		d.Rows, d.DistinctRows, d.DuplicateRows)
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
