// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// The pushgateway replaces the whole job group on every PUT, so counters
// must be cumulative over the process lifetime: buffers accumulate rather
// than reset on Flush. The text exposition format is simple enough to emit
// directly, one PUT of text/plain per flush.
package prompush

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tabstat/internal/metrics"
)

// Backend implements metrics.Backend against a Pushgateway.
type Backend struct {
	pushURL string
	hc      *http.Client

	mu sync.Mutex

	// counters: family -> rendered label set -> cumulative value.
	counters map[string]map[string]float64

	// histograms: family -> rendered label set -> cumulative sum and count.
	histSums   map[string]map[string]float64
	histCounts map[string]map[string]float64
}

// NewBackend targets gatewayURL (e.g. "http://localhost:9091") and groups
// all series under job jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if jobName == "" {
		jobName = "tabstat"
	}
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: empty gateway URL")
	}
	u, err := url.Parse(gatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("prompush: bad gateway URL %q", gatewayURL)
	}

	return &Backend{
		pushURL: strings.TrimSuffix(gatewayURL, "/") + "/metrics/job/" + url.PathEscape(jobName),
		hc:      &http.Client{Timeout: 10 * time.Second},

		counters:   make(map[string]map[string]float64),
		histSums:   make(map[string]map[string]float64),
		histCounts: make(map[string]map[string]float64),
	}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	ls := renderLabels(labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	addTo(b.counters, name, ls, delta)
}

// ObserveHistogram implements metrics.Backend. Histograms push as
// cumulative <name>_sum and <name>_count series; the gateway has no good
// vehicle for live quantiles.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	ls := renderLabels(labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	addTo(b.histSums, name, ls, value)
	addTo(b.histCounts, name, ls, 1)
}

func addTo(m map[string]map[string]float64, family, labels string, delta float64) {
	inner := m[family]
	if inner == nil {
		inner = make(map[string]float64)
		m[family] = inner
	}
	inner[labels] += delta
}

// Flush PUTs the current cumulative state to the gateway. With nothing
// recorded yet it does nothing and returns nil.
func (b *Backend) Flush() error {
	body := b.render()
	if body == "" {
		return nil
	}

	req, err := http.NewRequest(http.MethodPut, b.pushURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; version=0.0.4")

	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("prompush: push: status %s", resp.Status)
	}
	return nil
}

// Close pushes one final time. The backend holds no connections or loops of
// its own.
func (b *Backend) Close() error {
	return b.Flush()
}

// render builds the text exposition body. Families and label sets are
// sorted so the output is deterministic.
func (b *Backend) render() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder

	for _, family := range sortedKeys(b.counters) {
		fmt.Fprintf(&sb, "# TYPE %s counter\n", family)
		inner := b.counters[family]
		for _, ls := range sortedKeys(inner) {
			writeSample(&sb, family, ls, inner[ls])
		}
	}

	for _, family := range sortedKeys(b.histSums) {
		sums := b.histSums[family]
		counts := b.histCounts[family]
		for _, ls := range sortedKeys(sums) {
			writeSample(&sb, family+"_sum", ls, sums[ls])
			writeSample(&sb, family+"_count", ls, counts[ls])
		}
	}

	return sb.String()
}

func writeSample(sb *strings.Builder, name, labels string, value float64) {
	sb.WriteString(name)
	sb.WriteString(labels)
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	sb.WriteByte('\n')
}

// renderLabels renders a deterministic `{k="v",...}` label block, empty for
// no labels. Values escape backslash, quote and newline per the exposition
// format.
func renderLabels(labels metrics.Labels) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabelValue(labels[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ metrics.Backend = (*Backend)(nil)
