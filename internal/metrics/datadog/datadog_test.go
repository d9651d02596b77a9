package datadog

import (
	"context"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"tabstat/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// newTestBackend builds a backend with a fake submitter and an effectively
// disabled flush loop.
func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "testjob",
		Env:        "test",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// TestResolveEnvTag verifies environment-tag precedence and defaults.
//
// Edge cases:
//   - An explicit value wins over ENV and DD_ENV.
//   - ENV wins over DD_ENV.
//   - Whitespace-only values are ignored.
//   - With nothing set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		env      string
		dd       string
		want     string
	}{
		{name: "explicit_wins", explicit: "prod", env: "stage", dd: "dev", want: "env:prod"},
		{name: "ENV_wins_over_DD_ENV", explicit: "", env: "stage", dd: "dev", want: "env:stage"},
		{name: "DD_ENV_used_when_ENV_empty", explicit: "", env: "", dd: "dev", want: "env:dev"},
		{name: "whitespace_ignored", explicit: "  ", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", explicit: "", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(tc.explicit); got != tc.want {
				t.Fatalf("resolveEnvTag(%q)=%q, want %q", tc.explicit, got, tc.want)
			}
		})
	}
}

// TestKeyRoundTrip verifies key encoding/decoding for both key widths.
func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	k := joinKey("api", "describe", "ok")
	if a, b, c := splitKey3(k); a != "api" || b != "describe" || c != "ok" {
		t.Fatalf("splitKey3=%q,%q,%q", a, b, c)
	}

	k = joinKey("upload", "error")
	if a, b := splitKey2(k); a != "upload" || b != "error" {
		t.Fatalf("splitKey2=%q,%q", a, b)
	}

	if a, b := splitKey2("no-sep"); a != "no-sep" || b != "unknown" {
		t.Fatalf("splitKey2(no-sep)=%q,%q, want unknown status", a, b)
	}
	if a, b, c := splitKey3("no-sep"); a != "no-sep" || b != "unknown" || c != "unknown" {
		t.Fatalf("splitKey3(no-sep)=%q,%q,%q", a, b, c)
	}
}

// TestWithTags verifies tag concatenation and immutability.
func TestWithTags(t *testing.T) {
	t.Parallel()

	base := []string{"env:test", "job:tabstat"}
	got := withTags(base, "op:describe", "status:ok")
	want := []string{"env:test", "job:tabstat", "op:describe", "status:ok"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice")
	}
}

// TestPercentileNearestRank verifies percentile behavior.
func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

// TestGaugeSeries verifies gauge series timestamps and values.
func TestGaugeSeries(t *testing.T) {
	t.Parallel()

	now := int64(1234567)
	s := gaugeSeries("tabstat.test.gauge", 3.14, []string{"env:test"}, now)

	if s.Metric != "tabstat.test.gauge" {
		t.Fatalf("Metric=%q", s.Metric)
	}
	if s.Type == nil || *s.Type != datadogV2.METRICINTAKETYPE_GAUGE {
		t.Fatalf("Type=%v, want GAUGE", s.Type)
	}
	if len(s.Points) != 1 {
		t.Fatalf("Points.len=%d, want 1", len(s.Points))
	}
	if s.Points[0].Timestamp == nil || *s.Points[0].Timestamp != now {
		t.Fatalf("Timestamp=%v, want %d", s.Points[0].Timestamp, now)
	}
	if s.Points[0].Value == nil || *s.Points[0].Value != 3.14 {
		t.Fatalf("Value=%v, want 3.14", s.Points[0].Value)
	}
}

// TestAddPercentiles verifies the fixed percentile gauge set and that the
// input samples are not mutated.
func TestAddPercentiles(t *testing.T) {
	t.Parallel()

	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	addPercentiles(&series, "tabstat.request.duration_seconds", in, []string{"env:test"}, 999)

	// p50, p90, p95, p99, max, samples.
	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: got %v, want %v", in, orig)
	}

	var foundSamples bool
	for _, s := range series {
		if s.Metric == "tabstat.request.duration_seconds.samples" {
			foundSamples = true
			if s.Points[0].Value == nil || *s.Points[0].Value != 5 {
				t.Fatalf("samples gauge value=%v, want 5", s.Points[0].Value)
			}
		}
	}
	if !foundSamples {
		t.Fatalf("samples gauge missing")
	}
}

// TestNewBackend_Defaults verifies defaults without real HTTP.
func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		Env:       "test",
		Tags:      []string{"service:tabstat"},
		submitter: fs,
		now:       func() time.Time { return time.Unix(123, 0) },
		newTicker: func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:tabstat") {
		t.Fatalf("baseTags missing default job tag: %v", b.baseTags)
	}
	if !contains(b.baseTags, "env:test") {
		t.Fatalf("baseTags missing env tag: %v", b.baseTags)
	}
	if !contains(b.baseTags, "service:tabstat") {
		t.Fatalf("baseTags missing provided tag: %v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

// TestFlush_SubmitsAndResets verifies Flush submits buffered metrics, the
// payload carries the expected series names, and buffers reset.
func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.RequestsTotal, 2, metrics.Labels{"surface": "api", "op": "describe", "status": "ok"})
	b.ObserveHistogram(metrics.RequestDuration, 0.5, metrics.Labels{"surface": "api", "op": "describe", "status": "ok"})
	b.IncCounter(metrics.LoadsTotal, 3, metrics.Labels{"kind": "upload", "status": "ok"})
	b.ObserveHistogram(metrics.LoadRows, 120, metrics.Labels{"kind": "upload"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if len(b.reqCounts) != 0 || len(b.reqDur) != 0 || len(b.loadCounts) != 0 || len(b.loadRows) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}
	var names []string
	for _, s := range payload.Series {
		names = append(names, s.Metric)
	}
	sort.Strings(names)

	wantContains := []string{
		"tabstat.requests.total",
		"tabstat.request.duration_seconds.p50",
		"tabstat.request.duration_seconds.samples",
		"tabstat.loads.total",
		"tabstat.load.rows.p50",
	}
	for _, w := range wantContains {
		if !contains(names, w) {
			t.Fatalf("payload missing metric %q; got=%v", w, names)
		}
	}

	// Spot-check tags on the request counter.
	for _, s := range payload.Series {
		if s.Metric == "tabstat.requests.total" {
			for _, want := range []string{"surface:api", "op:describe", "status:ok", "env:test", "job:testjob"} {
				if !contains(s.Tags, want) {
					t.Fatalf("requests.total missing tag %q; tags=%v", want, s.Tags)
				}
			}
		}
	}
}

// TestFlush_NoDataDoesNotSubmit verifies the empty path submits nothing.
func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submissions=%d, want 0", fs.count())
	}
}

// TestLoopAndClose verifies the background loop flushes periodically and
// Close performs a final flush.
func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}

	b, err := NewBackend(context.Background(), Options{
		JobName:    "testjob",
		Env:        "test",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
		// Real ticker so the loop is exercised.
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{"kind": "path", "status": "ok"})

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		if fs.count() >= 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected at least one background flush; got %d", fs.count())
	}

	b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{"kind": "path", "status": "ok"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected a final flush from Close; submissions=%d", fs.count())
	}
}

// TestBackend_ConcurrentAccess verifies buffering is safe under concurrent
// recording.
func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	workers := runtime.GOMAXPROCS(0) * 4
	iters := 2000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{"surface": "api", "op": "info", "status": "ok"})
				b.ObserveHistogram(metrics.RequestDuration, 0.01, metrics.Labels{"surface": "api", "op": "info", "status": "ok"})
				b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{"kind": "upload", "status": "ok"})
				b.ObserveHistogram(metrics.LoadRows, 10, metrics.Labels{"kind": "upload"})
			}
		}()
	}
	wg.Wait()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
}

// TestRecording_EdgeCases verifies ignored paths: non-positive deltas,
// negative samples, unknown metric names, missing kind labels.
func TestRecording_EdgeCases(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.RequestsTotal, 0, nil)
	b.IncCounter(metrics.RequestsTotal, -3, nil)
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.ObserveHistogram(metrics.RequestDuration, -1, nil)
	b.ObserveHistogram("unknown_seconds", 0.1, nil)
	b.ObserveHistogram(metrics.LoadRows, 5, nil) // kind defaults to unknown

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload; the load rows sample should have flushed")
	}
	var sawRows bool
	for _, s := range payload.Series {
		if s.Metric == "tabstat.load.rows.p50" && contains(s.Tags, "kind:unknown") {
			sawRows = true
		}
		if s.Metric == "tabstat.requests.total" {
			t.Fatalf("ignored counters leaked into the payload: %v", s)
		}
	}
	if !sawRows {
		t.Fatalf("expected tabstat.load.rows.p50 for kind:unknown")
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty_returns_nil", in: "", want: nil},
		{
			name: "trims_and_skips_empty_segments",
			in:   " env:prod , ,service:tabstat,  ,team:data ",
			want: []string{"env:prod", "service:tabstat", "team:data"},
		},
		{name: "single_tag", in: "service:tabstat", want: []string{"service:tabstat"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTagsCSV(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
