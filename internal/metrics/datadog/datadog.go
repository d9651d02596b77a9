// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// NOTE ABOUT FLUSHING:
// The service is long-running, so submitting metrics only at shutdown would
// leave dashboards with a single spike instead of a time series. Therefore
// this backend:
//   - buffers measurements in-memory (fast, lock-protected)
//   - periodically Flush()es on a ticker (default: once per minute)
//   - Flush()es one final time on Close()
//
// Concurrency model:
//   - request handlers call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// If the process dies with SIGKILL/OOM, Close() never runs; the last window
// of measurements is lost. No backend can fix that.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"tabstat/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "tabstat".
	JobName string

	// Env becomes tag "env:<name>". Empty falls back to the ENV and DD_ENV
	// environment variables, then "unknown".
	Env string

	// Tags are extra Datadog tags (e.g. []string{"service:tabstat"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// The following fields are unexported test seams. Production code never
	// sets them; unit tests use them to avoid real network submission and
	// nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
//
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP. Backend depends on this interface instead, so
// tests can install a fake submitter.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// Request metrics, keyed by surface|op|status.
	reqCounts map[string]float64
	reqDur    map[string][]float64

	// Load metrics: counts keyed by kind|status, row samples by kind.
	loadCounts map[string]float64
	loadRows   map[string][]float64
}

func resolveEnvTag(explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Call once; a second Close panics on the closed stop channel, the usual
// close-once contract for process-lifetime backends.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client. The
// client reads DD_API_KEY (and friends) from the environment; credential
// problems surface as submission errors on Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tabstat"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(opts.Env), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		reqCounts:  make(map[string]float64),
		reqDur:     make(map[string][]float64),
		loadCounts: make(map[string]float64),
		loadRows:   make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.RequestsTotal:
		k := joinKey(labels["surface"], labels["op"], labels["status"])
		b.reqCounts[k] += delta

	case metrics.LoadsTotal:
		k := joinKey(labels["kind"], labels["status"])
		b.loadCounts[k] += delta

	default:
		// Unknown counters are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.RequestDuration:
		k := joinKey(labels["surface"], labels["op"], labels["status"])
		b.reqDur[k] = append(b.reqDur[k], value)

	case metrics.LoadRows:
		kind := labels["kind"]
		if kind == "" {
			kind = "unknown"
		}
		b.loadRows[kind] = append(b.loadRows[kind], value)

	default:
		// Unknown histograms are ignored.
	}
}

// snapshot is the buffered state a single Flush submits. Flush must reset
// buffers under the lock but submit out-of-lock; the snapshot separates the
// two phases.
type snapshot struct {
	reqCounts  map[string]float64
	reqDur     map[string][]float64
	loadCounts map[string]float64
	loadRows   map[string][]float64
}

// snapshotAndReset grabs current buffers and installs fresh ones. Call with
// no lock held.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		reqCounts:  b.reqCounts,
		reqDur:     b.reqDur,
		loadCounts: b.loadCounts,
		loadRows:   b.loadRows,
	}

	b.reqCounts = make(map[string]float64)
	b.reqDur = make(map[string][]float64)
	b.loadCounts = make(map[string]float64)
	b.loadRows = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.reqCounts) == 0 &&
		len(s.reqDur) == 0 &&
		len(s.loadCounts) == 0 &&
		len(s.loadRows) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers reset even when submission fails, so a broken intake endpoint
// cannot grow memory without bound; the window's measurements are dropped.
// Returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	nowUnix := b.now().Unix()
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, nowUnix)}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed
// timestamp. It is pure (no locks, no network, no clocks), which keeps the
// naming and tagging contract easy to unit test.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.reqCounts)+len(s.loadCounts)+32)

	for k, v := range s.reqCounts {
		if v == 0 {
			continue
		}
		surface, op, status := splitKey3(k)
		tags := withTags(b.baseTags, "surface:"+surface, "op:"+op, "status:"+status)
		series = append(series, countSeries("tabstat.requests.total", v, tags, nowUnix))
	}

	for k, v := range s.loadCounts {
		if v == 0 {
			continue
		}
		kind, status := splitKey2(k)
		tags := withTags(b.baseTags, "kind:"+kind, "status:"+status)
		series = append(series, countSeries("tabstat.loads.total", v, tags, nowUnix))
	}

	for k, samples := range s.reqDur {
		surface, op, status := splitKey3(k)
		tags := withTags(b.baseTags, "surface:"+surface, "op:"+op, "status:"+status)
		addPercentiles(&series, "tabstat.request.duration_seconds", samples, tags, nowUnix)
	}

	for kind, samples := range s.loadRows {
		tags := withTags(b.baseTags, "kind:"+kind)
		addPercentiles(&series, "tabstat.load.rows", samples, tags, nowUnix)
	}

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample set.
// Empty sample sets add nothing; the input slice is not mutated (a copy is
// sorted).
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func splitKey2(k string) (a, b string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func splitKey3(k string) (a, b, c string) {
	parts := strings.SplitN(k, "\x00", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], "unknown"
	default:
		return k, "unknown", "unknown"
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:tabstat".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
