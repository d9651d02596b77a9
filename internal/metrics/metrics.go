// Package metrics is a small facade over a pluggable metrics backend.
//
// Core code records measurements through the package-level helpers and
// depends only on the Backend interface. Binaries pick the concrete
// backend (datadog, pushgateway, or none) at startup via SetBackend; the
// default backend drops everything, so recording is always safe even when
// metrics are disabled.
package metrics

import (
	"sync"
	"time"
)

// Labels carries metric dimensions.
type Labels map[string]string

// Backend is the sink for recorded measurements.
//
// Implementations must be safe for concurrent use: request handlers record
// from many goroutines while a flush loop drains.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names recorded by the service. Backends switch on these and are
// free to ignore names they do not publish.
const (
	// RequestsTotal counts analysis requests. Labels: surface, op, status.
	RequestsTotal = "tabstat_requests_total"

	// RequestDuration samples request latency in seconds. Labels: surface,
	// op, status.
	RequestDuration = "tabstat_request_duration_seconds"

	// LoadsTotal counts input resolutions. Labels: kind, status.
	LoadsTotal = "tabstat_loads_total"

	// LoadRows samples the row count of successfully loaded inputs.
	// Labels: kind.
	LoadRows = "tabstat_load_rows"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. Passing nil restores
// the drop-everything default.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		current = nopBackend{}
		return
	}
	current = b
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample of the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush forces buffered measurements out through the backend.
func Flush() error {
	return backend().Flush()
}

// RecordRequest notes one analysis request: the surface that served it
// ("web", "api", "mcp", "cli"), the operation, the outcome status and how
// long it took.
func RecordRequest(surface, op, status string, d time.Duration) {
	labels := Labels{"surface": surface, "op": op, "status": status}
	IncCounter(RequestsTotal, 1, labels)
	ObserveHistogram(RequestDuration, d.Seconds(), labels)
}

// RecordLoad notes one input resolution: the input kind ("upload", "path",
// "url", "sheet", "sql"), the outcome, and the row count on success.
func RecordLoad(kind, status string, rows int) {
	IncCounter(LoadsTotal, 1, Labels{"kind": kind, "status": status})
	if status == "ok" {
		ObserveHistogram(LoadRows, float64(rows), Labels{"kind": kind})
	}
}
