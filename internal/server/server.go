// Package server holds what the web, API and MCP surfaces share: the
// resolve-then-analyze request path and the error taxonomy.
package server

import (
	"context"
	"time"

	"tabstat/internal/analysis"
	"tabstat/internal/dataset"
	"tabstat/internal/metrics"
	"tabstat/internal/source"
)

// Service runs one request end to end. Stateless: each call resolves a
// fresh snapshot, analyzes it, and lets it go; nothing is retained between
// calls, so instances are safe for concurrent use.
type Service struct {
	Resolver *source.Resolver
}

// Analyze resolves req's input and runs one operation against it. surface
// names the caller ("web", "api", "mcp", "cli") for metrics.
func (s *Service) Analyze(ctx context.Context, surface string, req source.Request, op analysis.Request) (*analysis.Result, error) {
	start := time.Now()

	ds, err := s.Load(ctx, req)
	if err != nil {
		metrics.RecordRequest(surface, op.Op, ErrorCode(err), time.Since(start))
		return nil, err
	}

	out, err := analysis.Run(ctx, ds, op)
	status := "ok"
	if err != nil {
		status = ErrorCode(err)
	}
	metrics.RecordRequest(surface, op.Op, status, time.Since(start))
	return out, err
}

// Load resolves req into a snapshot, recording the load outcome.
func (s *Service) Load(ctx context.Context, req source.Request) (*dataset.Dataset, error) {
	ds, err := s.Resolver.Resolve(ctx, req)
	if err != nil {
		metrics.RecordLoad(loadKind(req), "error", 0)
		return nil, err
	}
	metrics.RecordLoad(loadKind(req), "ok", ds.Rows())
	return ds, nil
}

// loadKind mirrors the resolver's input precedence for metric labels.
func loadKind(req source.Request) string {
	switch {
	case len(req.UploadData) > 0:
		return "upload"
	case req.Path != "":
		return "path"
	case req.URL != "":
		return "url"
	case req.Sheet != "":
		return "sheet"
	case req.SQL != nil:
		return "sql"
	default:
		return "none"
	}
}
