package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"tabstat/internal/analysis"
	"tabstat/internal/source"
)

func newTestService() *Service {
	return &Service{Resolver: source.NewResolver(source.Config{})}
}

func uploadReq(name, data string) source.Request {
	return source.Request{UploadName: name, UploadData: []byte(data)}
}

//
// Analyze
//

// TestAnalyze verifies the happy path end to end: an uploaded CSV is
// resolved and the requested operation runs against it.
func TestAnalyze(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	res, err := svc.Analyze(context.Background(), "api",
		uploadReq("sample.csv", "a,b\n1,\n2,3\n"),
		analysis.Request{Op: "missing-values"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if res.Missing == nil || res.Missing.Total != 1 {
		t.Fatalf("Analyze result = %+v, want missing total 1", res)
	}
}

// TestAnalyze_ErrorCodes verifies each failure stage classifies onto its
// wire code: unreadable input, unknown operation, failing computation.
func TestAnalyze_ErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      source.Request
		op       analysis.Request
		wantCode string
	}{
		{
			name:     "load failure",
			req:      source.Request{Path: "/nonexistent/tabstat-test.csv"},
			op:       analysis.Request{Op: "info"},
			wantCode: CodeLoadError,
		},
		{
			name:     "unknown operation",
			req:      uploadReq("s.csv", "a\n1\n"),
			op:       analysis.Request{Op: "pivot"},
			wantCode: CodeInvalidOperation,
		},
		{
			name:     "failing computation",
			req:      uploadReq("s.csv", "a\n1\n"),
			op:       analysis.Request{Op: "describe", Column: "nosuch"},
			wantCode: CodeComputationError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService()

			res, err := svc.Analyze(context.Background(), "api", tc.req, tc.op)
			if err == nil {
				t.Fatalf("Analyze returned %+v, want error", res)
			}
			if code := ErrorCode(err); code != tc.wantCode {
				t.Fatalf("ErrorCode(%v) = %q, want %q", err, code, tc.wantCode)
			}
		})
	}
}

// TestAnalyze_Concurrent verifies request isolation: interleaved calls with
// two different inputs must each report the dimensions of their own input,
// never the other's.
func TestAnalyze_Concurrent(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	inputs := []struct {
		req      source.Request
		wantRows int
		wantCols int
	}{
		{uploadReq("two.csv", "a,b\n1,\n2,3\n"), 2, 2},
		{uploadReq("three.csv", "x,y,z\n1,2,3\n4,5,6\n7,8,9\n"), 3, 3},
	}

	var wg sync.WaitGroup
	errc := make(chan error, 32)
	for i := 0; i < 16; i++ {
		in := inputs[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Analyze(context.Background(), "api", in.req, analysis.Request{Op: "info"})
			if err != nil {
				errc <- err
				return
			}
			if res.Info.Rows != in.wantRows || res.Info.Cols != in.wantCols {
				errc <- fmt.Errorf("%s: got (%d,%d), want (%d,%d)",
					in.req.UploadName, res.Info.Rows, res.Info.Cols, in.wantRows, in.wantCols)
			}
		}()
	}
	wg.Wait()
	close(errc)

	for err := range errc {
		t.Fatalf("concurrent Analyze: %v", err)
	}
}

//
// error taxonomy
//

// TestErrorCode verifies classification of each typed error, including
// through wrapping, and the internal fallback for everything else.
func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"load", &source.LoadError{Kind: "path", Ref: "x.csv", Err: errors.New("no such file")}, CodeLoadError},
		{"invalid op", &analysis.InvalidOpError{Name: "pivot"}, CodeInvalidOperation},
		{"compute", &analysis.ComputeError{Op: "describe", Err: errors.New("no numeric data")}, CodeComputationError},
		{"wrapped load", fmt.Errorf("handling request: %w", &source.LoadError{Kind: "url", Err: errors.New("timeout")}), CodeLoadError},
		{"plain", errors.New("disk on fire"), CodeInternal},
		{"nil-ish context", context.Canceled, CodeInternal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorCode(tc.err); got != tc.want {
				t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

// TestHTTPStatus verifies the code-to-status mapping the JSON API uses.
func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want int
	}{
		{CodeLoadError, http.StatusBadRequest},
		{CodeInvalidOperation, http.StatusBadRequest},
		{CodeComputationError, http.StatusUnprocessableEntity},
		{CodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.code, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tc.code); got != tc.want {
				t.Fatalf("HTTPStatus(%q) = %d, want %d", tc.code, got, tc.want)
			}
		})
	}
}
