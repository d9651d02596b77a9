package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// fakeClient scripts the MCP surface without a server.
type fakeClient struct {
	initErr  error
	tools    []mcp.Tool
	listErr  error
	result   *mcp.CallToolResult
	callErr  error
	lastCall mcp.CallToolRequest
	closed   bool
}

func (f *fakeClient) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcp.InitializeResult{}, nil
}

func (f *fakeClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCall = req
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.result, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

// dialTo wires a fake into deps and records the dialed URL.
func dialTo(f *fakeClient, gotURL *string) func(context.Context, string) (mcpClient, error) {
	return func(ctx context.Context, url string) (mcpClient, error) {
		if gotURL != nil {
			*gotURL = url
		}
		return f, nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

// TestParseFlags validates flag parsing and defaults.
func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      []string
		wantErr   string
		wantField func(t *testing.T, cfg runConfig)
	}{
		{
			name: "defaults",
			args: []string{},
			wantField: func(t *testing.T, cfg runConfig) {
				if cfg.URL != "http://127.0.0.1:8080/mcp" {
					t.Fatalf("URL=%q, want default endpoint", cfg.URL)
				}
				if cfg.Tool != "analyze" || cfg.Op != "info" {
					t.Fatalf("Tool=%q Op=%q, want analyze/info", cfg.Tool, cfg.Op)
				}
			},
		},
		{
			name: "convenience_flags",
			args: []string{"-op", "describe", "-path", "/data/x.csv", "-column", "a"},
			wantField: func(t *testing.T, cfg runConfig) {
				if cfg.Op != "describe" || cfg.Path != "/data/x.csv" || cfg.Column != "a" {
					t.Fatalf("cfg=%+v, want describe//data/x.csv/a", cfg)
				}
			},
		},
		{
			name:    "positional_rejected",
			args:    []string{"extra.csv"},
			wantErr: "unexpected argument",
		},
		{
			name:    "unknown_flag",
			args:    []string{"-nope"},
			wantErr: "Usage of agent",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := parseFlags(tc.args)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("parseFlags() err=%v, want contains %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags() err=%v, want nil", err)
			}
			if tc.wantField != nil {
				tc.wantField(t, cfg)
			}
		})
	}
}

// TestToolArguments verifies -args JSON wins over convenience flags and bad
// JSON is a usage error.
func TestToolArguments(t *testing.T) {
	t.Parallel()

	m, err := toolArguments(runConfig{Args: `{"operation":"info","csv_data":"a\n1\n"}`, Op: "describe"})
	if err != nil {
		t.Fatalf("toolArguments() err=%v", err)
	}
	if m["operation"] != "info" || m["csv_data"] != "a\n1\n" {
		t.Fatalf("arguments=%v, want raw JSON to win", m)
	}

	m, err = toolArguments(runConfig{Op: "describe", Path: "/x.csv", Column: "a"})
	if err != nil {
		t.Fatalf("toolArguments() err=%v", err)
	}
	if m["operation"] != "describe" || m["path"] != "/x.csv" || m["column"] != "a" {
		t.Fatalf("arguments=%v, want convenience assembly", m)
	}
	if _, ok := m["url"]; ok {
		t.Fatalf("arguments=%v, empty flags must be omitted", m)
	}

	if _, err := toolArguments(runConfig{Args: "{not json"}); err == nil {
		t.Fatalf("toolArguments() err=nil, want JSON error")
	}
}

// TestRun_List prints one line per tool.
func TestRun_List(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{tools: []mcp.Tool{
		{Name: "analyze", Description: "Load a dataset and run one operation.\nMore detail."},
		{Name: "list_operations", Description: "List the operations."},
	}}
	var out, errOut bytes.Buffer
	var gotURL string

	code := run(context.Background(), []string{"-list", "-url", "http://example.test/mcp"}, deps{
		Stdout: &out,
		Stderr: &errOut,
		Dial:   dialTo(fake, &gotURL),
	})

	if code != 0 {
		t.Fatalf("run()=%d, want 0; stderr=%q", code, errOut.String())
	}
	if gotURL != "http://example.test/mcp" {
		t.Fatalf("dialed %q, want the -url value", gotURL)
	}
	got := out.String()
	if !strings.Contains(got, "analyze\tLoad a dataset and run one operation.") {
		t.Fatalf("stdout=%q, want first description line only", got)
	}
	if !strings.Contains(got, "list_operations") {
		t.Fatalf("stdout=%q, want second tool", got)
	}
	if !fake.closed {
		t.Fatalf("client not closed")
	}
}

// TestRun_CallText verifies the default invocation path: analyze with
// convenience flags, text block to stdout.
func TestRun_CallText(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{result: textResult("total missing cells: 1")}
	var out, errOut bytes.Buffer

	code := run(context.Background(), []string{"-op", "missing-values", "-path", "/data/x.csv"}, deps{
		Stdout: &out,
		Stderr: &errOut,
		Dial:   dialTo(fake, nil),
	})

	if code != 0 {
		t.Fatalf("run()=%d, want 0; stderr=%q", code, errOut.String())
	}
	if got := out.String(); !strings.Contains(got, "total missing cells: 1") {
		t.Fatalf("stdout=%q, want tool text", got)
	}

	if fake.lastCall.Params.Name != "analyze" {
		t.Fatalf("called tool %q, want analyze", fake.lastCall.Params.Name)
	}
	args := fake.lastCall.GetArguments()
	if args["operation"] != "missing-values" || args["path"] != "/data/x.csv" {
		t.Fatalf("arguments=%v, want op and path", args)
	}
}

// TestRun_ToolError verifies IsError results exit 1 with the message on
// stderr.
func TestRun_ToolError(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.NewTextContent("LOAD_ERROR: no such file")},
	}}
	var out, errOut bytes.Buffer

	code := run(context.Background(), []string{"-path", "/no/such.csv"}, deps{
		Stdout: &out,
		Stderr: &errOut,
		Dial:   dialTo(fake, nil),
	})

	if code != 1 {
		t.Fatalf("run()=%d, want 1", code)
	}
	if got := errOut.String(); !strings.Contains(got, "LOAD_ERROR") {
		t.Fatalf("stderr=%q, want classified message", got)
	}
	if out.Len() != 0 {
		t.Fatalf("stdout=%q, want empty on tool error", out.String())
	}
}

// TestRun_JSONStructured verifies -json prints the structured payload.
func TestRun_JSONStructured(t *testing.T) {
	t.Parallel()

	res := textResult("rows: 2  columns: 2")
	res.StructuredContent = map[string]any{"op": "info", "rows": 2}
	fake := &fakeClient{result: res}
	var out, errOut bytes.Buffer

	code := run(context.Background(), []string{"-json", "-path", "/data/x.csv"}, deps{
		Stdout: &out,
		Stderr: &errOut,
		Dial:   dialTo(fake, nil),
	})

	if code != 0 {
		t.Fatalf("run()=%d, want 0; stderr=%q", code, errOut.String())
	}

	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal(%q): %v", out.String(), err)
	}
	if decoded["op"] != "info" {
		t.Fatalf("decoded=%v, want op=info", decoded)
	}
}

// TestRun_TransportErrors verifies connect and call failures exit 1.
func TestRun_TransportErrors(t *testing.T) {
	t.Parallel()

	t.Run("dial", func(t *testing.T) {
		t.Parallel()

		var out, errOut bytes.Buffer
		code := run(context.Background(), nil, deps{
			Stdout: &out,
			Stderr: &errOut,
			Dial: func(ctx context.Context, url string) (mcpClient, error) {
				return nil, errors.New("connection refused")
			},
		})
		if code != 1 {
			t.Fatalf("run()=%d, want 1", code)
		}
		if got := errOut.String(); !strings.Contains(got, "connection refused") {
			t.Fatalf("stderr=%q, want dial error", got)
		}
	})

	t.Run("initialize", func(t *testing.T) {
		t.Parallel()

		fake := &fakeClient{initErr: errors.New("handshake failed")}
		var out, errOut bytes.Buffer
		code := run(context.Background(), nil, deps{Stdout: &out, Stderr: &errOut, Dial: dialTo(fake, nil)})
		if code != 1 {
			t.Fatalf("run()=%d, want 1", code)
		}
		if got := errOut.String(); !strings.Contains(got, "handshake failed") {
			t.Fatalf("stderr=%q, want initialize error", got)
		}
	})

	t.Run("call", func(t *testing.T) {
		t.Parallel()

		fake := &fakeClient{callErr: errors.New("stream reset")}
		var out, errOut bytes.Buffer
		code := run(context.Background(), nil, deps{Stdout: &out, Stderr: &errOut, Dial: dialTo(fake, nil)})
		if code != 1 {
			t.Fatalf("run()=%d, want 1", code)
		}
		if got := errOut.String(); !strings.Contains(got, "stream reset") {
			t.Fatalf("stderr=%q, want call error", got)
		}
	})
}

// TestRun_UsageErrors verifies bad flags and bad -args JSON exit 2.
func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"-nope"},
		{"-args", "{not json"},
	} {
		var out, errOut bytes.Buffer
		code := run(context.Background(), args, deps{Stdout: &out, Stderr: &errOut})
		if code != 2 {
			t.Fatalf("run(%v)=%d, want 2; stderr=%q", args, code, errOut.String())
		}
	}
}
