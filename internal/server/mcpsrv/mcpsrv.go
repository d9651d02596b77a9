// Package mcpsrv exposes the analysis service over the Model Context
// Protocol so assistants can run operations programmatically.
//
// Tools are stateless: every call carries its own input reference, the
// dataset is built, analyzed and discarded inside the call. There are no
// dataset handles and no session affinity, so concurrent calls never
// interact.
//
// Tool failures come back as tool results with an error flag and a
// category prefix in the text (LOAD_ERROR, INVALID_OPERATION,
// COMPUTATION_ERROR, VALIDATION, ...); Go errors are reserved for
// protocol-level trouble.
package mcpsrv

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"tabstat/internal/analysis"
	"tabstat/internal/server"
	"tabstat/internal/source"
)

// tools bundles the handlers so tests can call them without a transport.
type tools struct {
	svc *server.Service
}

// New builds the MCP server with every tool registered.
func New(svc *server.Service, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"tabstat",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	t := &tools{svc: svc}
	registerAnalysisTools(s, t)
	registerSheetTools(s, t)
	return s
}

// HTTPHandler wraps s for mounting under /mcp next to the web routes.
func HTTPHandler(s *mcpserver.MCPServer) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(true))
}

// ServeStdio runs s over stdin/stdout until the peer disconnects.
func ServeStdio(s *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(s)
}

//
// analysis tools
//

// analyzeInput names one operation and exactly one input reference.
type analyzeInput struct {
	Operation string `json:"operation" jsonschema_description:"Operation name, see list_operations"`
	Path      string `json:"path,omitempty" jsonschema_description:"Local file path on the server host"`
	URL       string `json:"url,omitempty" jsonschema_description:"HTTP(S) URL of the input file"`
	Sheet     string `json:"sheet,omitempty" jsonschema_description:"Google Sheet URL or spreadsheet ID"`
	CSVData   string `json:"csv_data,omitempty" jsonschema_description:"Inline CSV text"`
	Column    string `json:"column,omitempty" jsonschema_description:"Restrict describe to one column"`
	Format    string `json:"format,omitempty" jsonschema_description:"Force the input format instead of detecting it"`
	Encoding  string `json:"encoding,omitempty" jsonschema_description:"Source text encoding for CSV inputs"`
}

type listOperationsOutput struct {
	Operations []analysis.OpInfo `json:"operations"`
}

func registerAnalysisTools(s *mcpserver.MCPServer, t *tools) {
	names := make([]string, 0)
	for _, op := range analysis.Operations() {
		names = append(names, op.Name)
	}

	analyzeTool := mcp.NewTool(
		"analyze",
		mcp.WithDescription("Load a tabular input and run one statistics operation against it"),
		mcp.WithString("operation", mcp.Required(), mcp.Enum(names...), mcp.Description("Operation to run")),
		mcp.WithString("path", mcp.Description("Local file path on the server host")),
		mcp.WithString("url", mcp.Description("HTTP(S) URL of the input file")),
		mcp.WithString("sheet", mcp.Description("Google Sheet URL or spreadsheet ID")),
		mcp.WithString("csv_data", mcp.Description("Inline CSV text, used instead of a file reference")),
		mcp.WithString("column", mcp.Description("Restrict describe to one column")),
		mcp.WithString("format", mcp.Enum("csv", "tsv", "xlsx", "json", "html"), mcp.Description("Force the input format instead of detecting it")),
		mcp.WithString("encoding", mcp.Enum("utf-8", "latin-1", "windows-1252"), mcp.Description("Source text encoding for CSV inputs")),
		mcp.WithOutputSchema[analysis.Result](),
	)
	s.AddTool(analyzeTool, mcp.NewTypedToolHandler(t.analyze))

	listTool := mcp.NewTool(
		"list_operations",
		mcp.WithDescription("List the available analysis operations with one-line descriptions"),
		mcp.WithOutputSchema[listOperationsOutput](),
	)
	s.AddTool(listTool, mcp.NewTypedToolHandler(t.listOperations))
}

func (t *tools) analyze(ctx context.Context, req mcp.CallToolRequest, in analyzeInput) (*mcp.CallToolResult, error) {
	given := 0
	for _, v := range []string{in.Path, in.URL, in.Sheet, in.CSVData} {
		if strings.TrimSpace(v) != "" {
			given++
		}
	}
	if given == 0 {
		return mcp.NewToolResultError("LOAD_ERROR: one of path, url, sheet or csv_data is required"), nil
	}
	if given > 1 {
		return mcp.NewToolResultError("LOAD_ERROR: give exactly one of path, url, sheet or csv_data"), nil
	}

	src := source.Request{
		Path:     in.Path,
		URL:      in.URL,
		Sheet:    in.Sheet,
		Format:   in.Format,
		Encoding: in.Encoding,
	}
	if in.CSVData != "" {
		src.UploadName = "inline.csv"
		src.UploadData = []byte(in.CSVData)
	}

	res, err := t.svc.Analyze(ctx, "mcp", src, analysis.Request{Op: in.Operation, Column: in.Column})
	if err != nil {
		return toolError(err), nil
	}

	text := res.Text()
	out := mcp.NewToolResultStructured(res, text)
	out.Content = []mcp.Content{mcp.NewTextContent(text)}
	return out, nil
}

func (t *tools) listOperations(ctx context.Context, req mcp.CallToolRequest, in struct{}) (*mcp.CallToolResult, error) {
	ops := analysis.Operations()
	var b strings.Builder
	for _, op := range ops {
		fmt.Fprintf(&b, "%s: %s\n", op.Name, op.Doc)
	}
	out := mcp.NewToolResultStructured(listOperationsOutput{Operations: ops}, b.String())
	out.Content = []mcp.Content{mcp.NewTextContent(b.String())}
	return out, nil
}

// toolError renders err with its category prefix.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(server.ErrorCode(err) + ": " + err.Error())
}
