// Command agent talks to a running tabstat MCP endpoint: list the tools it
// exposes or invoke one. It is the programmatic twin of the web page,
// useful for scripting and for checking what an assistant wired to the
// server would see.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const version = "0.3.0"

// mcpClient is the slice of the MCP client surface the command needs.
// *client.Client satisfies it; tests substitute a fake.
type mcpClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// Dial opens a started client against url. Nil uses the streamable
	// HTTP transport.
	Dial func(ctx context.Context, url string) (mcpClient, error)
}

// runConfig holds the parsed command line.
type runConfig struct {
	URL    string
	List   bool
	Tool   string
	Args   string
	JSON   bool
	Op     string
	Path   string
	URLIn  string
	Sheet  string
	Column string
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: transport failure or the tool reported an error.
//   - 2: configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Dial == nil {
		d.Dial = dialStreamable
	}

	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	arguments, err := toolArguments(flags)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := d.Dial(ctx, flags.URL)
	if err != nil {
		fmt.Fprintf(d.Stderr, "agent: connect %s: %v\n", flags.URL, err)
		return 1
	}
	defer c.Close()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "tabstat-agent", Version: version}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		fmt.Fprintf(d.Stderr, "agent: initialize: %v\n", err)
		return 1
	}

	if flags.List {
		return listTools(ctx, d, c)
	}
	return callTool(ctx, d, c, flags.Tool, arguments, flags.JSON)
}

// dialStreamable opens the production transport.
func dialStreamable(ctx context.Context, url string) (mcpClient, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func listTools(ctx context.Context, d deps, c mcpClient) int {
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		fmt.Fprintf(d.Stderr, "agent: list tools: %v\n", err)
		return 1
	}
	for _, tool := range res.Tools {
		desc := tool.Description
		if i := strings.IndexByte(desc, '\n'); i >= 0 {
			desc = desc[:i]
		}
		fmt.Fprintf(d.Stdout, "%s\t%s\n", tool.Name, desc)
	}
	return 0
}

func callTool(ctx context.Context, d deps, c mcpClient, name string, arguments map[string]any, asJSON bool) int {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	res, err := c.CallTool(ctx, req)
	if err != nil {
		fmt.Fprintf(d.Stderr, "agent: call %s: %v\n", name, err)
		return 1
	}

	text := textBlocks(res)
	if res.IsError {
		fmt.Fprintf(d.Stderr, "agent: %s\n", text)
		return 1
	}

	if asJSON && res.StructuredContent != nil {
		enc := json.NewEncoder(d.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.StructuredContent); err != nil {
			fmt.Fprintf(d.Stderr, "agent: encode result: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintln(d.Stdout, text)
	return 0
}

// textBlocks joins the text content blocks of a tool result.
func textBlocks(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toolArguments builds the argument map: -args raw JSON wins, otherwise the
// convenience flags are assembled into an analyze-shaped map.
func toolArguments(flags runConfig) (map[string]any, error) {
	if flags.Args != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(flags.Args), &m); err != nil {
			return nil, fmt.Errorf("-args must be a JSON object: %v", err)
		}
		return m, nil
	}

	m := map[string]any{}
	if flags.Op != "" {
		m["operation"] = flags.Op
	}
	if flags.Path != "" {
		m["path"] = flags.Path
	}
	if flags.URLIn != "" {
		m["url"] = flags.URLIn
	}
	if flags.Sheet != "" {
		m["sheet"] = flags.Sheet
	}
	if flags.Column != "" {
		m["column"] = flags.Column
	}
	return m, nil
}

// parseFlags parses command arguments without exiting the process.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.URL, "url", "http://127.0.0.1:8080/mcp", "MCP endpoint to connect to")
	fs.BoolVar(&cfg.List, "list", false, "list the server's tools and exit")
	fs.StringVar(&cfg.Tool, "tool", "analyze", "tool to invoke")
	fs.StringVar(&cfg.Args, "args", "", "tool arguments as a raw JSON object (overrides the convenience flags)")
	fs.BoolVar(&cfg.JSON, "json", false, "print the structured result instead of the text block")
	fs.StringVar(&cfg.Op, "op", "info", "analyze operation (describe, missing-values, info, duplicates)")
	fs.StringVar(&cfg.Path, "path", "", "analyze a server-local file path")
	fs.StringVar(&cfg.URLIn, "url-input", "", "analyze a dataset fetched from this URL")
	fs.StringVar(&cfg.Sheet, "sheet", "", "analyze a Google Sheet (id or link)")
	fs.StringVar(&cfg.Column, "column", "", "restrict describe to one column")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if len(fs.Args()) > 0 {
		fs.Usage()
		return runConfig{}, fmt.Errorf("unexpected argument %q; inputs are given via flags\n\n%s", fs.Args()[0], usageBuf.String())
	}
	return cfg, nil
}
