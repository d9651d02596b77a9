// Command stat runs one analysis operation over one or more inputs and
// prints the results. Inputs are local paths, http(s) URLs, Google Sheet
// references (sheet:<id-or-url> or a docs.google.com link) or "-" for
// stdin. With several inputs the work is spread over a small worker pool
// and results are printed one block per input.
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

	"github.com/joho/godotenv"

	"tabstat/internal/analysis"
	"tabstat/internal/batch"
	"tabstat/internal/config"
	"tabstat/internal/server"
	"tabstat/internal/source"
	"tabstat/internal/source/sheets"

	// register all SQL drivers so any configured source works.
	_ "tabstat/internal/source/sqlds/all"
)

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// runConfig holds the parsed command line.
type runConfig struct {
	Op       string
	Column   string
	Format   string
	Encoding string
	JSON     bool
	Workers  int
	Verbose  bool
	Inputs   []string
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	})
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: every input analyzed.
//   - 1: at least one input failed to load or analyze.
//   - 2: configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Stdin == nil {
		d.Stdin = strings.NewReader("")
	}

	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	conf, err := config.Load("")
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := source.NewResolver(source.Config{
		MaxBytes:           conf.MaxInputBytes,
		MaxSQLRows:         conf.MaxSQLRows,
		HTTPTimeout:        conf.HTTPTimeout(),
		InsecureSkipVerify: conf.InsecureSkipVerify,
		Sheets: sheets.Config{
			Token:         conf.SheetsToken,
			APIKey:        conf.SheetsAPIKey,
			SheetsBaseURL: conf.SheetsBaseURL,
			DriveBaseURL:  conf.DriveBaseURL,
		},
	})

	inputs := make([]batch.Input, 0, len(flags.Inputs))
	for _, arg := range flags.Inputs {
		req, err := requestFor(arg, d.Stdin, conf.MaxInputBytes)
		if err != nil {
			fmt.Fprintf(d.Stderr, "stat: %v\n", err)
			return 1
		}
		req.Format = flags.Format
		req.Encoding = flags.Encoding
		inputs = append(inputs, batch.Input{Request: req})
	}

	ops := []analysis.Request{{Op: flags.Op, Column: flags.Column}}
	outcomes := batch.Run(ctx, res, inputs, ops, flags.Workers)

	if flags.Verbose {
		for _, o := range outcomes {
			status := "ok"
			if o.Err != nil {
				status = server.ErrorCode(o.Err)
			}
			fmt.Fprintf(d.Stderr, "stat: %s: %s\n", o.Name, status)
		}
	}

	if len(outcomes) == 1 {
		return printSingle(d, outcomes[0], flags.JSON)
	}
	return printBatch(d, outcomes, flags.JSON)
}

// requestFor classifies one command-line input. "-" drains stdin into an
// upload so piped data flows through the same size cap as everything else.
func requestFor(arg string, stdin io.Reader, maxBytes int64) (source.Request, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(io.LimitReader(stdin, maxBytes+1))
		if err != nil {
			return source.Request{}, fmt.Errorf("read stdin: %w", err)
		}
		return source.Request{UploadName: "stdin", UploadData: data}, nil
	case strings.HasPrefix(arg, "sheet:"):
		return source.Request{Sheet: strings.TrimPrefix(arg, "sheet:")}, nil
	case strings.Contains(arg, "docs.google.com/spreadsheets"):
		return source.Request{Sheet: arg}, nil
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		return source.Request{URL: arg}, nil
	default:
		return source.Request{Path: arg}, nil
	}
}

// printSingle renders a lone outcome without block headers. Errors go to
// stderr with their category code.
func printSingle(d deps, o batch.Outcome, asJSON bool) int {
	if o.Err != nil {
		fmt.Fprintf(d.Stderr, "stat: %s: %v\n", server.ErrorCode(o.Err), o.Err)
		return 1
	}
	r := o.Results[0]
	if asJSON {
		writeJSON(d.Stdout, r)
		return 0
	}
	fmt.Fprint(d.Stdout, r.Text())
	return 0
}

// outcomeJSON is the -json shape for batch runs.
type outcomeJSON struct {
	Name   string           `json:"name"`
	Result *analysis.Result `json:"result,omitempty"`
	Error  *errorJSON       `json:"error,omitempty"`
}

type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// printBatch renders one block per input and reports failure if any input
// failed.
func printBatch(d deps, outcomes []batch.Outcome, asJSON bool) int {
	failed := 0

	if asJSON {
		out := make([]outcomeJSON, 0, len(outcomes))
		for _, o := range outcomes {
			oj := outcomeJSON{Name: o.Name}
			if o.Err != nil {
				failed++
				oj.Error = &errorJSON{Code: server.ErrorCode(o.Err), Message: o.Err.Error()}
			} else {
				r := o.Results[0]
				oj.Result = &r
			}
			out = append(out, oj)
		}
		writeJSON(d.Stdout, out)
	} else {
		for i, o := range outcomes {
			if i > 0 {
				fmt.Fprintln(d.Stdout)
			}
			fmt.Fprintf(d.Stdout, "== %s ==\n", o.Name)
			if o.Err != nil {
				failed++
				fmt.Fprintf(d.Stdout, "%s: %v\n", server.ErrorCode(o.Err), o.Err)
				continue
			}
			fmt.Fprint(d.Stdout, o.Results[0].Text())
		}
	}

	if failed > 0 {
		fmt.Fprintf(d.Stderr, "stat: %d of %d inputs failed\n", failed, len(outcomes))
		return 1
	}
	return 0
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// parseFlags parses command arguments without exiting the process.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("stat", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage: %s [flags] <path|url|sheet:ref|-> [more inputs...]\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.Op, "op", "info", "operation to run (describe, missing-values, info, duplicates)")
	fs.StringVar(&cfg.Column, "column", "", "restrict describe to one column")
	fs.StringVar(&cfg.Format, "format", "", "force the input format (csv, tsv, xlsx, json, html)")
	fs.StringVar(&cfg.Encoding, "encoding", "", "text encoding of the input (utf-8, latin-1, windows-1252)")
	fs.BoolVar(&cfg.JSON, "json", false, "print results as JSON instead of text")
	fs.IntVar(&cfg.Workers, "workers", batch.DefaultWorkers, "max inputs analyzed concurrently")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	cfg.Inputs = fs.Args()
	if len(cfg.Inputs) == 0 {
		fs.Usage()
		return runConfig{}, fmt.Errorf("missing input: give at least one path, URL or sheet\n\n%s", usageBuf.String())
	}
	if cfg.Workers <= 0 {
		return runConfig{}, errors.New("-workers must be > 0")
	}
	return cfg, nil
}
