// Command tabstat serves the statistics service: the HTML page and JSON
// API on one address, with the MCP surface mounted at /mcp (or on stdio
// with -stdio for assistant subprocess use).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tabstat/internal/config"
	"tabstat/internal/metrics"
	"tabstat/internal/metrics/datadog"
	"tabstat/internal/metrics/prompush"
	"tabstat/internal/server"
	"tabstat/internal/server/mcpsrv"
	"tabstat/internal/server/web"
	"tabstat/internal/source"
	"tabstat/internal/source/sheets"

	// register all SQL drivers so any configured source works.
	_ "tabstat/internal/source/sqlds/all"
)

const version = "0.3.0"

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer
}

// runFlags holds the parsed command line. Flags override config file and
// environment values.
type runFlags struct {
	ConfigFile  string
	Addr        string
	Stdio       bool
	Metrics     string
	Verbose     bool
	ShowVersion bool
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	os.Exit(code)
}

// run executes the server command and returns an exit code.
//
// Exit codes:
//   - 0: clean shutdown.
//   - 1: the server failed while running.
//   - 2: configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	if flags.ShowVersion {
		fmt.Fprintln(d.Stdout, "tabstat "+version)
		return 0
	}

	// A missing .env is fine; explicit config comes from -config.
	_ = godotenv.Load()

	conf, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	if flags.Addr != "" {
		conf.Addr = flags.Addr
	}
	if flags.Metrics != "" {
		switch flags.Metrics {
		case "none", "datadog", "pushgateway":
			conf.Metrics = flags.Metrics
		default:
			fmt.Fprintf(d.Stderr, "-metrics %q: want none, datadog or pushgateway\n", flags.Metrics)
			return 2
		}
	}
	if flags.Verbose {
		conf.Verbose = true
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	closeMetrics := initMetrics(ctx, conf)
	defer closeMetrics()

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
	svc := &server.Service{Resolver: res}
	mcpServer := mcpsrv.New(svc, version)

	if flags.Stdio {
		log.Printf("tabstat %s: serving MCP on stdio", version)
		if err := mcpsrv.ServeStdio(mcpServer); err != nil {
			log.Printf("mcp stdio: %v", err)
			return 1
		}
		return 0
	}

	webHandler := web.NewHandler(svc, web.Options{
		CORSOrigin: conf.CORSOrigin,
		Verbose:    conf.Verbose,
		Version:    version,
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpsrv.HTTPHandler(mcpServer))
	mux.Handle("/", webHandler.Routes())

	httpServer := &http.Server{
		Addr:              conf.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Printf("tabstat %s: listening on %s (web, /api, /mcp)", version, conf.Addr)

	select {
	case err := <-errCh:
		log.Printf("server: %v", err)
		return 1
	case <-ctx.Done():
	}

	log.Printf("tabstat: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
		return 1
	}
	return 0
}

// initMetrics wires the configured backend and returns its shutdown hook.
// Backend failures log and fall back to the nop backend; metrics never take
// the service down.
func initMetrics(ctx context.Context, conf *config.Config) func() {
	switch conf.Metrics {
	case "pushgateway":
		b, err := prompush.NewBackend("tabstat", conf.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: pushgateway init failed: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=pushgateway url=%s", conf.PushgatewayURL)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush: %v", err)
			}
		}

	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    "tabstat",
			Env:        conf.MetricsEnv,
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: conf.MetricsInterval(),
		})
		if err != nil {
			log.Printf("metrics: datadog init failed: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=datadog env=%s flush=%s", conf.MetricsEnv, conf.MetricsInterval())
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits once more.
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close: %v", err)
			}
		}

	case "", "none":
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", conf.Metrics)
		return func() {}
	}
}

// parseFlags parses command arguments without exiting the process.
func parseFlags(args []string) (runFlags, error) {
	fs := flag.NewFlagSet("tabstat", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var f runFlags
	fs.StringVar(&f.ConfigFile, "config", "", "config file path (default: tabstat.yaml in the working directory, if present)")
	fs.StringVar(&f.Addr, "addr", "", "listen address, overrides config (e.g. :8080)")
	fs.BoolVar(&f.Stdio, "stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	fs.StringVar(&f.Metrics, "metrics", "", "metrics backend, overrides config (none, datadog, pushgateway)")
	fs.BoolVar(&f.Verbose, "v", false, "log every request")
	fs.BoolVar(&f.ShowVersion, "version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runFlags{}, errors.New(usageBuf.String())
		}
		return runFlags{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	return f, nil
}
