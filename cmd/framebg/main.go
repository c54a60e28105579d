// Command framebg builds a background image and foreground mask from a
// frame sequence using a sequential, parallel or distributed strategy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/version"
	"github.com/joho/godotenv"
)

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if opts.version {
		fmt.Println(version.String("framebg"))
		return
	}

	// A missing .env is normal; only a malformed one is worth reporting.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	closeLogs, err := setupLogging(opts.logFile, opts.quiet, os.Stderr)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer closeLogs()

	cfg, err := resolveConfig(opts, os.LookupEnv)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := execute(ctx, cfg, nil)
	if err != nil {
		monitoring.Logf("run failed: %v", err)
		closeLogs()
		os.Exit(1)
	}
	if res.Coordinator && !opts.quiet {
		printSummary(os.Stdout, res, cfg)
	}
}

// setupLogging routes the ops stream to stderr and, unless quiet, the diag
// stream too. With a log file every stream, trace included, also goes to a
// rotating file.
func setupLogging(logFile string, quiet bool, stderr io.Writer) (func(), error) {
	w := monitoring.LogWriters{Ops: stderr}
	if !quiet {
		w.Diag = stderr
	}
	closer := func() {}
	if logFile != "" {
		f := monitoring.NewRotatingWriter(logFile, 50, 3)
		w.Ops = io.MultiWriter(stderr, f)
		if w.Diag != nil {
			w.Diag = io.MultiWriter(stderr, f)
		} else {
			w.Diag = f
		}
		w.Trace = f
		closer = func() { f.Close() }
	}
	monitoring.SetLogWriters(w)
	if quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(log.New(stderr, "", log.LstdFlags).Printf)
	}
	return closer, nil
}
