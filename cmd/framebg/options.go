package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/framebg/internal/config"
)

type options struct {
	configPath string
	logFile    string
	version    bool
	quiet      bool

	strategy    string
	workers     int
	frames      int
	threshold   int
	input       string
	output      string
	pattern     string
	transport   string
	rank        int
	worldSize   int
	coordinator string
	report      string

	// set records which flags appeared on the command line.
	set map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs.StringVar(&o.configPath, "config", "", "Run configuration file (.json, .yaml or .yml)")
	fs.StringVar(&o.logFile, "log-file", "", "Also write logs to this rotating file")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.BoolVar(&o.quiet, "quiet", false, "Only log failures and skip the run summary")

	fs.StringVar(&o.strategy, "strategy", "sequential", "Execution strategy: sequential, parallel or distributed")
	fs.IntVar(&o.workers, "workers", 4, "Parallel pool size, or world size for the local distributed transport")
	fs.IntVar(&o.frames, "frames", 20, "Number of frames in the sequence")
	fs.IntVar(&o.threshold, "threshold", 30, "Foreground threshold on the grayscale difference")
	fs.StringVar(&o.input, "input", "data/input", "Directory holding the frames")
	fs.StringVar(&o.output, "output", "data/output", "Directory for the background and mask")
	fs.StringVar(&o.pattern, "pattern", "frame%d.png", "Frame file name pattern, numbered from 1")
	fs.StringVar(&o.transport, "transport", "local", "Distributed transport: local or grpc")
	fs.IntVar(&o.rank, "rank", 0, "This process's rank (grpc transport)")
	fs.IntVar(&o.worldSize, "world-size", 0, "Total number of ranks (grpc transport, 0 uses -workers)")
	fs.StringVar(&o.coordinator, "coordinator", "localhost:50061", "Coordinator address (grpc transport)")
	fs.StringVar(&o.report, "report", "", "Write a diagnostics report to this directory")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// resolveConfig layers the config file, FRAMEBG_* environment variables and
// explicitly set flags, in that order.
func resolveConfig(o *options, lookup func(string) (string, bool)) (*config.RunConfig, error) {
	cfg := config.EmptyRunConfig()
	if o.configPath != "" {
		loaded, err := config.LoadRunConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	str := func(name string, dst **string, v string) {
		if o.set[name] {
			*dst = &v
		}
	}
	num := func(name string, dst **int, v int) {
		if o.set[name] {
			*dst = &v
		}
	}
	str("strategy", &cfg.Strategy, o.strategy)
	num("workers", &cfg.Workers, o.workers)
	num("frames", &cfg.FrameCount, o.frames)
	num("threshold", &cfg.Threshold, o.threshold)
	str("input", &cfg.InputDir, o.input)
	str("output", &cfg.OutputDir, o.output)
	str("pattern", &cfg.FramePattern, o.pattern)
	str("transport", &cfg.Transport, o.transport)
	num("rank", &cfg.Rank, o.rank)
	num("world-size", &cfg.WorldSize, o.worldSize)
	str("coordinator", &cfg.CoordinatorAddr, o.coordinator)
	str("report", &cfg.ReportDir, o.report)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
