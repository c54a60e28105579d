package main

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/collective/grpclink"
	"github.com/banshee-data/framebg/internal/config"
	"github.com/banshee-data/framebg/internal/fsutil"
	"github.com/banshee-data/framebg/internal/imageio"
	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/pipeline"
	"github.com/banshee-data/framebg/internal/report"
	"github.com/banshee-data/framebg/internal/strategy"
	"github.com/fatih/color"
)

// execute runs one participant as described by cfg. A nil fsys uses the
// OS filesystem.
func execute(ctx context.Context, cfg *config.RunConfig, fsys fsutil.FileSystem) (*pipeline.Result, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	codec, err := imageio.NewCodec(fsys, cfg.GetInputDir(), cfg.GetOutputDir(), cfg.GetFramePattern())
	if err != nil {
		return nil, err
	}
	kind, err := strategy.ParseKind(cfg.GetStrategy())
	if err != nil {
		return nil, err
	}

	base := pipeline.Runner{
		Frames: codec,
		Sink:   codec,
		Config: pipeline.Config{
			FrameCount:     cfg.GetFrameCount(),
			Threshold:      cfg.GetThreshold(),
			BackgroundName: cfg.GetBackgroundName(),
			MaskName:       cfg.GetMaskName(),
		},
		KeepImages: cfg.GetReportDir() != "",
	}

	var res *pipeline.Result
	switch {
	case kind == strategy.KindDistributed && cfg.GetTransport() == "local":
		monitoring.Logf("starting %d in-process ranks", cfg.GetWorkers())
		res, err = pipeline.RunLocalWorld(ctx, cfg.GetWorkers(), func(rank int) pipeline.Runner {
			return base
		})
	default:
		var s strategy.Strategy
		s, err = newStrategy(ctx, kind, cfg)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		base.Strategy = s
		res, err = base.Run(ctx)
	}
	if err != nil {
		return nil, err
	}

	if res.Coordinator && cfg.GetReportDir() != "" {
		if _, err := report.Write(fsys, cfg.GetReportDir(), res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// newStrategy builds a single-process strategy, joining the gRPC world for
// the distributed kind.
func newStrategy(ctx context.Context, kind string, cfg *config.RunConfig) (strategy.Strategy, error) {
	if kind != strategy.KindDistributed {
		return strategy.New(kind, cfg.GetWorkers(), nil)
	}

	rank, size := cfg.GetRank(), cfg.GetWorldSize()
	if rank >= size {
		return nil, fmt.Errorf("rank %d outside world of size %d", rank, size)
	}
	joinCtx, cancel := context.WithTimeout(ctx, cfg.GetConnectTimeout())
	defer cancel()

	var comm collective.Communicator
	if rank == collective.Root {
		lis, err := net.Listen("tcp", cfg.GetCoordinatorAddr())
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.GetCoordinatorAddr(), err)
		}
		monitoring.Logf("coordinator listening on %s for %d workers", lis.Addr(), size-1)
		coord, err := grpclink.Serve(joinCtx, lis, size)
		if err != nil {
			return nil, err
		}
		comm = coord
	} else {
		monitoring.Logf("rank %d joining %s", rank, cfg.GetCoordinatorAddr())
		c, err := grpclink.Dial(joinCtx, cfg.GetCoordinatorAddr(), rank, size)
		if err != nil {
			return nil, err
		}
		comm = c
	}
	return strategy.NewDistributed(comm)
}

// printSummary prints the run parameters and timing.
func printSummary(w io.Writer, res *pipeline.Result, cfg *config.RunConfig) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgHiBlack)
	ok := color.New(color.FgGreen, color.Bold)

	header.Fprintf(w, "framebg run %s\n", res.RunID)
	row := func(name string, format string, args ...any) {
		label.Fprintf(w, "  %-16s", name)
		fmt.Fprintf(w, format+"\n", args...)
	}
	row("Processing time", "%s", res.Elapsed)
	row("Strategy", "%s", res.Strategy)
	row("Workers", "%d", res.Workers)
	row("Frames", "%d", res.FrameCount)
	row("Image", "%dx%d", res.Width, res.Height)
	row("Threshold", "%d", res.Threshold)
	row("Foreground", "%d pixels (%.2f%%)", res.Foreground, 100*float64(res.Foreground)/float64(res.Width*res.Height))
	ok.Fprintf(w, "wrote %s and %s to %s\n", cfg.GetBackgroundName(), cfg.GetMaskName(), cfg.GetOutputDir())
	if dir := cfg.GetReportDir(); dir != "" {
		label.Fprintf(w, "report in %s\n", dir)
	}
}
