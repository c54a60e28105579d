package strategy

import (
	"context"
	"fmt"

	"github.com/banshee-data/framebg/internal/partition"
	"golang.org/x/sync/errgroup"
)

// Parallel runs one goroutine per partition range over shared buffers.
// Each goroutine writes only the indices of its own range.
type Parallel struct {
	workers int
}

var _ Strategy = (*Parallel)(nil)

// NewParallel returns a pool of the given size.
func NewParallel(workers int) (*Parallel, error) {
	if workers < 1 {
		return nil, fmt.Errorf("strategy: parallel worker count must be at least 1, got %d", workers)
	}
	return &Parallel{workers: workers}, nil
}

func (p *Parallel) Name() string      { return KindParallel }
func (p *Parallel) Workers() int      { return p.workers }
func (p *Parallel) Coordinator() bool { return true }

// Broadcast is a no-op: every goroutine already shares the caller's memory.
func (p *Parallel) Broadcast(context.Context, []int) error { return nil }

func (p *Parallel) Barrier(context.Context) error { return nil }

func (p *Parallel) Close() error { return nil }

// Map implements Strategy.
func (p *Parallel) Map(ctx context.Context, part partition.Partition, job Job, in, out [][]int) (int, error) {
	if err := checkBuffers(part, job, in, out); err != nil {
		return 0, err
	}

	tallies := make([]int, part.Workers())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, r := range part.Ranges() {
		i, r := i, r
		if r.Empty() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := job.Kernel(views(in, r), views(out, r))
			if err != nil {
				return fmt.Errorf("strategy: job %q range %v: %w", job.Name, r, err)
			}
			tallies[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range tallies {
		total += n
	}
	logs.Tracef("parallel %s: %d ranges, tally %d", job.Name, part.Workers(), total)
	return total, nil
}
