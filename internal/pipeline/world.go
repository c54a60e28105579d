package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// RunLocalWorld runs a distributed world of size ranks inside this process,
// connected by channel links. build returns the Runner for each rank; its
// Strategy is replaced with the rank's distributed strategy. The first
// failing rank cancels the others. The coordinator's Result is returned
// once every rank is confirmed to have used the same partition.
func RunLocalWorld(ctx context.Context, size int, build func(rank int) Runner) (*Result, error) {
	comms, err := collective.NewLocalWorld(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}

	results := make([]*Result, size)
	errs := make([]error, size)
	g, gctx := errgroup.WithContext(ctx)
	for rank, comm := range comms {
		rank, comm := rank, comm
		g.Go(func() error {
			s, err := strategy.NewDistributed(comm)
			if err != nil {
				return err
			}
			defer s.Close()

			r := build(rank)
			r.Strategy = s
			res, err := r.Run(gctx)
			if err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
				return errs[rank]
			}
			results[rank] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// The coordinator's own failure explains an abort better than the
		// workers' reactions to it.
		if cerr := errs[collective.Root]; cerr != nil && !errors.Is(cerr, context.Canceled) {
			return nil, cerr
		}
		return nil, err
	}
	coord := results[collective.Root]
	for rank, res := range results {
		if !res.Partition.Equal(coord.Partition) {
			return nil, fmt.Errorf("rank %d planned %v, coordinator planned %v", rank, res.Partition.Ranges(), coord.Partition.Ranges())
		}
	}
	return coord, nil
}
