package strategy

import (
	"context"
	"fmt"

	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/partition"
)

// Distributed moves planes between ranks with collective operations. Every
// rank must call Map with the same partition and job.
type Distributed struct {
	comm collective.Communicator
}

var _ Strategy = (*Distributed)(nil)

// NewDistributed wraps a communicator.
func NewDistributed(comm collective.Communicator) (*Distributed, error) {
	if comm == nil {
		return nil, fmt.Errorf("strategy: distributed strategy needs a communicator")
	}
	return &Distributed{comm: comm}, nil
}

func (d *Distributed) Name() string      { return KindDistributed }
func (d *Distributed) Workers() int      { return d.comm.Size() }
func (d *Distributed) Coordinator() bool { return d.comm.Rank() == collective.Root }

// Rank returns this participant's rank.
func (d *Distributed) Rank() int { return d.comm.Rank() }

// Broadcast implements Strategy.
func (d *Distributed) Broadcast(ctx context.Context, vals []int) error {
	return d.comm.Bcast(ctx, vals)
}

// Barrier implements Strategy.
func (d *Distributed) Barrier(ctx context.Context) error {
	return d.comm.Barrier(ctx)
}

// Close closes the communicator.
func (d *Distributed) Close() error { return d.comm.Close() }

// Map implements Strategy. Each plane is scattered and gathered with its
// own call so channel samples are never interleaved within a transfer.
func (d *Distributed) Map(ctx context.Context, part partition.Partition, job Job, in, out [][]int) (int, error) {
	if part.Workers() != d.comm.Size() {
		return 0, fmt.Errorf("strategy: partition has %d ranges for %d ranks", part.Workers(), d.comm.Size())
	}
	if d.Coordinator() {
		if err := checkBuffers(part, job, in, out); err != nil {
			return 0, err
		}
	} else if job.Kernel == nil {
		return 0, fmt.Errorf("strategy: job %q has no kernel", job.Name)
	}

	rank := d.Rank()
	mine := part.Range(rank)

	localIn := make([][]int, job.Inputs)
	for k := range localIn {
		var send []int
		if d.Coordinator() {
			send = in[k]
		}
		slice, err := d.comm.Scatterv(ctx, send, part)
		if err != nil {
			return 0, fmt.Errorf("strategy: scatter %s input %d: %w", job.Name, k, err)
		}
		localIn[k] = slice
	}

	localOut := make([][]int, job.Outputs)
	for k := range localOut {
		localOut[k] = make([]int, mine.Count)
	}
	tally, err := job.Kernel(localIn, localOut)
	if err != nil {
		return 0, fmt.Errorf("strategy: rank %d job %q: %w", rank, job.Name, err)
	}

	for k := range localOut {
		var recv []int
		if d.Coordinator() {
			recv = out[k]
		}
		if err := d.comm.Gatherv(ctx, localOut[k], part, recv); err != nil {
			return 0, fmt.Errorf("strategy: gather %s output %d: %w", job.Name, k, err)
		}
	}

	var total []int
	if d.Coordinator() {
		total = make([]int, 1)
	}
	if err := d.comm.ReduceSum(ctx, []int{tally}, total); err != nil {
		return 0, fmt.Errorf("strategy: reduce %s tally: %w", job.Name, err)
	}
	logs.Tracef("distributed %s: rank=%d range=%v local tally=%d", job.Name, rank, mine, tally)
	if !d.Coordinator() {
		return tally, nil
	}
	return total[0], nil
}
