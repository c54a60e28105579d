package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/partition"
)

var logs = monitoring.NewStreams("[strategy] ")

// Kernel processes one range. in and out hold range-local slices of every
// input and output plane, in Job order. The returned tally is summed
// across ranges.
type Kernel func(in, out [][]int) (int, error)

// Job describes one mapped computation.
type Job struct {
	Name    string
	Inputs  int
	Outputs int
	Kernel  Kernel
}

// Strategy is the distribution capability the orchestrator is
// parameterised by.
type Strategy interface {
	// Name returns the strategy kind.
	Name() string
	// Workers returns the number of partition ranges the strategy expects.
	Workers() int
	// Coordinator reports whether this participant owns the full-size
	// buffers and performs I/O.
	Coordinator() bool
	// Broadcast copies the coordinator's vals to every participant.
	Broadcast(ctx context.Context, vals []int) error
	// Barrier waits for every participant.
	Barrier(ctx context.Context) error
	// Map runs job over part. On the coordinator in and out are full-size
	// planes; other participants pass nil. The returned tally is the sum over
	// all ranges on the coordinator.
	Map(ctx context.Context, part partition.Partition, job Job, in, out [][]int) (int, error)
	Close() error
}

// Kinds.
const (
	KindSequential  = "sequential"
	KindParallel    = "parallel"
	KindDistributed = "distributed"
)

// ParseKind normalises a strategy name.
func ParseKind(s string) (string, error) {
	switch k := strings.ToLower(strings.TrimSpace(s)); k {
	case KindSequential, "seq", "serial":
		return KindSequential, nil
	case KindParallel, "threads", "shared":
		return KindParallel, nil
	case KindDistributed, "mpi", "dist":
		return KindDistributed, nil
	default:
		return "", fmt.Errorf("strategy: unknown kind %q", s)
	}
}

// New builds a strategy. workers sizes the parallel pool; comm is required
// for the distributed strategy and ignored otherwise.
func New(kind string, workers int, comm collective.Communicator) (Strategy, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	switch k {
	case KindSequential:
		return Sequential{}, nil
	case KindParallel:
		return NewParallel(workers)
	default:
		return NewDistributed(comm)
	}
}

// checkBuffers validates full-size planes on the participant that owns them.
func checkBuffers(part partition.Partition, job Job, in, out [][]int) error {
	if job.Kernel == nil {
		return fmt.Errorf("strategy: job %q has no kernel", job.Name)
	}
	if err := part.Validate(); err != nil {
		return err
	}
	if len(in) != job.Inputs {
		return fmt.Errorf("strategy: job %q got %d input planes, want %d", job.Name, len(in), job.Inputs)
	}
	if len(out) != job.Outputs {
		return fmt.Errorf("strategy: job %q got %d output planes, want %d", job.Name, len(out), job.Outputs)
	}
	total := part.Total()
	for i, p := range in {
		if len(p) != total {
			return fmt.Errorf("strategy: job %q input %d has %d samples, partition covers %d", job.Name, i, len(p), total)
		}
	}
	for i, p := range out {
		if len(p) != total {
			return fmt.Errorf("strategy: job %q output %d has %d samples, partition covers %d", job.Name, i, len(p), total)
		}
	}
	return nil
}

// views slices every plane to r without copying.
func views(planes [][]int, r partition.Range) [][]int {
	out := make([][]int, len(planes))
	for i, p := range planes {
		out[i] = p[r.Start:r.End():r.End()]
	}
	return out
}
