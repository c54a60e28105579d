package strategy

import (
	"context"

	"github.com/banshee-data/framebg/internal/partition"
)

// Sequential runs every range in the calling goroutine, in order.
type Sequential struct{}

var _ Strategy = Sequential{}

func (Sequential) Name() string      { return KindSequential }
func (Sequential) Workers() int      { return 1 }
func (Sequential) Coordinator() bool { return true }

func (Sequential) Broadcast(context.Context, []int) error { return nil }

func (Sequential) Barrier(context.Context) error { return nil }

func (Sequential) Close() error { return nil }

// Map implements Strategy.
func (Sequential) Map(ctx context.Context, part partition.Partition, job Job, in, out [][]int) (int, error) {
	if err := checkBuffers(part, job, in, out); err != nil {
		return 0, err
	}
	total := 0
	for _, r := range part.Ranges() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := job.Kernel(views(in, r), views(out, r))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
