package collective

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/partition"
)

// Root is the coordinator rank.
const Root = 0

var (
	// ErrClosed is returned by operations on a closed link or communicator.
	ErrClosed = errors.New("collective: closed")
	// ErrLength is returned when a buffer or received payload has the wrong
	// number of elements for the partition or operation.
	ErrLength = errors.New("collective: length mismatch")
)

var logs = monitoring.NewStreams("[collective] ")

// Link is an ordered, reliable channel between the coordinator and one
// worker. Send must not retain payload after returning.
type Link interface {
	Send(ctx context.Context, payload []int) error
	Recv(ctx context.Context) ([]int, error)
	Close() error
}

// Communicator is the collective-operation surface shared by every rank.
type Communicator interface {
	Rank() int
	Size() int
	// Bcast copies the coordinator's buf into every worker's buf. All ranks
	// pass a buffer of the same length.
	Bcast(ctx context.Context, buf []int) error
	// Scatterv sends send[p.Range(i)] to rank i and returns the caller's
	// slice. send is only read on the coordinator.
	Scatterv(ctx context.Context, send []int, p partition.Partition) ([]int, error)
	// Gatherv places each rank's local slice at p.Offsets[rank] in recv on
	// the coordinator. recv is ignored on workers.
	Gatherv(ctx context.Context, local []int, p partition.Partition, recv []int) error
	// ReduceSum adds send element-wise across ranks into recv on the
	// coordinator. recv is ignored on workers.
	ReduceSum(ctx context.Context, send []int, recv []int) error
	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error
	Close() error
}

// Star is a Communicator whose collectives are rooted at rank 0 and
// carried over one Link per worker.
type Star struct {
	rank   int
	size   int
	links  map[int]Link
	closed atomic.Bool
}

var _ Communicator = (*Star)(nil)

// NewStar builds a communicator for rank. The coordinator needs a link to
// every worker rank 1..size-1; a worker needs a link to rank 0.
func NewStar(rank, size int, links map[int]Link) (*Star, error) {
	if size < 1 {
		return nil, fmt.Errorf("collective: size must be at least 1, got %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("collective: rank %d outside world of %d", rank, size)
	}
	if rank == Root {
		for peer := 1; peer < size; peer++ {
			if links[peer] == nil {
				return nil, fmt.Errorf("collective: coordinator has no link to rank %d", peer)
			}
		}
	} else if links[Root] == nil {
		return nil, fmt.Errorf("collective: rank %d has no link to the coordinator", rank)
	}
	return &Star{rank: rank, size: size, links: links}, nil
}

// Rank returns the caller's rank.
func (s *Star) Rank() int { return s.rank }

// Size returns the world size.
func (s *Star) Size() int { return s.size }

func (s *Star) check(p *partition.Partition) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if p != nil && p.Workers() != s.size {
		return fmt.Errorf("collective: partition has %d ranges for %d ranks", p.Workers(), s.size)
	}
	return nil
}

func (s *Star) recvN(ctx context.Context, peer, want int) ([]int, error) {
	data, err := s.links[peer].Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("collective: recv from rank %d: %w", peer, err)
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: rank %d sent %d elements, want %d", ErrLength, peer, len(data), want)
	}
	return data, nil
}

func (s *Star) send(ctx context.Context, peer int, payload []int) error {
	if err := s.links[peer].Send(ctx, payload); err != nil {
		return fmt.Errorf("collective: send to rank %d: %w", peer, err)
	}
	return nil
}

// Bcast implements Communicator.
func (s *Star) Bcast(ctx context.Context, buf []int) error {
	if err := s.check(nil); err != nil {
		return err
	}
	logs.Tracef("bcast rank=%d n=%d", s.rank, len(buf))
	if s.rank != Root {
		data, err := s.recvN(ctx, Root, len(buf))
		if err != nil {
			return err
		}
		copy(buf, data)
		return nil
	}
	for peer := 1; peer < s.size; peer++ {
		if err := s.send(ctx, peer, buf); err != nil {
			return err
		}
	}
	return nil
}

// Scatterv implements Communicator.
func (s *Star) Scatterv(ctx context.Context, send []int, p partition.Partition) ([]int, error) {
	if err := s.check(&p); err != nil {
		return nil, err
	}
	mine := p.Range(s.rank)
	logs.Tracef("scatterv rank=%d range=%v", s.rank, mine)
	if s.rank != Root {
		return s.recvN(ctx, Root, mine.Count)
	}
	if len(send) != p.Total() {
		return nil, fmt.Errorf("%w: scatter buffer has %d elements, partition covers %d", ErrLength, len(send), p.Total())
	}
	for peer := 1; peer < s.size; peer++ {
		r := p.Range(peer)
		if err := s.send(ctx, peer, send[r.Start:r.End()]); err != nil {
			return nil, err
		}
	}
	return append([]int(nil), send[mine.Start:mine.End()]...), nil
}

// Gatherv implements Communicator.
func (s *Star) Gatherv(ctx context.Context, local []int, p partition.Partition, recv []int) error {
	if err := s.check(&p); err != nil {
		return err
	}
	mine := p.Range(s.rank)
	logs.Tracef("gatherv rank=%d range=%v", s.rank, mine)
	if len(local) != mine.Count {
		return fmt.Errorf("%w: rank %d holds %d elements, partition assigns %d", ErrLength, s.rank, len(local), mine.Count)
	}
	if s.rank != Root {
		return s.send(ctx, Root, local)
	}
	if len(recv) != p.Total() {
		return fmt.Errorf("%w: gather buffer has %d elements, partition covers %d", ErrLength, len(recv), p.Total())
	}
	copy(recv[mine.Start:mine.End()], local)
	for peer := 1; peer < s.size; peer++ {
		r := p.Range(peer)
		data, err := s.recvN(ctx, peer, r.Count)
		if err != nil {
			return err
		}
		copy(recv[r.Start:r.End()], data)
	}
	return nil
}

// ReduceSum implements Communicator.
func (s *Star) ReduceSum(ctx context.Context, send []int, recv []int) error {
	if err := s.check(nil); err != nil {
		return err
	}
	logs.Tracef("reduce-sum rank=%d n=%d", s.rank, len(send))
	if s.rank != Root {
		return s.send(ctx, Root, send)
	}
	if len(recv) != len(send) {
		return fmt.Errorf("%w: reduce buffers %d and %d", ErrLength, len(send), len(recv))
	}
	copy(recv, send)
	for peer := 1; peer < s.size; peer++ {
		data, err := s.recvN(ctx, peer, len(send))
		if err != nil {
			return err
		}
		for i, v := range data {
			recv[i] += v
		}
	}
	return nil
}

// Barrier implements Communicator. Workers check in with the coordinator,
// which releases them once all have arrived.
func (s *Star) Barrier(ctx context.Context) error {
	if err := s.check(nil); err != nil {
		return err
	}
	logs.Tracef("barrier rank=%d", s.rank)
	if s.rank != Root {
		if err := s.send(ctx, Root, nil); err != nil {
			return err
		}
		_, err := s.recvN(ctx, Root, 0)
		return err
	}
	for peer := 1; peer < s.size; peer++ {
		if _, err := s.recvN(ctx, peer, 0); err != nil {
			return err
		}
	}
	for peer := 1; peer < s.size; peer++ {
		if err := s.send(ctx, peer, nil); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every link. It is safe to call more than once.
func (s *Star) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, l := range s.links {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
