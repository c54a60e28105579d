package collective

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/framebg/internal/partition"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runWorld drives fn on every rank of an in-process world concurrently.
func runWorld(t *testing.T, size int, fn func(ctx context.Context, c Communicator) error) error {
	t.Helper()
	comms, err := NewLocalWorld(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			defer c.Close()
			return fn(gctx, c)
		})
	}
	return g.Wait()
}

func TestNewLocalWorld_Ranks(t *testing.T) {
	comms, err := NewLocalWorld(4)
	require.NoError(t, err)
	for i, c := range comms {
		assert.Equal(t, i, c.Rank())
		assert.Equal(t, 4, c.Size())
	}

	_, err = NewLocalWorld(0)
	assert.Error(t, err)
}

func TestNewStar_MissingLinks(t *testing.T) {
	_, err := NewStar(0, 3, map[int]Link{1: nil})
	assert.Error(t, err)
	_, err = NewStar(2, 3, nil)
	assert.Error(t, err)
	_, err = NewStar(3, 3, nil)
	assert.Error(t, err)

	single, err := NewStar(0, 1, nil)
	require.NoError(t, err)
	assert.NoError(t, single.Barrier(context.Background()))
}

func TestScatterGather_RoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 8} {
		total := 23
		p := partition.MustPlan(total, size)
		src := make([]int, total)
		for i := range src {
			src[i] = i*7 - 30
		}
		gathered := make([]int, total)

		err := runWorld(t, size, func(ctx context.Context, c Communicator) error {
			var send []int
			if c.Rank() == Root {
				send = src
			}
			local, err := c.Scatterv(ctx, send, p)
			if err != nil {
				return err
			}
			r := p.Range(c.Rank())
			if diff := cmp.Diff(src[r.Start:r.End()], local, cmp.Comparer(intsEqual)); diff != "" {
				t.Errorf("size=%d rank=%d scatter mismatch:\n%s", size, c.Rank(), diff)
			}
			for i := range local {
				local[i] *= 2
			}
			var recv []int
			if c.Rank() == Root {
				recv = gathered
			}
			return c.Gatherv(ctx, local, p, recv)
		})
		require.NoError(t, err, "size=%d", size)

		for i, v := range gathered {
			if v != src[i]*2 {
				t.Fatalf("size=%d gathered[%d] = %d, want %d", size, i, v, src[i]*2)
			}
		}
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScatterv_MoreRanksThanElements(t *testing.T) {
	p := partition.MustPlan(2, 4)
	err := runWorld(t, 4, func(ctx context.Context, c Communicator) error {
		var send []int
		if c.Rank() == Root {
			send = []int{10, 20}
		}
		local, err := c.Scatterv(ctx, send, p)
		if err != nil {
			return err
		}
		if len(local) != p.Counts[c.Rank()] {
			t.Errorf("rank %d got %d elements", c.Rank(), len(local))
		}
		var recv []int
		if c.Rank() == Root {
			recv = make([]int, 2)
		}
		if err := c.Gatherv(ctx, local, p, recv); err != nil {
			return err
		}
		if c.Rank() == Root {
			assert.Equal(t, []int{10, 20}, recv)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBcast(t *testing.T) {
	err := runWorld(t, 4, func(ctx context.Context, c Communicator) error {
		buf := make([]int, 2)
		if c.Rank() == Root {
			buf[0], buf[1] = 640, 480
		}
		if err := c.Bcast(ctx, buf); err != nil {
			return err
		}
		assert.Equal(t, []int{640, 480}, buf, "rank %d", c.Rank())
		return nil
	})
	require.NoError(t, err)
}

func TestReduceSum(t *testing.T) {
	var total []int
	err := runWorld(t, 5, func(ctx context.Context, c Communicator) error {
		send := []int{c.Rank(), 1, -c.Rank()}
		var recv []int
		if c.Rank() == Root {
			recv = make([]int, 3)
		}
		if err := c.ReduceSum(ctx, send, recv); err != nil {
			return err
		}
		if c.Rank() == Root {
			total = recv
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 5, -10}, total)
}

func TestBarrier_RepeatedCalls(t *testing.T) {
	err := runWorld(t, 3, func(ctx context.Context, c Communicator) error {
		for i := 0; i < 10; i++ {
			if err := c.Barrier(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGatherv_LengthMismatch(t *testing.T) {
	p := partition.MustPlan(6, 2)
	err := runWorld(t, 2, func(ctx context.Context, c Communicator) error {
		local := make([]int, p.Counts[c.Rank()]+1)
		return c.Gatherv(ctx, local, p, make([]int, 6))
	})
	assert.ErrorIs(t, err, ErrLength)
}

func TestScatterv_PartitionSizeMismatch(t *testing.T) {
	comms, err := NewLocalWorld(2)
	require.NoError(t, err)
	_, err = comms[0].Scatterv(context.Background(), make([]int, 4), partition.MustPlan(4, 3))
	assert.Error(t, err)
}

func TestSkippedCollectiveBlocksUntilCancelled(t *testing.T) {
	comms, err := NewLocalWorld(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Rank 1 never enters the barrier.
	err = comms[0].Barrier(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestClosedCommunicator(t *testing.T) {
	comms, err := NewLocalWorld(2)
	require.NoError(t, err)
	require.NoError(t, comms[0].Close())
	require.NoError(t, comms[0].Close())

	assert.ErrorIs(t, comms[0].Barrier(context.Background()), ErrClosed)
	// The worker's link is shared with the closed coordinator.
	assert.ErrorIs(t, comms[1].Barrier(context.Background()), ErrClosed)
}

func TestCodec_RoundTrip(t *testing.T) {
	tests := [][]int{
		nil,
		{0},
		{1, 255, -1, -255, 1 << 40, -(1 << 40)},
	}
	for _, in := range tests {
		out, err := DecodeInts(EncodeInts(in))
		require.NoError(t, err)
		assert.Len(t, out, len(in))
		for i := range in {
			assert.Equal(t, in[i], out[i])
		}
	}
}

func TestCodec_Malformed(t *testing.T) {
	b := EncodeInts([]int{300, 400})
	_, err := DecodeInts(b[:len(b)-1])
	assert.Error(t, err)

	_, err = DecodeInts(append(b, 0x01))
	assert.Error(t, err)

	_, err = DecodeInts(nil)
	assert.Error(t, err)
}
