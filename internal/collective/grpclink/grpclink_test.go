package grpclink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufTarget = "passthrough:///bufnet"

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

// startWorld brings up a coordinator and size-1 workers over one bufconn
// listener and returns the communicators indexed by rank.
func startWorld(t *testing.T, size int) []collective.Communicator {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	comms := make([]collective.Communicator, size)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := Serve(gctx, lis, size)
		if err != nil {
			return err
		}
		comms[0] = c
		return nil
	})
	for rank := 1; rank < size; rank++ {
		rank := rank
		g.Go(func() error {
			c, err := Dial(gctx, bufTarget, rank, size, bufDialer(lis))
			if err != nil {
				return err
			}
			comms[rank] = c
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return comms
}

func TestGRPCWorld_Collectives(t *testing.T) {
	const size = 3
	comms := startWorld(t, size)

	total := 11
	p := partition.MustPlan(total, size)
	src := make([]int, total)
	for i := range src {
		src[i] = 255 - i
	}
	gathered := make([]int, total)
	sums := make([]int, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			defer c.Close()
			dims := make([]int, 2)
			if c.Rank() == collective.Root {
				dims[0], dims[1] = 4, 3
			}
			if err := c.Bcast(gctx, dims); err != nil {
				return err
			}
			assert.Equal(t, []int{4, 3}, dims)

			if err := c.Barrier(gctx); err != nil {
				return err
			}

			var send, recv []int
			if c.Rank() == collective.Root {
				send, recv = src, gathered
			}
			local, err := c.Scatterv(gctx, send, p)
			if err != nil {
				return err
			}
			if err := c.Gatherv(gctx, local, p, recv); err != nil {
				return err
			}

			var reduced []int
			if c.Rank() == collective.Root {
				reduced = sums
			}
			if err := c.ReduceSum(gctx, []int{len(local), 1}, reduced); err != nil {
				return err
			}
			return c.Barrier(gctx)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, src, gathered)
	assert.Equal(t, []int{total, size}, sums)
}

func TestServe_SingleRankNeedsNoWorkers(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	c, err := Serve(context.Background(), lis, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Rank())
	assert.NotNil(t, c.Addr())
	assert.NoError(t, c.Barrier(context.Background()))
	assert.NoError(t, c.Close())
}

func TestServe_TimesOutWaitingForWorkers(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Serve(ctx, lis, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_RejectsWorldSizeMismatch(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serveErr := make(chan error, 1)
	var coord *Coordinator
	go func() {
		c, err := Serve(ctx, lis, 2)
		coord = c
		serveErr <- err
	}()

	_, err := Dial(ctx, bufTarget, 1, 3, bufDialer(lis))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "err = %v", err)

	good, err := Dial(ctx, bufTarget, 1, 2, bufDialer(lis))
	require.NoError(t, err)
	require.NoError(t, <-serveErr)

	_, err = Dial(ctx, bufTarget, 1, 2, bufDialer(lis))
	assert.Equal(t, codes.AlreadyExists, status.Code(err), "err = %v", err)

	done := make(chan error, 1)
	go func() { done <- good.Close() }()
	assert.NoError(t, coord.Close())
	assert.NoError(t, <-done)
}

func TestServe_DroppedWorkerCanRejoin(t *testing.T) {
	const size = 3
	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serveErr := make(chan error, 1)
	var coord *Coordinator
	go func() {
		c, err := Serve(ctx, lis, size)
		coord = c
		serveErr <- err
	}()

	// Join as rank 1, then vanish without closing the link.
	conn, err := grpc.NewClient(bufTarget, grpc.WithTransportCredentials(insecure.NewCredentials()), bufDialer(lis))
	require.NoError(t, err)
	streamCtx, drop := context.WithCancel(ctx)
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, rankKey, "1", sizeKey, "3")
	cs, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], connectPath, grpc.WaitForReady(true))
	require.NoError(t, err)
	md, err := cs.Header()
	require.NoError(t, err)
	require.NotEmpty(t, md.Get(acceptedKey))
	drop()
	require.NoError(t, conn.Close())

	var w1 collective.Communicator
	require.Eventually(t, func() bool {
		c, err := Dial(ctx, bufTarget, 1, size, bufDialer(lis))
		if err != nil {
			return false
		}
		w1 = c
		return true
	}, 3*time.Second, 10*time.Millisecond, "rank 1 slot was never freed")

	w2, err := Dial(ctx, bufTarget, 2, size, bufDialer(lis))
	require.NoError(t, err)
	require.NoError(t, <-serveErr)

	comms := []collective.Communicator{coord, w1, w2}
	bufs := [][]int{{7, 8, 9}, make([]int, 3), make([]int, 3)}
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range comms {
		i, c := i, c
		g.Go(func() error { return c.Bcast(gctx, bufs[i]) })
	}
	require.NoError(t, g.Wait())
	for _, b := range bufs {
		assert.Equal(t, []int{7, 8, 9}, b)
	}

	var closers errgroup.Group
	for _, c := range comms {
		c := c
		closers.Go(c.Close)
	}
	assert.NoError(t, closers.Wait())
}

func TestDial_InvalidRank(t *testing.T) {
	_, err := Dial(context.Background(), bufTarget, 0, 2)
	assert.Error(t, err)
	_, err = Dial(context.Background(), bufTarget, 2, 2)
	assert.Error(t, err)
}
