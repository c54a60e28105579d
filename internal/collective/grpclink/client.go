package grpclink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/framebg/internal/collective"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// closeTimeout bounds how long a worker waits for the coordinator to end
// the stream after the worker half-closes.
const closeTimeout = 5 * time.Second

// Dial joins the coordinator at target as rank. It blocks until the
// coordinator accepts the rank or ctx is done.
func Dial(ctx context.Context, target string, rank, size int, opts ...grpc.DialOption) (collective.Communicator, error) {
	if rank < 1 || rank >= size {
		return nil, fmt.Errorf("grpclink: worker rank %d outside [1,%d)", rank, size)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		),
	}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpclink: create client for %s: %w", target, err)
	}

	// The stream outlives ctx; ctx only bounds the join.
	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx,
		rankKey, strconv.Itoa(rank),
		sizeKey, strconv.Itoa(size),
	)
	stop := context.AfterFunc(ctx, cancel)

	fail := func(err error) (collective.Communicator, error) {
		stop()
		cancel()
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("grpclink: join %s as rank %d: %w", target, rank, ctx.Err())
		}
		return nil, fmt.Errorf("grpclink: join %s as rank %d: %w", target, rank, err)
	}

	cs, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], connectPath, grpc.WaitForReady(true))
	if err != nil {
		return fail(err)
	}
	md, err := cs.Header()
	if err != nil {
		return fail(err)
	}
	if len(md.Get(acceptedKey)) == 0 {
		// Trailers-only response: the status carries the rejection.
		if err := cs.RecvMsg(new(wrapperspb.BytesValue)); err != nil {
			return fail(err)
		}
		return fail(fmt.Errorf("coordinator did not acknowledge"))
	}
	if !stop() {
		// ctx fired after the header arrived; the stream is already cancelled.
		conn.Close()
		return nil, fmt.Errorf("grpclink: join %s as rank %d: %w", target, rank, ctx.Err())
	}

	var link *streamLink
	link = newStreamLink(cs, func() error {
		cs.CloseSend()
		select {
		case <-link.readDone:
		case <-time.After(closeTimeout):
		}
		cancel()
		return conn.Close()
	})
	logs.Opsf("rank %d joined coordinator %s", rank, target)
	return collective.NewStar(rank, size, map[int]collective.Link{collective.Root: link})
}
