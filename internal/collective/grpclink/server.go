package grpclink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/framebg/internal/collective"
	"github.com/banshee-data/framebg/internal/monitoring"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var logs = monitoring.NewStreams("[grpclink] ")

// stopTimeout bounds GracefulStop when a worker never hangs up.
const stopTimeout = 5 * time.Second

// hub accepts worker streams until the world is complete.
type hub struct {
	size  int
	mu    sync.Mutex
	links map[int]collective.Link
	ready chan struct{}
}

func (h *hub) Connect(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	rank, err := intFromMetadata(md, rankKey)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	size, err := intFromMetadata(md, sizeKey)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if size != h.size {
		return status.Errorf(codes.InvalidArgument, "worker expects world size %d, coordinator has %d", size, h.size)
	}
	if rank < 1 || rank >= h.size {
		return status.Errorf(codes.InvalidArgument, "rank %d outside worker range [1,%d)", rank, h.size)
	}

	done := make(chan struct{})
	link := newStreamLink(stream, func() error {
		close(done)
		return nil
	})

	h.mu.Lock()
	if _, dup := h.links[rank]; dup {
		h.mu.Unlock()
		link.Close()
		return status.Errorf(codes.AlreadyExists, "rank %d already joined", rank)
	}
	if err := stream.SendHeader(metadata.Pairs(acceptedKey, "1")); err != nil {
		h.mu.Unlock()
		link.Close()
		return err
	}
	h.links[rank] = link
	joined := len(h.links)
	if joined == h.size-1 {
		close(h.ready)
	}
	h.mu.Unlock()

	logs.Opsf("rank %d joined (%d/%d workers)", rank, joined, h.size-1)

	// Returning ends the stream, so hold it open until the link is closed.
	select {
	case <-done:
	case <-stream.Context().Done():
		if h.leave(rank, link) {
			logs.Opsf("rank %d left before the world was complete: %v", rank, stream.Context().Err())
			return nil
		}
		logs.Opsf("rank %d stream ended: %v", rank, stream.Context().Err())
	}
	return nil
}

// leave frees rank's slot so it can rejoin, provided the world is still
// forming and the slot still holds link.
func (h *hub) leave(rank int, link *streamLink) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.ready:
		return false
	default:
	}
	if cur, ok := h.links[rank]; !ok || cur != collective.Link(link) {
		return false
	}
	delete(h.links, rank)
	link.Close()
	return true
}

func (h *hub) snapshot() map[int]collective.Link {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int]collective.Link, len(h.links))
	for k, v := range h.links {
		out[k] = v
	}
	return out
}

func intFromMetadata(md metadata.MD, key string) (int, error) {
	vals := md.Get(key)
	if len(vals) != 1 {
		return 0, fmt.Errorf("missing %s metadata", key)
	}
	v, err := strconv.Atoi(vals[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s metadata %q: %w", key, vals[0], err)
	}
	return v, nil
}

// Coordinator is the rank-0 communicator backed by a gRPC server.
type Coordinator struct {
	*collective.Star
	server *grpc.Server
	lis    net.Listener
}

// Serve starts a gRPC server on lis and blocks until size-1 workers have
// joined or ctx is done.
func Serve(ctx context.Context, lis net.Listener, size int, opts ...grpc.ServerOption) (*Coordinator, error) {
	if size < 1 {
		return nil, fmt.Errorf("grpclink: size must be at least 1, got %d", size)
	}
	h := &hub{size: size, links: make(map[int]collective.Link), ready: make(chan struct{})}
	if size == 1 {
		close(h.ready)
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	}, opts...)
	srv := grpc.NewServer(serverOpts...)
	srv.RegisterService(&serviceDesc, h)

	go func() {
		logs.Opsf("coordinator listening on %s for %d workers", lis.Addr(), size-1)
		if err := srv.Serve(lis); err != nil {
			logs.Opsf("gRPC server error: %v", err)
		}
	}()

	select {
	case <-h.ready:
	case <-ctx.Done():
		srv.Stop()
		h.mu.Lock()
		joined := len(h.links)
		h.mu.Unlock()
		return nil, fmt.Errorf("grpclink: waiting for workers (%d/%d joined): %w", joined, size-1, ctx.Err())
	}

	star, err := collective.NewStar(collective.Root, size, h.snapshot())
	if err != nil {
		srv.Stop()
		return nil, err
	}
	return &Coordinator{Star: star, server: srv, lis: lis}, nil
}

// Addr returns the listener address.
func (c *Coordinator) Addr() net.Addr { return c.lis.Addr() }

// Close closes every worker link and stops the server.
func (c *Coordinator) Close() error {
	err := c.Star.Close()
	stopped := make(chan struct{})
	go func() {
		c.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		c.server.Stop()
	}
	return err
}
