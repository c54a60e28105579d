package grpclink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/framebg/internal/collective"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// msgStream is the subset shared by grpc.ServerStream and grpc.ClientStream.
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

type received struct {
	data []int
	err  error
}

// streamLink adapts a gRPC stream to collective.Link. A reader goroutine
// pumps incoming messages so Recv can honour its context.
type streamLink struct {
	stream   msgStream
	incoming chan received
	readDone chan struct{}
	readErr  error
	closing  chan struct{}
	once     sync.Once
	onClose  func() error
	sendMu   sync.Mutex
}

func newStreamLink(s msgStream, onClose func() error) *streamLink {
	l := &streamLink{
		stream:   s,
		incoming: make(chan received, 1),
		readDone: make(chan struct{}),
		closing:  make(chan struct{}),
		onClose:  onClose,
	}
	go l.readLoop()
	return l
}

func (l *streamLink) readLoop() {
	defer close(l.readDone)
	for {
		msg := new(wrapperspb.BytesValue)
		if err := l.stream.RecvMsg(msg); err != nil {
			l.readErr = err
			return
		}
		data, err := collective.DecodeInts(msg.GetValue())
		select {
		case l.incoming <- received{data: data, err: err}:
		case <-l.closing:
		}
	}
}

func (l *streamLink) Send(ctx context.Context, payload []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.closing:
		return collective.ErrClosed
	default:
	}
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if err := l.stream.SendMsg(wrapperspb.Bytes(collective.EncodeInts(payload))); err != nil {
		if errors.Is(err, io.EOF) {
			return collective.ErrClosed
		}
		return err
	}
	return nil
}

func (l *streamLink) Recv(ctx context.Context) ([]int, error) {
	select {
	case r := <-l.incoming:
		return r.data, r.err
	case <-l.readDone:
		return l.drain()
	case <-l.closing:
		return l.drain()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain returns a message that was queued before the stream ended.
func (l *streamLink) drain() ([]int, error) {
	select {
	case r := <-l.incoming:
		return r.data, r.err
	default:
	}
	select {
	case <-l.readDone:
		if l.readErr != nil && !errors.Is(l.readErr, io.EOF) {
			return nil, fmt.Errorf("%w: %v", collective.ErrClosed, l.readErr)
		}
	default:
	}
	return nil, collective.ErrClosed
}

func (l *streamLink) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closing)
		if l.onClose != nil {
			err = l.onClose()
		}
	})
	return err
}
