package collective

import (
	"context"
	"fmt"
	"sync"
)

// pipe joins the coordinator to one worker in-process.
type pipe struct {
	toWorker chan []int
	toRoot   chan []int
	closed   chan struct{}
	once     sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.closed) })
}

type chanLink struct {
	p   *pipe
	out chan []int
	in  chan []int
}

func (l *chanLink) Send(ctx context.Context, payload []int) error {
	msg := append([]int(nil), payload...)
	select {
	case <-l.p.closed:
		return ErrClosed
	default:
	}
	select {
	case l.out <- msg:
		return nil
	case <-l.p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *chanLink) Recv(ctx context.Context) ([]int, error) {
	select {
	case msg := <-l.in:
		return msg, nil
	case <-l.p.closed:
		// A peer may send and close back to back; deliver what was queued.
		select {
		case msg := <-l.in:
			return msg, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *chanLink) Close() error {
	l.p.close()
	return nil
}

// NewLocalWorld returns size communicators joined by in-process channels.
// Element i is rank i; each must be driven from its own goroutine.
func NewLocalWorld(size int) ([]Communicator, error) {
	if size < 1 {
		return nil, fmt.Errorf("collective: size must be at least 1, got %d", size)
	}
	rootLinks := make(map[int]Link, size-1)
	comms := make([]Communicator, size)
	for peer := 1; peer < size; peer++ {
		p := &pipe{
			toWorker: make(chan []int, 1),
			toRoot:   make(chan []int, 1),
			closed:   make(chan struct{}),
		}
		rootLinks[peer] = &chanLink{p: p, out: p.toWorker, in: p.toRoot}
		worker, err := NewStar(peer, size, map[int]Link{Root: &chanLink{p: p, out: p.toRoot, in: p.toWorker}})
		if err != nil {
			return nil, err
		}
		comms[peer] = worker
	}
	root, err := NewStar(Root, size, rootLinks)
	if err != nil {
		return nil, err
	}
	comms[Root] = root
	return comms, nil
}
