package reactor

import (
	"sync"
	"time"
)

// fakePoller is a no-op poller used by pure unit tests that need a fully
// wired ChannelHandler (so Connection.Close's deregister calls have
// somewhere to land) without touching epoll/kqueue or a real socket.
type fakePoller struct {
	mu     sync.Mutex
	closed bool
}

func (p *fakePoller) register(h *Connection, want interest) error { return nil }
func (p *fakePoller) modify(h *Connection, want interest) error   { return nil }
func (p *fakePoller) deregister(h *Connection)                    {}

func (p *fakePoller) poll(timeout time.Duration) ([]readyEvent, error) {
	time.Sleep(timeout)
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPollerClosed
	}
	return nil, nil
}

func (p *fakePoller) wakeup() {}

func (p *fakePoller) close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// newFakeHandler builds a ChannelHandler backed by fakePoller instances and
// an inline WorkerPool, for tests that exercise Connection/registry
// lifecycle logic without any real I/O.
func newFakeHandler(q int) *ChannelHandler {
	h := &ChannelHandler{
		q:          q,
		cfg:        newConfig(),
		dispatcher: newDispatcher(inlinePool{}, nil),
		registry:   &liveSet{},
		readLoops:  make([]*selectorLoop, q),
		writeLoops: make([]*selectorLoop, q),
	}
	for i := 0; i < q; i++ {
		h.readLoops[i] = newSelectorLoop(i, sideRead, &fakePoller{}, h)
		h.writeLoops[i] = newSelectorLoop(i, sideWrite, &fakePoller{}, h)
	}
	return h
}
