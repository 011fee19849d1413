package reactor

import (
	"sync"
	"sync/atomic"
)

// ChannelHandler is the public facade: it owns the Q selector-loop pairs,
// the live-set registry, the dispatcher, and the lifecycle flag. It is the
// single entry point embedders construct and drive.
type ChannelHandler struct {
	name string
	q    int
	cfg  *config

	opts       SocketOptions
	dispatcher *dispatcher
	registry   *liveSet
	state      runState

	readLoops  []*selectorLoop
	writeLoops []*selectorLoop

	nextIndex atomic.Uint64

	wg sync.WaitGroup
}

// New constructs a ChannelHandler with q read/write loop pairs (q must be
// >= 1). Pollers and selector loops are allocated, but no loop goroutine is
// started until Start is called.
func New(name string, opts SocketOptions, pool WorkerPool, q int, options ...Option) (*ChannelHandler, error) {
	if q < 1 {
		return nil, ErrInvalidQueueCount
	}
	if opts == nil {
		opts = DefaultSocketOptions()
	}

	cfg := newConfig()
	for _, o := range options {
		o(cfg)
	}

	h := &ChannelHandler{
		name:       name,
		q:          q,
		cfg:        cfg,
		opts:       opts,
		dispatcher: newDispatcher(pool, cfg.logger),
		registry:   &liveSet{},
		readLoops:  make([]*selectorLoop, q),
		writeLoops: make([]*selectorLoop, q),
	}

	for i := 0; i < q; i++ {
		rp, err := newPoller()
		if err != nil {
			h.closePollers()
			return nil, err
		}
		h.readLoops[i] = newSelectorLoop(i, sideRead, rp, h)

		wp, err := newPoller()
		if err != nil {
			h.closePollers()
			return nil, err
		}
		h.writeLoops[i] = newSelectorLoop(i, sideWrite, wp, h)
	}

	return h, nil
}

func (h *ChannelHandler) closePollers() {
	for _, l := range h.readLoops {
		if l != nil {
			_ = l.poller.close()
		}
	}
	for _, l := range h.writeLoops {
		if l != nil {
			_ = l.poller.close()
		}
	}
}

func (h *ChannelHandler) readLoopFor(i int) *selectorLoop  { return h.readLoops[i] }
func (h *ChannelHandler) writeLoopFor(i int) *selectorLoop { return h.writeLoops[i] }

// Start launches all 2*Q selector goroutines. Idempotent: only the first
// call among any number of concurrent calls has an effect.
func (h *ChannelHandler) Start() {
	if !h.state.tryStart() {
		return
	}
	h.wg.Add(2 * h.q)
	for _, l := range h.readLoops {
		l := l
		go func() {
			defer h.wg.Done()
			l.run()
		}()
	}
	for _, l := range h.writeLoops {
		l := l
		go func() {
			defer h.wg.Done()
			l.run()
		}()
	}
}

// Terminate wakes every poller (so any in-flight poll returns), closes each
// poller (which the loops translate into a clean exit), waits for every
// selector goroutine to exit, and closes every live handle. Idempotent:
// only the first call among any number of concurrent calls has an effect.
func (h *ChannelHandler) Terminate() {
	if !h.state.tryTerminate() {
		return
	}
	for _, l := range h.readLoops {
		l.poller.wakeup()
		_ = l.poller.close()
	}
	for _, l := range h.writeLoops {
		l.poller.wakeup()
		_ = l.poller.close()
	}
	h.wg.Wait()
	h.registry.closeAll(nil)
}

// IsRunning reports whether the handler is between Start and Terminate.
func (h *ChannelHandler) IsRunning() bool { return h.state.isRunning() }

// SocketOptions returns the socket-option policy this handler applies to
// new outbound sockets.
func (h *ChannelHandler) SocketOptions() SocketOptions { return h.opts }

// OpenHandlers returns a snapshot of the event sinks for every connection
// currently in the live set.
func (h *ChannelHandler) OpenHandlers() []EventSink {
	conns := h.registry.snapshot()
	sinks := make([]EventSink, len(conns))
	for i, c := range conns {
		sinks[i] = c.sink
	}
	return sinks
}

// nextLoopIndex implements the unsigned round-robin counter from the design
// notes: atomic add on an unsigned counter, modulo at the consumer, so
// overflow wraps instead of ever producing a negative index.
func (h *ChannelHandler) nextLoopIndex() int {
	return int(h.nextIndex.Add(1) % uint64(h.q))
}

// ConnectTo opens a non-blocking outbound TCP socket to addr, binds it to a
// round-robin-selected loop pair, adds it to the live set, and posts a
// CONNECT registration. If the synchronous portion of the connect fails
// (resolution, socket creation, socket options, or an immediate connect
// error other than EINPROGRESS), the handle is closed before this call
// returns and its Closing callback still fires exactly once, via the
// dispatcher, so the caller never needs a separate synchronous error path.
func (h *ChannelHandler) ConnectTo(addr string, sink EventSink) *Connection {
	i := h.nextLoopIndex()

	ch, err := newOutboundChannel(addr, h.opts)
	conn := &Connection{handler: h, channel: ch, sink: sink, index: i}
	if err != nil {
		conn.state.Store(uint32(connClosing))
		conn.reason.store(&ConnectError{Addr: addr, Cause: err})
		h.dispatcher.mustSubmit(func() {
			conn.state.Store(uint32(connClosed))
			sink.Closing(conn.reason.load())
		})
		return conn
	}

	h.registry.add(conn)
	h.readLoopFor(i).enqueue(registrationAction{index: i, handle: conn, interest: interestConnect})
	return conn
}

// AcceptFD wires an already-accepted non-blocking-capable descriptor (from
// an embedder-owned listener, outside this core's scope) into the reactor:
// binds it to a round-robin-selected loop pair, adds it to the live set,
// dispatches Accepted, and arms it for READ so the first inbound byte is
// observed.
func (h *ChannelHandler) AcceptFD(fd int, remote string, sink EventSink) (*Connection, error) {
	ch, err := newAcceptedChannel(fd, remote)
	if err != nil {
		return nil, err
	}

	i := h.nextLoopIndex()
	conn := &Connection{handler: h, channel: ch, sink: sink, index: i}
	h.registry.add(conn)

	if !h.dispatcher.submit(func() {
		conn.markOpen()
		sink.Accepted(conn)
	}) {
		conn.Close(ErrDispatcherSaturated)
		return conn, nil
	}

	h.readLoopFor(i).enqueue(registrationAction{index: i, handle: conn, interest: interestRead})
	return conn, nil
}
