//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// EventSink is the event sink contract the embedder supplies per
// connection: the capability set {accepted, connected, readReady,
// writeReady, closing}. Each method is called at most once per readiness
// event; Closing is called exactly once over a handle's life.
type EventSink interface {
	// Accepted is dispatched once for an inbound connection, before any
	// other callback.
	Accepted(h *Connection)
	// Connected is dispatched once for an outbound connection, on
	// successful finishConnect.
	Connected(h *Connection)
	// ReadReady is dispatched when the read-side poller reports the socket
	// readable, after interest has already been cleared (one-shot).
	ReadReady()
	// WriteReady is dispatched when the write-side poller reports the
	// socket writable, after interest has already been cleared (one-shot).
	WriteReady()
	// Closing is dispatched exactly once, after the handle transitions to
	// CLOSED. reason is nil for a deliberate application-initiated close.
	Closing(reason error)
}

// connState is the four-state lifecycle from the data model.
type connState uint32

const (
	connNew connState = iota
	connOpen
	connClosing
	connClosed
)

// Connection is the per-socket handle: it carries the channel, the
// application event sink, the loop index it is permanently bound to, and
// the intrusive live-set pointers. An instance is created on accept or on
// outbound connect, added to the live-set before any registration is
// posted, and removed exactly once on close.
//
// The loop index never changes for the lifetime of a Connection: every
// readiness registration for its socket goes to selector-loop pair i, which
// gives a happens-before chain per connection (serialized through one read
// loop and one write loop).
type Connection struct {
	handler *ChannelHandler
	channel *channel
	sink    EventSink
	index   int

	state  atomic.Uint32
	reason atomicError

	// Intrusive doubly-linked-list pointers into the live-set registry.
	// Owned exclusively by liveSet, under its mutex.
	next, prev *Connection
	inSet      bool

	// lastReadInterest is the interest most recently applied for this
	// handle on its read-side poller (interestConnect or interestRead).
	// Owned exclusively by the read-side selector loop goroutine that owns
	// this handle's index: applyAction sets it synchronously during the
	// drain step, before the poller can report the corresponding
	// readiness, so dispatch can tell CONNECT-complete from READ apart
	// without racing the dispatcher's asynchronous Accepted/Connected
	// callback (which may not have run markOpen yet).
	lastReadInterest interest
}

// Index returns the selector-loop pair this handle is permanently bound to.
func (h *Connection) Index() int { return h.index }

// IsClosed reports whether Close has already been called.
func (h *Connection) IsClosed() bool {
	return connState(h.state.Load()) == connClosed || connState(h.state.Load()) == connClosing
}

// Read performs one non-blocking read from the underlying socket. It is the
// primitive the buffered package (and any other collaborator) builds
// higher-level read behavior on top of.
func (h *Connection) Read(buf []byte) (int, error) {
	return h.channel.Read(buf)
}

// Write performs one non-blocking write to the underlying socket.
func (h *Connection) Write(buf []byte) (int, error) {
	return h.channel.Write(buf)
}

// SelectForRead arms the handle for one READ readiness event on its
// read-side poller. Safe to call from any goroutine, including from inside
// a ReadReady callback running on a dispatcher worker. A dropped/no-op if
// the handle is already closing or closed.
func (h *Connection) SelectForRead() {
	h.selectFor(interestRead)
}

// SelectForWrite arms the handle for one WRITE readiness event on its
// write-side poller. Safe to call from any goroutine, including from inside
// a WriteReady callback running on a dispatcher worker.
func (h *Connection) SelectForWrite() {
	h.selectFor(interestWrite)
}

func (h *Connection) selectFor(want interest) {
	if connState(h.state.Load()) != connOpen {
		return
	}
	loop := h.handler.readLoopFor(h.index)
	if want == interestWrite {
		loop = h.handler.writeLoopFor(h.index)
	}
	loop.enqueue(registrationAction{index: h.index, handle: h, interest: want})
}

// Close closes the handle, recording reason (nil for none) as the value
// later passed to Closing. Idempotent: only the first call has any effect.
func (h *Connection) Close(reason error) {
	// CAS out of NEW or OPEN into CLOSING; any other current state means a
	// previous call already won the race.
	for {
		cur := connState(h.state.Load())
		if cur == connClosing || cur == connClosed {
			return
		}
		if h.state.CompareAndSwap(uint32(cur), uint32(connClosing)) {
			break
		}
	}

	h.reason.store(reason)
	h.handler.registry.remove(h)
	// Deregister from both pollers before closing the descriptor: epoll/
	// kqueue state referencing a closed fd is harmless to the kernel, but a
	// stale byFd entry would risk misattributing events to this handle if
	// the OS recycles the descriptor number for an unrelated connection.
	h.handler.readLoopFor(h.index).poller.deregister(h)
	h.handler.writeLoopFor(h.index).poller.deregister(h)
	h.channel.close()

	h.handler.dispatcher.mustSubmit(func() {
		h.state.Store(uint32(connClosed))
		h.sink.Closing(h.reason.load())
	})
}

// markOpen transitions NEW->OPEN. Called exactly once, by whichever of
// Accepted/Connected fires first.
func (h *Connection) markOpen() {
	h.state.CompareAndSwap(uint32(connNew), uint32(connOpen))
}

// finishConnectOutcome is the three-way result of a non-blocking connect
// completion: success, failure, or "not yet" (kept for completeness, even
// though a one-shot CONNECT readiness event in practice always yields
// success or failure on Linux/Darwin).
type finishConnectOutcome int

const (
	connectSucceeded finishConnectOutcome = iota
	connectFailed
	connectPending
)

// finishConnect reads SO_ERROR off the socket to determine whether a
// previously-initiated non-blocking connect has completed successfully.
func finishConnect(fd int) (finishConnectOutcome, error) {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return connectFailed, err
	}
	switch errno {
	case 0:
		return connectSucceeded, nil
	case int(unix.EINPROGRESS), int(unix.EALREADY):
		return connectPending, nil
	default:
		return connectFailed, unix.Errno(errno)
	}
}
