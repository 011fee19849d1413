// Package buffered provides a thin, framing-free byte-buffer protocol
// collaborator on top of the reactor core: it holds one read buffer and one
// write buffer per connection and forwards readiness to a Protocol
// implementation, without interpreting the bytes it moves. It is not part
// of the core contract; it is the canonical client of it.
package buffered

import (
	"errors"
	"io"
	"sync/atomic"
	"syscall"

	"github.com/joeycumines/go-reactor"
)

// Protocol is the higher-level event interface this adapter forwards to.
// NewReadBuffer/NewWriteBuffer supply the next buffer to fill/drain; the
// adapter calls them once it has nothing left to do with the previous one.
type Protocol interface {
	Accepted(h *reactor.Connection)
	Connected(h *reactor.Connection)
	Closing(reason error)
	ReadReady(buf []byte)
	WriteReady()
	ReadError(err error)
	WriteError(err error)
	NewReadBuffer() []byte
	NewWriteBuffer() []byte
}

// Stats is a point-in-time snapshot of adapter activity, provided purely as
// an observability convenience; it has no bearing on core semantics.
type Stats struct {
	BytesRead    int64
	BytesWritten int64
	Reads        int64
	Writes       int64
}

// Adapter implements reactor.EventSink, translating READ/WRITE readiness
// into buffered non-blocking I/O against an embedder-supplied Protocol.
type Adapter struct {
	proto Protocol
	conn  *reactor.Connection

	// ReadFullBuffer, if true, re-arms READ automatically whenever the read
	// buffer still has remaining capacity after a read, only delivering
	// ReadReady once the buffer is completely full. If false, ReadReady is
	// delivered after every non-blocking read that returned at least one
	// byte, whatever the fill level.
	ReadFullBuffer bool
	// WriteFullBuffer is the write-side analogue of ReadFullBuffer.
	WriteFullBuffer bool

	readBuf  []byte
	readPos  int
	writeBuf []byte
	writePos int

	// Counters are atomic: ReadReady and WriteReady run on dispatcher
	// workers driven by two independent loops, and Stats may be read from
	// any goroutine.
	bytesRead, bytesWritten, reads, writes atomic.Int64
}

// NewAdapter constructs an Adapter forwarding to proto.
func NewAdapter(proto Protocol, readFullBuffer, writeFullBuffer bool) *Adapter {
	return &Adapter{proto: proto, ReadFullBuffer: readFullBuffer, WriteFullBuffer: writeFullBuffer}
}

// Stats returns a snapshot of this adapter's activity counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		BytesRead:    a.bytesRead.Load(),
		BytesWritten: a.bytesWritten.Load(),
		Reads:        a.reads.Load(),
		Writes:       a.writes.Load(),
	}
}

func (a *Adapter) Accepted(h *reactor.Connection) {
	a.conn = h
	a.proto.Accepted(h)
}

func (a *Adapter) Connected(h *reactor.Connection) {
	a.conn = h
	a.proto.Connected(h)
}

func (a *Adapter) Closing(reason error) {
	a.proto.Closing(reason)
}

// ReadReady performs one non-blocking read into the remaining slice of the
// current read buffer (requesting a fresh one from the Protocol if none is
// in progress). Classifies closed-connection conditions as a silent close,
// everything else as ReadError followed by close.
func (a *Adapter) ReadReady() {
	if a.readBuf == nil {
		a.readBuf = a.proto.NewReadBuffer()
		a.readPos = 0
	}
	if len(a.readBuf) == 0 {
		// Nothing to read into: deliver what we have (nothing) and let the
		// Protocol decide whether to re-arm via a subsequent SelectForRead.
		a.proto.ReadReady(nil)
		return
	}

	n, err := a.conn.Read(a.readBuf[a.readPos:])
	if n > 0 {
		a.bytesRead.Add(int64(n))
		a.reads.Add(1)
		a.readPos += n
	}
	if err != nil {
		if isNonBlockingRetry(err) {
			a.conn.SelectForRead()
			return
		}
		if isClosedConnection(err) {
			a.conn.Close(nil)
			return
		}
		a.proto.ReadError(err)
		a.conn.Close(err)
		return
	}
	if n == 0 {
		// A zero-length non-blocking read with no error is EOF: the peer
		// performed an orderly shutdown.
		a.conn.Close(nil)
		return
	}

	if a.readPos < len(a.readBuf) && a.ReadFullBuffer {
		a.conn.SelectForRead()
		return
	}

	buf := a.readBuf[:a.readPos]
	a.readBuf = nil
	a.readPos = 0
	a.proto.ReadReady(buf)
}

// WriteReady performs one non-blocking write from the remaining slice of
// the current write buffer (requesting a fresh one from the Protocol if
// none is in progress). Symmetric to ReadReady.
func (a *Adapter) WriteReady() {
	if a.writeBuf == nil {
		a.writeBuf = a.proto.NewWriteBuffer()
		a.writePos = 0
	}
	if len(a.writeBuf) == 0 {
		a.proto.WriteReady()
		return
	}

	n, err := a.conn.Write(a.writeBuf[a.writePos:])
	if n > 0 {
		a.bytesWritten.Add(int64(n))
		a.writes.Add(1)
		a.writePos += n
	}
	if err != nil {
		if isNonBlockingRetry(err) {
			a.conn.SelectForWrite()
			return
		}
		if isClosedConnection(err) {
			a.conn.Close(nil)
			return
		}
		a.proto.WriteError(err)
		a.conn.Close(err)
		return
	}

	if a.writePos < len(a.writeBuf) && a.WriteFullBuffer {
		a.conn.SelectForWrite()
		return
	}

	a.writeBuf = nil
	a.writePos = 0
	a.proto.WriteReady()
}

func isNonBlockingRetry(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR)
}

// isClosedConnection classifies the silent-close conditions: EOF and the
// two common peer-reset errnos.
func isClosedConnection(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
