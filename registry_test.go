package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConnection builds a Connection bypassing New/ConnectTo entirely, for
// exercising liveSet and Close in isolation from any real socket or handler.
func newTestConnection() *Connection {
	return &Connection{channel: &channel{fd: -1}}
}

func TestLiveSet_AddAndSnapshot(t *testing.T) {
	var r liveSet
	a, b, c := newTestConnection(), newTestConnection(), newTestConnection()
	r.add(a)
	r.add(b)
	r.add(c)

	snap := r.snapshot()
	assert.Len(t, snap, 3)
}

func TestLiveSet_RemoveHeadPromotesSuccessor(t *testing.T) {
	var r liveSet
	a, b := newTestConnection(), newTestConnection()
	r.add(a) // head = a
	r.add(b) // head = b, b.next = a

	require.Equal(t, b, r.head)
	r.remove(b)
	assert.Equal(t, a, r.head)
	assert.Nil(t, a.prev)
}

func TestLiveSet_RemoveMiddle(t *testing.T) {
	var r liveSet
	a, b, c := newTestConnection(), newTestConnection(), newTestConnection()
	r.add(a)
	r.add(b)
	r.add(c) // head = c, c->b->a

	r.remove(b)
	snap := r.snapshot()
	assert.Len(t, snap, 2)
	assert.NotContains(t, snap, b)
	assert.Contains(t, snap, a)
	assert.Contains(t, snap, c)
}

func TestLiveSet_RemoveTwiceIsNoop(t *testing.T) {
	var r liveSet
	a := newTestConnection()
	r.add(a)
	r.remove(a)
	assert.Nil(t, r.head)
	r.remove(a) // must not panic or corrupt state
	assert.Nil(t, r.head)
}

func TestLiveSet_RemoveLastClearsHead(t *testing.T) {
	var r liveSet
	a := newTestConnection()
	r.add(a)
	r.remove(a)
	assert.Nil(t, r.head)
	assert.Empty(t, r.snapshot())
}

func TestLiveSet_CloseAllUnlinksEverything(t *testing.T) {
	handler := newFakeHandler(1)
	conns := make([]*Connection, 5)
	for i := range conns {
		conns[i] = newTestConnection()
		conns[i].handler = handler
		conns[i].sink = &recordingSink{}
		handler.registry.add(conns[i])
	}

	handler.registry.closeAll(nil)

	assert.Nil(t, handler.registry.head)
	for _, c := range conns {
		assert.True(t, c.IsClosed())
		rs := c.sink.(*recordingSink)
		assert.Equal(t, 1, rs.closingCalls)
	}
}

// inlinePool runs tasks synchronously on the calling goroutine; used by
// tests that don't need real concurrency and want deterministic ordering.
type inlinePool struct{}

func (inlinePool) Submit(task func()) bool {
	task()
	return true
}

// recordingSink is a minimal EventSink that records callback invocations,
// used across this package's tests wherever a full Connection lifecycle
// needs to be observed without a real socket.
type recordingSink struct {
	acceptedCalls, connectedCalls, readReadyCalls, writeReadyCalls, closingCalls int
	lastReason                                                                  error
}

func (s *recordingSink) Accepted(h *Connection)  { s.acceptedCalls++ }
func (s *recordingSink) Connected(h *Connection) { s.connectedCalls++ }
func (s *recordingSink) ReadReady()              { s.readReadyCalls++ }
func (s *recordingSink) WriteReady()             { s.writeReadyCalls++ }
func (s *recordingSink) Closing(reason error) {
	s.closingCalls++
	s.lastReason = reason
}
