package reactor

import "time"

// readyEvent reports that fd became ready for the I/O conditions in ops,
// along with the handle that was registered for it.
type readyEvent struct {
	handle *Connection
	ops    interest
}

// poller wraps the OS readiness-multiplexing primitive: epoll on Linux,
// kqueue on Darwin/BSD. Exactly one selector loop owns and drives a given
// poller.
//
// register may fail because the socket is already closed; in that case the
// caller closes the handle and no key is returned. poll blocks for up to
// timeout and returns the events that fired, or an error if the underlying
// primitive failed or has been closed. wakeup causes an in-progress poll on
// another goroutine to return immediately; it is idempotent and safe to call
// before any poll is in progress. close causes any concurrent or future poll
// to fail with a closed-resource condition, which the selector loop treats
// as a clean exit.
//
// See poller_linux.go and poller_bsd.go for the platform-specific
// implementations; the module is unix-family only (see DESIGN.md).
type poller interface {
	register(h *Connection, want interest) error
	modify(h *Connection, want interest) error
	deregister(h *Connection)
	poll(timeout time.Duration) ([]readyEvent, error)
	wakeup()
	close() error
}
