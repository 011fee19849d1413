//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import "golang.org/x/sys/unix"

// SocketOptions is the socket-options contract: a collaborator with one
// operation, applied to every new outbound socket before non-blocking mode
// is set.
type SocketOptions interface {
	Configure(fd int) error
}

// DefaultSocketOptions returns the stock policy: TCP_NODELAY to disable
// Nagle's algorithm (appropriate for a low-latency reactive multiplexer)
// and SO_KEEPALIVE so dead peers are eventually noticed by the OS even
// without application-level heartbeats.
func DefaultSocketOptions() SocketOptions {
	return defaultSocketOptions{}
}

type defaultSocketOptions struct{}

func (defaultSocketOptions) Configure(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
}

// SocketOptionsFunc adapts a plain function to the SocketOptions contract.
type SocketOptionsFunc func(fd int) error

func (f SocketOptionsFunc) Configure(fd int) error { return f(fd) }
