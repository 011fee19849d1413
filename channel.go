//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// channel wraps a single non-blocking TCP socket file descriptor. The core
// operates on raw descriptors rather than net.Conn so that the readiness
// pollers (which register/poll/modify by fd) and the connection's
// non-blocking I/O stay on the same underlying primitive, with nothing else
// multiplexing the same descriptor.
type channel struct {
	fd     int
	remote string
	closed atomic.Bool
}

// Fd returns the underlying descriptor. Returns -1 once closed.
func (c *channel) Fd() int {
	if c.closed.Load() {
		return -1
	}
	return c.fd
}

// Read performs one non-blocking read into buf.
func (c *channel) Read(buf []byte) (int, error) {
	return unix.Read(c.fd, buf)
}

// Write performs one non-blocking write from buf.
func (c *channel) Write(buf []byte) (int, error) {
	return unix.Write(c.fd, buf)
}

// close closes the underlying descriptor exactly once, ignoring any error
// per the data model ("closes the socket, ignoring any error").
func (c *channel) close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = unix.Close(c.fd)
	}
}

// newOutboundChannel opens a non-blocking TCP socket, applies socket-option
// policy, and initiates a non-blocking connect to addr. It returns
// immediately; the CONNECT readiness event (or a synchronous failure)
// determines the outcome.
func newOutboundChannel(addr string, opts SocketOptions) (*channel, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	if raddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}

	if err := opts.Configure(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	sa, err := sockaddrFromTCPAddr(raddr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, err
	}

	return &channel{fd: fd, remote: addr}, nil
}

// newAcceptedChannel wraps an already-accepted descriptor (produced by the
// embedder's listener, out of this core's scope) and applies non-blocking
// mode. Socket-option policy is the embedder's responsibility for inbound
// sockets, applied before the descriptor reaches this constructor.
func newAcceptedChannel(fd int, remote string) (*channel, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &channel{fd: fd, remote: remote}, nil
}

func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa, nil
}
