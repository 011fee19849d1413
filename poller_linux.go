//go:build linux

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux poller, backed by epoll_create1/epoll_ctl/
// epoll_wait. Registration, modification, and dispatch operate on a
// epoll-level interest mask translated from the core's interest type;
// one-shot semantics are implemented explicitly (clearing interest via
// EPOLL_CTL_MOD before the loop dispatches), not via EPOLLONESHOT:
// level-triggered polling with explicit re-arm.
type epollPoller struct {
	epfd int

	mu     sync.RWMutex
	byFd   map[int]*Connection
	closed bool

	// pollMu is held for the duration of the epoll_wait syscall and the
	// event translation that follows. close acquires it after marking the
	// poller closed and firing the wakeup, so descriptor teardown never
	// overlaps an in-flight poll (closing an fd does not unblock epoll_wait,
	// and a recycled descriptor number mid-poll would misattribute events).
	pollMu sync.Mutex

	wakeReadFd, wakeWriteFd int
	eventBuf                [256]unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	p := &epollPoller{
		epfd:        epfd,
		byFd:        make(map[int]*Connection),
		wakeReadFd:  wakeFd,
		wakeWriteFd: wakeFd,
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

func interestToEpoll(i interest) uint32 {
	var ev uint32
	// CONNECT completion, like WRITE readiness, is signaled by EPOLLOUT;
	// the two are never registered on the same poller (CONNECT only ever
	// appears on a read-side loop, for a handle still in NEW state, while
	// WRITE only ever appears on a write-side loop), so the loop that owns
	// this poller already knows which meaning applies.
	if i&(interestConnect|interestWrite) != 0 {
		ev |= unix.EPOLLOUT
	}
	if i&interestRead != 0 {
		ev |= unix.EPOLLIN
	}
	return ev
}

func (p *epollPoller) register(h *Connection, want interest) error {
	fd := h.channel.Fd()
	if fd < 0 {
		return ErrHandleClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	_, known := p.byFd[fd]
	p.byFd[fd] = h

	// register is idempotent: the first call for a given fd ADDs it to the
	// epoll set, every subsequent call (a re-arm via SelectForRead/Write)
	// MODs its interest mask instead, since EPOLL_CTL_ADD on an fd already
	// in the set fails with EEXIST.
	op := unix.EPOLL_CTL_ADD
	if known {
		op = unix.EPOLL_CTL_MOD
	}

	err := unix.EpollCtl(p.epfd, op, fd, &unix.EpollEvent{
		Events: interestToEpoll(want),
		Fd:     int32(fd),
	})
	if err != nil && !known {
		delete(p.byFd, fd)
	}
	return err
}

func (p *epollPoller) modify(h *Connection, want interest) error {
	fd := h.channel.Fd()
	if fd < 0 {
		return ErrHandleClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: interestToEpoll(want),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) deregister(h *Connection) {
	fd := h.channel.Fd()
	if fd < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	delete(p.byFd, fd)
}

func (p *epollPoller) poll(timeout time.Duration) ([]readyEvent, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	if p.isClosed() {
		return nil, ErrPollerClosed
	}

	ms := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var out []readyEvent
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		fd := int(ev.Fd)
		if fd == p.wakeReadFd {
			p.drainWake()
			continue
		}

		p.mu.RLock()
		h := p.byFd[fd]
		p.mu.RUnlock()
		if h == nil {
			continue
		}

		// ops reports raw readable/writable direction only; the owning
		// selector loop (read-side vs write-side) and the handle's current
		// state determine whether a writable event means CONNECT-complete
		// or plain WRITE readiness (see selectorLoop.dispatch).
		var ops interest
		if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ops |= interestRead
		}
		if ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ops |= interestWrite
		}
		out = append(out, readyEvent{handle: h, ops: ops})
	}

	// close may have fired the wakeup while this call was in the syscall;
	// surface the closed condition immediately rather than handing back a
	// final batch the selector loop would discard anyway.
	if p.isClosed() {
		return nil, ErrPollerClosed
	}
	return out, nil
}

func (p *epollPoller) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeReadFd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *epollPoller) wakeup() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	var one [8]byte
	one[0] = 1
	_, _ = unix.Write(p.wakeWriteFd, one[:])
}

func (p *epollPoller) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// Wake any in-flight poll, then wait for it to leave the syscall before
	// closing the descriptors.
	var one [8]byte
	one[0] = 1
	_, _ = unix.Write(p.wakeWriteFd, one[:])

	p.pollMu.Lock()
	p.mu.Lock()
	_ = unix.Close(p.wakeReadFd)
	err := unix.Close(p.epfd)
	p.mu.Unlock()
	p.pollMu.Unlock()
	return err
}
