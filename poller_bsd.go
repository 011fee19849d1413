//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin/BSD poller, backed by kqueue/kevent. Unlike
// epoll, kqueue tracks read and write interest as independent filters, so
// registering/clearing READ and WRITE are separate EVFILT_READ/EVFILT_WRITE
// operations rather than one combined event mask. The wakeup primitive is a
// non-blocking self-pipe; Darwin has no pipe2, so the pair is created with
// plain pipe and flagged afterwards.
type kqueuePoller struct {
	kq int

	mu     sync.RWMutex
	byFd   map[int]*Connection
	closed bool

	// pollMu is held for the duration of the kevent wait and the event
	// translation that follows; see the equivalent comment in
	// poller_linux.go.
	pollMu sync.Mutex

	wakeReadFd, wakeWriteFd int
	eventBuf                [256]unix.Kevent_t
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			_ = unix.Close(kq)
			return nil, err
		}
	}

	p := &kqueuePoller{
		kq:          kq,
		byFd:        make(map[int]*Connection),
		wakeReadFd:  fds[0],
		wakeWriteFd: fds[1],
	}

	ev := unix.Kevent_t{Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE}
	ev.Ident = uint64(p.wakeReadFd)
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		_ = unix.Close(kq)
		return nil, err
	}

	return p, nil
}

// kevents translates want into the kevent filters that express it. CONNECT
// completion, like WRITE readiness, is signaled by EVFILT_WRITE; the two
// are never registered on the same poller instance (see dispatch in
// selector.go), so ambiguity is resolved by the caller, not here.
func kevents(fd int, want interest, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if want&interestRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if want&(interestConnect|interestWrite) != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (p *kqueuePoller) register(h *Connection, want interest) error {
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

	evs := kevents(fd, want, unix.EV_ADD|unix.EV_ENABLE)
	if len(evs) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, evs, nil, nil); err != nil {
		if !known {
			delete(p.byFd, fd)
		}
		return err
	}
	return nil
}

// modify clears whichever of READ/WRITE interest is no longer wanted and
// (re-)arms whichever is. Because a connection's read-loop and write-loop
// interests never overlap on one kqueue instance (CONNECT/READ belong to
// the read-side poller, WRITE to the write-side poller), clearing the
// complementary filter here is a no-op in steady state, but makes modify
// safe to call with any interest value.
func (p *kqueuePoller) modify(h *Connection, want interest) error {
	fd := h.channel.Fd()
	if fd < 0 {
		return ErrHandleClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	var evs []unix.Kevent_t
	evs = append(evs, kevents(fd, (interestConnect|interestRead|interestWrite)&^want, unix.EV_DELETE)...)
	evs = append(evs, kevents(fd, want, unix.EV_ADD|unix.EV_ENABLE)...)
	if len(evs) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, evs, nil, nil)
	return err
}

func (p *kqueuePoller) deregister(h *Connection) {
	fd := h.channel.Fd()
	if fd < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		evs := kevents(fd, interestConnect|interestRead|interestWrite, unix.EV_DELETE)
		_, _ = unix.Kevent(p.kq, evs, nil, nil)
	}
	delete(p.byFd, fd)
}

func (p *kqueuePoller) poll(timeout time.Duration) ([]readyEvent, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	if p.isClosed() {
		return nil, ErrPollerClosed
	}

	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var out []readyEvent
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		fd := int(ev.Ident)
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

		// ops reports raw readable/writable direction only; see the
		// equivalent comment in poller_linux.go's poll.
		var ops interest
		switch ev.Filter {
		case unix.EVFILT_READ:
			ops = interestRead
		case unix.EVFILT_WRITE:
			ops = interestWrite
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

func (p *kqueuePoller) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *kqueuePoller) drainWake() {
	var buf [64]byte
	for {
		_, err := unix.Read(p.wakeReadFd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *kqueuePoller) wakeup() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	var one [1]byte
	_, _ = unix.Write(p.wakeWriteFd, one[:])
}

func (p *kqueuePoller) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// Wake any in-flight poll, then wait for it to leave the syscall before
	// closing the descriptors: closing an fd does not unblock kevent, and
	// tearing the fds down mid-poll would race descriptor reuse.
	var one [1]byte
	_, _ = unix.Write(p.wakeWriteFd, one[:])

	p.pollMu.Lock()
	p.mu.Lock()
	_ = unix.Close(p.wakeReadFd)
	_ = unix.Close(p.wakeWriteFd)
	err := unix.Close(p.kq)
	p.mu.Unlock()
	p.pollMu.Unlock()
	return err
}
