package reactor

// side distinguishes a selector loop's role: a read-side loop handles
// CONNECT and READ; a write-side loop handles WRITE only.
type side uint8

const (
	sideRead side = iota
	sideWrite
)

func (s side) String() string {
	if s == sideRead {
		return "read"
	}
	return "write"
}

// selectorLoop is the long-lived task that drains its registration queue,
// polls its poller, and dispatches ready keys to the dispatcher. The system
// runs 2*Q of these: Q read-side, Q write-side.
type selectorLoop struct {
	index   int
	side    side
	poller  poller
	queue   *registrationQueue
	handler *ChannelHandler

	done chan struct{}
}

func newSelectorLoop(index int, s side, p poller, handler *ChannelHandler) *selectorLoop {
	return &selectorLoop{
		index:   index,
		side:    s,
		poller:  p,
		queue:   newRegistrationQueue(handler.cfg.queueCapHint),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// enqueue posts a registration action to this loop and wakes its poller.
// The wakeup happens after the push so the loop either observes the action
// in its next drain step or is woken out of an in-progress poll.
func (l *selectorLoop) enqueue(a registrationAction) {
	l.queue.push(a)
	l.poller.wakeup()
}

// run is the loop body; it exits when handler.state observes false, when
// the poller reports a closed condition, or on any other poll error.
func (l *selectorLoop) run() {
	defer close(l.done)

	var drained []registrationAction
	for l.handler.state.isRunning() {
		drained = l.drainActions(drained[:0])

		events, err := l.poller.poll(l.handler.cfg.selectTimeout)
		if err != nil {
			if err == ErrPollerClosed {
				return
			}
			logError(l.handler.cfg.logger, "selector loop poll failed", &PollError{Loop: l.index, Side: l.side.String(), Cause: err})
			return
		}

		for _, ev := range events {
			if !l.handler.state.isRunning() {
				return
			}
			l.dispatch(ev)
		}
	}
}

func (l *selectorLoop) drainActions(buf []registrationAction) []registrationAction {
	buf = l.queue.drain(buf)
	for _, a := range buf {
		l.applyAction(a)
	}
	return buf
}

func (l *selectorLoop) applyAction(a registrationAction) {
	defer func() {
		if r := recover(); r != nil {
			logDebugFields(l.handler.cfg.logger, "recovered panic applying registration action", "panic", panicString(r))
		}
	}()

	if a.handle.IsClosed() {
		return
	}

	err := l.poller.register(a.handle, a.interest)
	if err == nil {
		if l.side == sideRead {
			a.handle.lastReadInterest = a.interest
		}
		return
	}
	// register already handles re-arms of a known descriptor, so it failed
	// for another reason; try modify once before giving up.
	if err2 := l.poller.modify(a.handle, a.interest); err2 != nil {
		// Registration failed outright: the socket is already gone, so
		// the connection is too.
		a.handle.Close(err)
		return
	}
	if l.side == sideRead {
		a.handle.lastReadInterest = a.interest
	}
}

func (l *selectorLoop) dispatch(ev readyEvent) {
	h := ev.handle
	// One-shot: clear interest before dispatching, regardless of outcome.
	_ = l.poller.modify(h, interestNone)

	switch l.side {
	case sideRead:
		// A read-side loop only ever registers a handle for CONNECT or
		// READ; lastReadInterest records whichever this loop itself most
		// recently applied, so it disambiguates the event without racing
		// the dispatcher's asynchronous markOpen (app-visible state can
		// still read NEW here if Accepted hasn't run yet on its worker).
		if h.lastReadInterest == interestConnect {
			l.dispatchConnect(h)
			return
		}
		l.dispatchRead(h)
	case sideWrite:
		l.dispatchWrite(h)
	}
}

func (l *selectorLoop) dispatchConnect(h *Connection) {
	outcome, err := finishConnect(h.channel.Fd())
	switch outcome {
	case connectSucceeded:
		if !l.handler.dispatcher.submit(func() {
			h.markOpen()
			h.sink.Connected(h)
		}) {
			h.Close(ErrDispatcherSaturated)
		}
	case connectPending:
		l.enqueue(registrationAction{index: l.index, handle: h, interest: interestConnect})
	default:
		h.Close(&ConnectError{Addr: h.channel.remote, Cause: err})
	}
}

func (l *selectorLoop) dispatchRead(h *Connection) {
	if !l.handler.dispatcher.submit(h.sink.ReadReady) {
		// READ saturation policy: re-post for retry next tick.
		l.enqueue(registrationAction{index: l.index, handle: h, interest: interestRead})
	}
}

func (l *selectorLoop) dispatchWrite(h *Connection) {
	if !l.handler.dispatcher.submit(h.sink.WriteReady) {
		// WRITE saturation policy: re-post for retry next tick.
		l.enqueue(registrationAction{index: l.index, handle: h, interest: interestWrite})
	}
}
