package reactor

import "sync/atomic"

// runState is the handler lifecycle flag: a boolean atomic that transitions
// false->true at most once on Start and true->false at most once on
// Terminate. There is no restart; a terminated handler stays terminated.
// started latches the first Start so a later one cannot win again.
type runState struct {
	v       atomic.Bool
	started atomic.Bool
}

// tryStart attempts the false->true transition, returning whether this call
// performed it. Only the first call ever performs it.
func (s *runState) tryStart() bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	s.v.Store(true)
	return true
}

// tryTerminate attempts the true->false transition, returning whether this
// call performed it.
func (s *runState) tryTerminate() bool {
	return s.v.CompareAndSwap(true, false)
}

// isRunning reports the current state.
func (s *runState) isRunning() bool {
	return s.v.Load()
}
