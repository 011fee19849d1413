package reactor

import "sync/atomic"

// atomicError stores an optional error atomically. atomic.Value cannot hold
// a nil interface directly, so a nil error is wrapped in errBox before
// storing.
type atomicError struct {
	v atomic.Value
}

type errBox struct{ err error }

func (a *atomicError) store(err error) {
	a.v.Store(errBox{err: err})
}

func (a *atomicError) load() error {
	v := a.v.Load()
	if v == nil {
		return nil
	}
	return v.(errBox).err
}
