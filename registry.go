package reactor

import "sync"

// liveSet is the live-set registry: a mutex-protected intrusive doubly
// linked list of open connection handles. Connection embeds its own
// next/prev pointers, so add and remove are O(1) with no auxiliary lookup.
type liveSet struct {
	mu   sync.Mutex
	head *Connection
}

// add links h at the head of the list. h must not already be linked.
func (r *liveSet) add(h *Connection) {
	r.mu.Lock()
	h.prev = nil
	h.next = r.head
	if r.head != nil {
		r.head.prev = h
	}
	r.head = h
	h.inSet = true
	r.mu.Unlock()
}

// remove unlinks h from the list if it is currently linked, fixing up the
// head pointer if h was the head. Safe to call more than once; the second
// call is a no-op.
func (r *liveSet) remove(h *Connection) {
	r.mu.Lock()
	if !h.inSet {
		r.mu.Unlock()
		return
	}
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		r.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.next, h.prev = nil, nil
	h.inSet = false
	r.mu.Unlock()
}

// snapshot returns every handle currently in the live set, in list order.
// The mutex is held only long enough to walk the list and copy pointers;
// none of the returned handles' callbacks run while it is held.
func (r *liveSet) snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Connection
	for h := r.head; h != nil; h = h.next {
		out = append(out, h)
	}
	return out
}

// closeAll walks the live set and closes every member, then clears the
// head. Closing is done outside the registry mutex: Connection.Close
// itself takes the mutex briefly to unlink, so holding it across the walk
// would deadlock, and user code must never run with the mutex held.
func (r *liveSet) closeAll(reason error) {
	for _, h := range r.snapshot() {
		h.Close(reason)
	}
}
