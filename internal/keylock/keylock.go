// Package keylock provides per-key mutual exclusion with FIFO handoff.
//
// The write-back engine serializes mutations of one key across two
// different execution streams (foreground writes and background
// migrations). A plain mutex per key would do, but the map of keys churns
// constantly, so locks here are created on first contact and evaporate as
// soon as the last holder releases. Waiters are woken strictly in arrival
// order, which keeps a burst of writes to one key from starving any single
// caller.
package keylock

import "sync"

// Locker hands out per-key locks. The zero value is not usable; call New.
type Locker struct {
	mu   sync.Mutex
	keys map[string]*keyState
}

type keyState struct {
	// waiters are pending acquirers in arrival order. The head is woken
	// on release; the holder itself is not in the queue.
	waiters []chan struct{}
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{keys: make(map[string]*keyState)}
}

// Acquire blocks until key's lock is free and takes it. The returned
// function releases the lock and must be called exactly once, typically
// via defer.
func (l *Locker) Acquire(key string) (release func()) {
	l.mu.Lock()
	st, held := l.keys[key]
	if !held {
		l.keys[key] = &keyState{}
		l.mu.Unlock()
		return func() { l.release(key) }
	}
	ch := make(chan struct{})
	st.waiters = append(st.waiters, ch)
	l.mu.Unlock()
	<-ch
	return func() { l.release(key) }
}

// Len reports how many keys are currently locked or contended.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	st := l.keys[key]
	if st == nil {
		l.mu.Unlock()
		return
	}
	if len(st.waiters) == 0 {
		delete(l.keys, key)
		l.mu.Unlock()
		return
	}
	// Hand the lock to the oldest waiter without unlocking the key state.
	next := st.waiters[0]
	st.waiters = st.waiters[1:]
	l.mu.Unlock()
	close(next)
}
