package cache

import "sync"

// chain runs steps strictly in enqueue order, one at a time, without
// blocking the enqueuer. Each step gets its own done channel, so a caller
// can wait for exactly its step while later steps stack up behind it.
//
// A chain never stops on failure. Steps that fail record their error out
// of band (the engine latches on it); the chain itself keeps draining so
// already-enqueued work still runs.
type chain struct {
	mu   sync.Mutex
	tail chan struct{}
}

// newChain returns a chain whose tail is already resolved, so the first
// enqueued step runs immediately.
func newChain() *chain {
	c := &chain{tail: make(chan struct{})}
	close(c.tail)
	return c
}

// enqueue schedules step to run after every previously enqueued step and
// returns a channel that closes once step has finished. Callers that do
// not care when the step completes simply drop the channel.
func (c *chain) enqueue(step func()) <-chan struct{} {
	done := make(chan struct{})
	c.mu.Lock()
	prev := c.tail
	c.tail = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		<-prev
		step()
	}()
	return done
}

// current returns a channel that closes once every step enqueued so far
// has finished. Steps enqueued after the call are not covered.
func (c *chain) current() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail
}
