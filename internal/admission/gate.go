// Package admission implements the pool gate that bounds how far the
// server's spawn loop may run ahead of handlers that have started work.
//
// The gate is a counter guarded by a mutex and a condition variable. The
// spawn loop calls Acquire after it has already started a handler; a
// handler gives its token back with ReleaseDuring as soon as it has
// accepted a connection, not when it finishes.
package admission

import (
	"errors"
	"sync"
)

// DefaultCapacity is the number of tokens a gate starts with.
const DefaultCapacity = 3

// ErrClosed is returned by Acquire once the gate has been closed.
var ErrClosed = errors.New("admission: gate closed")

// Gate is the shared pool state. count is only read or written with mu held.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	count  int
	closed bool
}

// New creates a gate holding capacity tokens. Capacity below one is raised to one.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	g := &Gate{count: capacity}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire takes one token and blocks while the counter is not positive,
// re-checking after every wake-up.
func (g *Gate) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	g.count--
	for g.count <= 0 {
		if g.closed {
			return ErrClosed
		}
		g.cond.Wait()
	}
	return nil
}

// Release returns one token and wakes one waiter.
func (g *Gate) Release() {
	g.mu.Lock()
	g.count++
	g.cond.Signal()
	g.mu.Unlock()
}

// ReleaseDuring returns one token and runs work with the pool lock held.
// The waiter is signalled after work returns, right before the lock is
// dropped, so a blocked Acquire resumes only once work is over.
func (g *Gate) ReleaseDuring(work func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.count++
	err := work()
	g.cond.Signal()
	return err
}

// Available returns the current counter value.
func (g *Gate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

// Close wakes every waiter; pending and future Acquire calls return ErrClosed.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.cond.Broadcast()
	g.mu.Unlock()
}
