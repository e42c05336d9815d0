// Package gate bounds how many transcriptions run against the Azure batch
// API at once. Interactive requests jump ahead of batch work when slots
// free up.
package gate

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("gate closed")

type waiter struct {
	ready chan struct{}
	// err is set under the gate mutex before ready is closed; Acquire
	// reads it only after <-ready.
	err error
}

// Gate is a counting semaphore with two admission lanes. Waiters in the
// interactive lane are always released before batch waiters.
type Gate struct {
	mu          sync.Mutex
	capacity    int
	inUse       int
	closed      bool
	interactive []*waiter
	batch       []*waiter
}

// New builds a gate with the given capacity. Non-positive capacities are
// treated as 1.
func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{capacity: capacity}
}

// Capacity returns the configured slot count.
func (g *Gate) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity
}

// InUse returns the number of held slots.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// Acquire blocks until a slot is free or the context ends. Interactive
// callers are admitted before queued batch callers.
func (g *Gate) Acquire(ctx context.Context, interactive bool) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.inUse < g.capacity && len(g.interactive) == 0 && (interactive || len(g.batch) == 0) {
		g.inUse++
		g.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	if interactive {
		g.interactive = append(g.interactive, w)
	} else {
		g.batch = append(g.batch, w)
	}
	g.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-w.ready:
			if w.err == nil {
				// Slot was granted while cancelling; hand it to the next waiter.
				g.releaseLocked()
			}
			g.mu.Unlock()
			return ctx.Err()
		default:
		}
		g.remove(w, interactive)
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

// Close fails all queued waiters and rejects future acquisitions. Held
// slots may still be released.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for _, w := range g.interactive {
		w.err = ErrClosed
		close(w.ready)
	}
	for _, w := range g.batch {
		w.err = ErrClosed
		close(w.ready)
	}
	g.interactive = nil
	g.batch = nil
}

func (g *Gate) releaseLocked() {
	if g.inUse == 0 {
		return
	}
	if g.closed {
		g.inUse--
		return
	}
	if len(g.interactive) > 0 {
		w := g.interactive[0]
		g.interactive = g.interactive[1:]
		close(w.ready)
		return
	}
	if len(g.batch) > 0 {
		w := g.batch[0]
		g.batch = g.batch[1:]
		close(w.ready)
		return
	}
	g.inUse--
}

func (g *Gate) remove(target *waiter, interactive bool) {
	queue := &g.batch
	if interactive {
		queue = &g.interactive
	}
	for i, w := range *queue {
		if w == target {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return
		}
	}
}
