package comm

import (
	"sync"
	"sync/atomic"
)

// pauseGate implements the Communicator's pause gate (§4.3, §5): a
// read/write lock where many concurrent senders/receivers proceed while
// not paused, and a single writer (Pause) holds the lock across the
// entire paused interval, releasing it on Resume. Modeled on the
// teacher's preference for sync primitives with clear single-writer
// semantics (cf. gameserver.Server.mu guarding rare state transitions)
// rather than channel-based signaling, since the "hold across the
// interval" requirement maps directly onto RWMutex.Lock/Unlock.
type pauseGate struct {
	mu     sync.RWMutex
	paused atomic.Bool
}

// Pause transitions the gate to paused, blocking all subsequent gm sends
// and game-message receives until Resume is called. Pause itself does not
// block.
func (g *pauseGate) Pause() {
	if !g.paused.CompareAndSwap(false, true) {
		return
	}
	g.mu.Lock()
}

// Resume releases the gate. Idempotent.
func (g *pauseGate) Resume() {
	if !g.paused.CompareAndSwap(true, false) {
		return
	}
	g.mu.Unlock()
}

// Paused reports the current pause state without blocking.
func (g *pauseGate) Paused() bool {
	return g.paused.Load()
}

// awaitOpen blocks until the gate is not paused, then returns. Non-game
// message types never call this (§4.3).
func (g *pauseGate) awaitOpen() {
	g.mu.RLock()
	//nolint:staticcheck // intentionally released at once: the read lock is
	// only a barrier that waits out a paused interval, and is not held
	// across the caller's send or receive.
	g.mu.RUnlock()
}
