package comm

import (
	"sync"
	"time"
)

// auctionTimer is the single-shot auction timer of §4.3/§5. On expiry it
// enqueues a timeup game message into the Communicator's inbound queue.
// Cancellation is idempotent and records the remaining interval so a
// later Resume can restart it for exactly that remainder (§4.4 onUnpause,
// §5 cancellation and timeout).
type auctionTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	running  bool

	remaining time.Duration // set on Cancel; consumed by Remaining
}

// Start begins a single-shot timer of interval d. onExpire runs in its own
// goroutine when the timer fires without being cancelled first.
func (a *auctionTimer) Start(d time.Duration, onExpire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.deadline = time.Now().Add(d)
	a.running = true
	a.timer = time.AfterFunc(d, func() {
		a.mu.Lock()
		if !a.running {
			a.mu.Unlock()
			return
		}
		a.running = false
		a.mu.Unlock()
		onExpire()
	})
}

// Cancel stops the timer if running, recording the time left at
// cancellation (timeLeftAtCancel). Idempotent: cancelling an already-
// stopped timer leaves the previously recorded remaining duration intact.
func (a *auctionTimer) Cancel() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return a.remaining
	}
	a.running = false
	if a.timer != nil {
		a.timer.Stop()
	}
	left := time.Until(a.deadline)
	if left < 0 {
		left = 0
	}
	a.remaining = left
	return left
}

// Remaining returns the duration left at the last Cancel.
func (a *auctionTimer) Remaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}
