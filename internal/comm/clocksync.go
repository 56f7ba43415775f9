package comm

import (
	"time"

	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
)

// syncProbes is the number of round trips the clock-sync handshake sends,
// per §4.3.
const syncProbes = 4

// syncClock runs the four-probe clock-sync handshake and stores the best
// estimate on conn. Invariant 4 (§3) requires this to complete before any
// gm exchange with the seat; callers that gate `init`/`ready` on a
// completed handshake satisfy that invariant.
func (c *Communicator) syncClock(conn *session.Connection) {
	var bestRTT time.Duration = -1
	var bestOffset float64

	for i := 0; i < syncProbes; i++ {
		st1 := time.Now()
		c.Send(conn, message.Message{Type: message.TypeSync})

		select {
		case ct := <-conn.SyncReplyQueue:
			st2 := time.Now()
			rtt := st2.Sub(st1)
			if bestRTT < 0 || rtt < bestRTT {
				bestRTT = rtt
				bestOffset = ct + rtt.Seconds()/2 - secondsSince(st2)
			}
		case <-time.After(2 * time.Second):
			// Missed probe: skip it, the remaining probes still run.
		}
	}

	if bestRTT >= 0 {
		conn.SetClockOffset(bestOffset)
	}
}

// secondsSince returns t expressed as seconds-since-epoch, matching the
// scale of the client-reported ct so clockOffset = ct + rtt/2 - st2 is
// computed in the same unit (§4.3).
func secondsSince(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
