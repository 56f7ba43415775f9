package driver

import (
	"time"

	"github.com/exp/sessioncoordinator/internal/comm"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
)

// TellAll broadcasts one message to every seat, or (if per-seat is true)
// sends msgs[i] to seat i. No replies are awaited (§4.4 tell_all).
func (d *Driver) TellAll(msgs []message.Message, perSeat bool) {
	d.Table.Each(func(i int, s *session.ClientSession) {
		m := msgs[0]
		if perSeat {
			m = msgs[i]
		}
		d.Comm.Send(s.Connection, m)
	})
}

// AskAll is the synchronous-request-over-async primitive (§4.4): send one
// message per seat (or the same message to all), then read the shared
// inbound game-message queue until every seat has replied, discarding
// duplicate replies from a seat that has already answered. Replies are
// returned indexed by seat id.
func (d *Driver) AskAll(msgs []message.Message, perSeat bool) []message.Message {
	n := d.Table.N()
	replies := make([]message.Message, n)

	d.Table.Each(func(i int, s *session.ClientSession) {
		s.ReplyReceived = false
		s.UnansweredMessage = nil
	})

	d.Table.Each(func(i int, s *session.ClientSession) {
		m := msgs[0]
		if perSeat {
			m = msgs[i]
		}
		s.UnansweredMessage = m
		d.Comm.Send(s.Connection, m)
	})

	remaining := 0
	d.Table.Each(func(i int, s *session.ClientSession) { remaining++ })

	for remaining > 0 {
		gm := <-d.Comm.GameQueue()
		if gm.Seat < 0 {
			continue // synthesized timer events are not seat replies
		}
		s := d.Table.Lookup(gm.Seat)
		if s == nil || s.ReplyReceived {
			continue // duplicate or unbound seat, per §4.4
		}
		s.ReplyReceived = true
		replies[gm.Seat] = gm.Msg
		remaining--
	}

	return replies
}

// GameQueue exposes the shared inbound gm queue to phases (e.g. the
// auction matching loop) that consume it directly instead of via AskAll,
// so controllers can share the same queue without reaching into
// unexported driver fields.
func (d *Driver) GameQueue() <-chan comm.GameMessage { return d.Comm.GameQueue() }

// awaitAll blocks until pred holds for every seat, woken by onReady's
// notification on readyNotify each time a `ready` event lands (§5: the
// event dispatcher is the only writer of ReplyReceived here, so no
// additional locking is needed).
func (d *Driver) awaitAll(n int, pred func(i int, s *session.ClientSession) bool) error {
	for {
		done := true
		d.Table.Each(func(i int, s *session.ClientSession) {
			if !pred(i, s) {
				done = false
			}
		})
		if done {
			return nil
		}
		select {
		case <-d.readyNotify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}
