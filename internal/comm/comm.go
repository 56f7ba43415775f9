// Package comm implements the Communicator (C3): the accept loop, per-
// connection send/receive workers, the shared inbound game-message queue,
// the pause gate, the auction timer, and the clock-sync handshake.
//
// Grounded on the teacher's gameserver.Server.Serve/acceptLoop (errgroup-
// style worker fan-out) and GameClient's per-connection sendCh/closeCh
// pair (internal/gameserver/client.go), generalized from an L2 packet
// protocol to the framed message.Message transport.
package comm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
	"github.com/exp/sessioncoordinator/internal/transport"
)

// GameMessage is one entry in the shared inbound game-message queue (§4.3,
// §5): a seat index paired with the gm Message it sent.
type GameMessage struct {
	Seat int
	Msg  message.Message
}

// Event is a non-game occurrence routed to the controller driver's event
// handler: connect, login, relogin, ready, chat, disconnect, and the
// synthesized connect/disconnect notifications. Auction timer expiry goes
// to the game queue instead (see StartTimer).
type Event struct {
	Seat int // -1 if not yet bound to a seat (pre-login / pre-relogin)
	Conn *session.Connection
	Msg  message.Message
}

// Handler is implemented by the controller driver (C4) to receive non-game
// events from the Communicator. HandleEvent runs on the Communicator's
// single event-dispatch goroutine, so the driver's state machine never
// needs to synchronize its own fields (§5).
type Handler interface {
	HandleEvent(ev Event)
}

// Communicator owns the listener and the concurrency machinery of C3.
type Communicator struct {
	ln      net.Listener
	handler Handler

	gate  pauseGate
	timer auctionTimer

	gameQueue  chan GameMessage
	eventQueue chan Event

	pingInterval time.Duration
	idleTimeout  time.Duration
	loginTimeout time.Duration

	codec transport.Codec
}

// Config supplies timing parameters; zero values take the §4.1/§4.4
// defaults.
type Config struct {
	PingInterval time.Duration
	IdleTimeout  time.Duration
	LoginTimeout time.Duration
	Codec        transport.Codec
}

// New constructs a Communicator bound to handler's event sink.
func New(handler Handler, cfg Config) *Communicator {
	c := &Communicator{
		handler:      handler,
		gameQueue:    make(chan GameMessage, 256),
		eventQueue:   make(chan Event, 256),
		pingInterval: cfg.PingInterval,
		idleTimeout:  cfg.IdleTimeout,
		loginTimeout: cfg.LoginTimeout,
		codec:        cfg.Codec,
	}
	if c.pingInterval <= 0 {
		c.pingInterval = transport.DefaultPingInterval
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = transport.DefaultIdleTimeout
	}
	if c.loginTimeout <= 0 {
		c.loginTimeout = 5 * time.Second
	}
	return c
}

// SetHandler binds the event sink after construction, for callers (e.g.
// cmd/coordinator) that must build the Driver and Communicator as a pair
// and cannot supply the Driver at New time (§9: Controller Driver and
// Communicator reference each other). Must be called before Serve.
func (c *Communicator) SetHandler(handler Handler) { c.handler = handler }

// GameQueue exposes the shared inbound game-message channel for ask_all /
// tell_all and the auction matching loop to consume.
func (c *Communicator) GameQueue() <-chan GameMessage { return c.gameQueue }

// Pause transitions to paused: subsequent gm sends/receives block, and any
// running auction timer is cancelled (§4.3).
func (c *Communicator) Pause() time.Duration {
	c.gate.Pause()
	return c.timer.Cancel()
}

// Resume reopens the gate.
func (c *Communicator) Resume() { c.gate.Resume() }

// Paused reports the current pause state.
func (c *Communicator) Paused() bool { return c.gate.Paused() }

// StartTimer (re)starts the single-shot auction timer. On expiry it
// enqueues a timeup game message addressed to no particular seat (-1),
// per §4.3.
func (c *Communicator) StartTimer(d time.Duration) {
	c.timer.Start(d, func() {
		c.gameQueue <- GameMessage{Seat: -1, Msg: message.Message{Type: message.TypeGameMessage, Subtype: message.GMTimeup}}
	})
}

// CancelTimer stops the auction timer, returning the time left at
// cancellation.
func (c *Communicator) CancelTimer() time.Duration { return c.timer.Cancel() }

// TimeLeftAtCancel returns the duration recorded by the last cancellation
// of a running timer (by Pause or CancelTimer).
func (c *Communicator) TimeLeftAtCancel() time.Duration { return c.timer.Remaining() }

// Serve runs the accept loop until ctx is cancelled or the listener fails.
// Grounded on the teacher's acceptLoop (internal/gameserver/server.go):
// per accepted socket, construct a Connection, post a synthesized connect
// event *before* starting the receive worker (prevents the race where the
// first inbound message precedes the connect notification), then start
// send/receive workers and run the clock-sync handshake.
func (c *Communicator) Serve(ctx context.Context, ln net.Listener) error {
	c.ln = ln
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go c.dispatchEvents(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			select {
			case <-ctx.Done():
			default:
				slog.Error("accept failed", "error", err)
			}
			continue
		}
		conn := session.NewConnection(transport.New(raw, c.codec))
		conn.Conn.SetTimings(c.pingInterval, c.idleTimeout)

		c.eventQueue <- Event{Seat: -1, Conn: conn, Msg: message.Message{Type: message.TypeConnect}}

		g.Go(func() error { c.runSender(gctx, conn); return nil })
		g.Go(func() error { c.runReceiver(gctx, conn); return nil })
		go c.syncClock(conn)
	}
	return g.Wait()
}

func (c *Communicator) dispatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.eventQueue:
			c.handler.HandleEvent(ev)
		}
	}
}

// runSender drains conn's outbound queue, blocking gm-type sends while
// paused (non-game types bypass the gate per §4.3), and emits a ping after
// pingInterval of outbound silence (§4.1, §5).
func (c *Communicator) runSender(ctx context.Context, conn *session.Connection) {
	ticker := time.NewTicker(conn.Conn.PingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-conn.SendQueue:
			if req.IsGame {
				c.gate.awaitOpen()
			}
			err := conn.Conn.Send(req.Msg)
			if req.Done != nil {
				req.Done <- err
			}
			if err != nil {
				return
			}
			ticker.Reset(conn.Conn.PingInterval())
		case <-ticker.C:
			if err := conn.Conn.SendPingIfIdle(); err != nil {
				return
			}
		}
	}
}

// runReceiver reads frames until disconnect/idle-timeout, routing gm
// messages to the shared game queue (suspending there while paused) and
// everything else to the event queue.
func (c *Communicator) runReceiver(ctx context.Context, conn *session.Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m, err := conn.Conn.Recv()
		if err != nil {
			c.eventQueue <- Event{Seat: conn.Seat(), Conn: conn, Msg: message.Message{Type: message.TypeDisconnect}}
			return
		}

		switch {
		case m.Type == message.TypeSync:
			select {
			case conn.SyncReplyQueue <- m.ClientTime:
			default:
			}
		case m.IsGame():
			c.gate.awaitOpen()
			c.gameQueue <- GameMessage{Seat: conn.Seat(), Msg: m}
		default:
			c.eventQueue <- Event{Seat: conn.Seat(), Conn: conn, Msg: m}
		}
	}
}

// Send queues m on conn's outbound queue; the per-connection sender waits
// on the pause gate before writing a gm message. Send does not wait for
// delivery.
func (c *Communicator) Send(conn *session.Connection, m message.Message) {
	conn.SendQueue <- session.SendRequest{Msg: m, IsGame: m.IsGame()}
}

// LoginTimeout returns the configured per-seat login timeout.
func (c *Communicator) LoginTimeout() time.Duration { return c.loginTimeout }
