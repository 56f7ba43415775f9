package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/exp/sessioncoordinator/internal/comm"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
)

// Phase is a session-wide lifecycle state, per §4.4's state diagram.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAccepting
	PhaseLoggingIn
	PhaseReady
	PhaseRunning
	PhasePaused
	PhaseDisconnectedPause
	PhaseFinished
)

// Persister is the subset of C6 the driver calls directly: a flush after
// each round and a chat-append on every chat message. The concrete CSV
// writer lives in package persist; this interface avoids a dependency
// cycle (persist depends on nothing in driver).
type Persister interface {
	FlushRound(match, round int, table *session.Table) error
	AppendChat(seat int, name, text string) error
	DumpParams(params map[string]any) error
	AppendMarketEvent(match, round, group int, marketColor, action string, buyer int, bid, accept, ask string, seller int, ts string) error
}

// Driver orchestrates one session end-to-end (C4).
type Driver struct {
	Table *session.Table
	Comm  *comm.Communicator

	controller Controller
	persist    Persister
	chatFilter func(seat int, text string) bool

	mu    sync.Mutex
	phase Phase

	match int
	round int

	loginTimers map[int]*time.Timer

	startCh     chan struct{}
	nextRoundCh chan struct{}
	readyNotify chan struct{}
	pendingDisconnects map[int]bool
}

// New constructs a Driver over an already-sized Session Table.
func New(table *session.Table, c *comm.Communicator, controller Controller, persister Persister) *Driver {
	return &Driver{
		Table:              table,
		Comm:               c,
		controller:         controller,
		persist:            persister,
		phase:              PhaseInit,
		match:              1,
		round:              0,
		loginTimers:        make(map[int]*time.Timer),
		startCh:            make(chan struct{}, 1),
		nextRoundCh:        make(chan struct{}, 1),
		readyNotify:        make(chan struct{}, 1),
		pendingDisconnects: make(map[int]bool),
	}
}

// EnableChat installs an optional filter predicate for chat relay (§6
// enableChat). A nil filter allows every message.
func (d *Driver) EnableChat(filter func(seat int, text string) bool) {
	d.chatFilter = filter
}

func (d *Driver) setPhase(p Phase) {
	d.mu.Lock()
	d.phase = p
	d.mu.Unlock()
}

// Phase returns the current session phase.
func (d *Driver) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Match and Round report the current position; controllers call SetMatch
// to advance the match counter (the driver advances Round itself between
// runRound iterations).
func (d *Driver) Match() int { return d.match }
func (d *Driver) Round() int { return d.round }
func (d *Driver) SetMatch(m int) { d.match = m }

// PersistMarketEvent forwards one market-history row to the configured
// Persister, a no-op if persistence is disabled (§4.6, §8).
func (d *Driver) PersistMarketEvent(group int, marketColor, action string, buyer int, bid, accept, ask string, seller int, ts string) error {
	if d.persist == nil {
		return nil
	}
	return d.persist.AppendMarketEvent(d.match, d.round, group, marketColor, action, buyer, bid, accept, ask, seller, ts)
}

// HandleEvent implements comm.Handler. It runs on the Communicator's
// single event-dispatch goroutine, so no locking is needed around
// controller state (§5).
func (d *Driver) HandleEvent(ev comm.Event) {
	switch ev.Msg.Type {
	case message.TypeConnect:
		d.onConnect(ev)
	case message.TypeLogin:
		d.onLogin(ev)
	case message.TypeRelogin:
		d.onRelogin(ev)
	case message.TypeReady:
		d.onReady(ev)
	case message.TypeChat:
		d.onChat(ev)
	case message.TypeDisconnect:
		d.onDisconnect(ev)
	default:
		slog.Warn("discarding message in unexpected state", "type", ev.Msg.Type, "phase", d.Phase())
	}
}

// onConnect implements the Accepting state (§4.4): a brand-new socket is
// either the session's initial fill (pre-running) or a reconnection
// attempt (running, with at least one disconnected seat).
func (d *Driver) onConnect(ev comm.Event) {
	phase := d.Phase()
	if phase == PhaseRunning || phase == PhasePaused || phase == PhaseDisconnectedPause {
		if d.anyDisconnected() {
			d.sendReloginPrompt(ev.Conn)
			return
		}
		slog.Warn("connect with no disconnected seats during running session; dropping")
		ev.Conn.Conn.Close()
		return
	}

	i, err := d.Table.Allocate(ev.Conn)
	if err != nil {
		d.Comm.Send(ev.Conn, message.Message{Type: message.TypeError, ErrorString: "session is full"})
		ev.Conn.Conn.Close()
		return
	}
	ev.Conn.SetSeat(i)
	d.setPhase(PhaseAccepting)

	d.Comm.Send(ev.Conn, message.Message{Type: message.TypeLoginPrompt})
	d.startLoginTimer(i)
}

func (d *Driver) startLoginTimer(seat int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := time.AfterFunc(d.Comm.LoginTimeout(), func() {
		s := d.Table.Lookup(seat)
		if s == nil || s.Name != "" {
			return
		}
		d.Comm.Send(s.Connection, message.Message{Type: message.TypeError, ErrorString: "login timed out"})
		s.Connection.Conn.Close()
		d.Table.Release(seat)
	})
	d.loginTimers[seat] = t
}

func (d *Driver) cancelLoginTimer(seat int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.loginTimers[seat]; ok {
		t.Stop()
		delete(d.loginTimers, seat)
	}
}

// onLogin validates and applies a login, per §4.4 Login.
func (d *Driver) onLogin(ev comm.Event) {
	if d.Phase() == PhaseRunning || d.Phase() == PhasePaused {
		d.Comm.Send(ev.Conn, message.Message{Type: message.TypeError, ErrorString: "session already running"})
		return
	}

	seat := ev.Conn.Seat()
	s := d.Table.Lookup(seat)
	if s == nil {
		return
	}

	name := ev.Msg.Name
	if name == "" {
		d.Comm.Send(ev.Conn, message.Message{Type: message.TypeError, ErrorString: "name required"})
		d.Table.Release(seat)
		ev.Conn.Conn.Close()
		return
	}
	if d.Table.NameTaken(name, seat) {
		d.Comm.Send(ev.Conn, message.Message{Type: message.TypeError, ErrorString: "name already in use"})
		d.Table.Release(seat)
		ev.Conn.Conn.Close()
		return
	}

	d.cancelLoginTimer(seat)
	s.Name = name
	s.RoundingPolicy = session.RoundingPolicy(d.controller.GetRounding())
	d.Table.SetStatus(seat, session.StatusConnected)

	if d.Table.AllNamed() {
		d.setPhase(PhaseLoggingIn)
		select {
		case d.startCh <- struct{}{}:
		default:
		}
	}
}

func (d *Driver) anyDisconnected() bool {
	found := false
	d.Table.Each(func(i int, s *session.ClientSession) {
		if s.Status == session.StatusDisconnected {
			found = true
		}
	})
	return found
}

func (d *Driver) sendReloginPrompt(conn *session.Connection) {
	var list []message.DisconnectedClient
	d.Table.Each(func(i int, s *session.ClientSession) {
		if s.Status == session.StatusDisconnected {
			list = append(list, message.DisconnectedClient{ID: s.ID, Name: s.Name})
		}
	})
	d.Comm.Send(conn, message.Message{Type: message.TypeReloginPrompt, DisconnectedClients: list})
}

// onRelogin rebinds a reconnecting socket per §4.4 Reconnection.
func (d *Driver) onRelogin(ev comm.Event) {
	s := d.Table.Lookup(ev.Msg.ID)
	if s == nil || s.Status != session.StatusDisconnected {
		d.Comm.Send(ev.Conn, message.Message{Type: message.TypeError, ErrorString: "invalid relogin"})
		ev.Conn.Conn.Close()
		return
	}

	if err := d.Table.Reassign(ev.Msg.ID, ev.Conn); err != nil {
		d.Comm.Send(ev.Conn, message.Message{Type: message.TypeError, ErrorString: "invalid relogin"})
		ev.Conn.Conn.Close()
		return
	}
	ev.Conn.SetSeat(ev.Msg.ID)

	d.mu.Lock()
	delete(d.pendingDisconnects, ev.Msg.ID)
	remaining := len(d.pendingDisconnects)
	d.mu.Unlock()

	reinit := d.controller.GetReinitParams(d, ev.Msg.ID)
	reinit.Type = message.TypeReinit
	d.Comm.Send(ev.Conn, reinit)

	if remaining == 0 {
		// Unpause re-enables once every seat is connected again; the
		// operator calls Resume() explicitly (§6 resume()).
		d.setPhase(PhasePaused)
	}
}

// onReady advances LoggingIn -> Ready once every seat has replied, and is
// reused after reconnection as the client's signal that it has finished
// reconstructing state from `reinit`.
func (d *Driver) onReady(ev comm.Event) {
	seat := ev.Conn.Seat()
	s := d.Table.Lookup(seat)
	if s != nil {
		s.ReplyReceived = true
	}
	select {
	case d.readyNotify <- struct{}{}:
	default:
	}
}

func (d *Driver) onChat(ev comm.Event) {
	if d.chatFilter != nil && !d.chatFilter(ev.Conn.Seat(), ev.Msg.ChatText) {
		return
	}
	seat := ev.Conn.Seat()
	s := d.Table.Lookup(seat)
	name := ""
	if s != nil {
		name = s.Name
	}
	if d.persist != nil {
		if err := d.persist.AppendChat(seat, name, ev.Msg.ChatText); err != nil {
			slog.Error("append chat", "error", err)
		}
	}
	d.Table.Each(func(i int, other *session.ClientSession) {
		if other.Connection != nil {
			d.Comm.Send(other.Connection, message.Message{Type: message.TypeChat, ChatFrom: seat, ChatText: ev.Msg.ChatText})
		}
	})
}

// onDisconnect implements the Running -> Disconnected -> Paused path of
// §4.4: a disconnected seat forces a pause and blocks Unpause; a second
// disconnect (nested) remains paused.
func (d *Driver) onDisconnect(ev comm.Event) {
	seat := ev.Conn.Seat()
	if seat < 0 {
		return // pre-login connection; nothing to mark
	}
	s := d.Table.Lookup(seat)
	if s == nil {
		return
	}
	d.Table.SetStatus(seat, session.StatusDisconnected)

	if d.Phase() != PhaseRunning && d.Phase() != PhasePaused && d.Phase() != PhaseDisconnectedPause {
		return
	}

	d.mu.Lock()
	d.pendingDisconnects[seat] = true
	d.mu.Unlock()

	d.setPhase(PhaseDisconnectedPause)
	d.Pause()
}

// Pause is the operator entry point (§6 pause()).
func (d *Driver) Pause() {
	d.Comm.Pause()
	if d.Phase() == PhaseRunning {
		d.setPhase(PhasePaused)
	}
}

// Resume is the operator entry point (§6 resume()); legal only once every
// seat is reconnected (no pending disconnects).
func (d *Driver) Resume() error {
	d.mu.Lock()
	pending := len(d.pendingDisconnects)
	d.mu.Unlock()
	if pending > 0 {
		return fmt.Errorf("resume: %d seat(s) still disconnected", pending)
	}
	d.Comm.Resume()
	d.setPhase(PhaseRunning)
	d.controller.OnUnpause(d)
	return nil
}

// NextRound is the operator entry point (§6 nextRound()) that releases a
// round loop waiting at step 6 of §4.4 Running.
func (d *Driver) NextRound() {
	select {
	case d.nextRoundCh <- struct{}{}:
	default:
	}
}

// Start runs the Running phase to completion: init -> ready -> round loop
// -> endOfExperiment (§4.4). Blocks until the last round completes.
func (d *Driver) Start(ctx context.Context, autoAdvance bool) error {
	<-d.startCh

	n := d.Table.N()
	d.Table.Each(func(i int, s *session.ClientSession) {
		extra := d.controller.InitMessage(d, i)
		d.Comm.Send(s.Connection, message.Message{
			Type: message.TypeInit, GUIClass: "controller", ID: i, Name: s.Name, Extra: extra,
		})
	})
	if err := d.awaitAll(n, func(i int, s *session.ClientSession) bool { return s.ReplyReceived }); err != nil {
		return err
	}
	d.resetReplyFlags()

	d.setPhase(PhaseReady)
	d.controller.InitClients(d)
	d.setPhase(PhaseRunning)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d.round++
		d.broadcastRound()

		cont := d.controller.RunRound(d)

		d.sendEarnings()
		d.controller.PostRound(d)

		if d.persist != nil {
			if err := d.persist.FlushRound(d.match, d.round, d.Table); err != nil {
				slog.Error("persist round flush failed; this round is not flushed again", "error", err)
			}
		}

		if !cont {
			break
		}
		if !autoAdvance {
			<-d.nextRoundCh
		}
	}

	d.setPhase(PhaseFinished)
	d.broadcastEndOfExperiment()
	return nil
}

func (d *Driver) broadcastRound() {
	d.Table.Each(func(i int, s *session.ClientSession) {
		d.Comm.Send(s.Connection, message.Message{Type: message.TypeRound, Round: d.round})
	})
}

func (d *Driver) sendEarnings() {
	d.Table.Each(func(i int, s *session.ClientSession) {
		d.Comm.Send(s.Connection, message.Message{Type: message.TypeEarnings, Earnings: s.Earnings})
	})
}

func (d *Driver) broadcastEndOfExperiment() {
	showUp := d.controller.GetShowUpPayment()
	d.Table.Each(func(i int, s *session.ClientSession) {
		policy := session.RoundingPolicy(d.controller.GetRounding())
		total := policy.Round(s.Earnings.Add(showUp))
		d.Comm.Send(s.Connection, message.Message{
			Type:          message.TypeEndOfExperiment,
			Earnings:      s.Earnings,
			ShowUpPayment: showUp,
			Rounding:      string(policy),
			TotalPayment:  total,
		})
	})
}

func (d *Driver) resetReplyFlags() {
	d.Table.Each(func(i int, s *session.ClientSession) { s.ReplyReceived = false })
}
