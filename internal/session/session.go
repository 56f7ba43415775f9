// Package session implements the Session Table (C2): the fixed-length
// array of per-seat state that is the single source of truth for seat
// status and connection binding. Modeled on the teacher's
// gameserver.ClientManager (a registered-clients map guarded by a single
// mutex per operation) adapted to a fixed, pre-sized array of seats rather
// than a dynamically-growing account map.
package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/transport"
)

// ErrNoSlot is returned by Table.Allocate when every seat is already bound.
var ErrNoSlot = errors.New("session: no free slot")

// ErrNotDisconnected is returned by Table.Reassign when the target seat is
// not currently disconnected.
var ErrNotDisconnected = errors.New("session: seat is not disconnected")

// Status is a seat's lifecycle state. Controllers may layer additional
// string values on top of the fixed set below (§3 ClientSession.status).
type Status string

const (
	StatusWaiting      Status = "waiting-for-connection"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// RoundingPolicy is one of the five fixed-point payout rounding modes.
type RoundingPolicy string

const (
	RoundPenny     RoundingPolicy = "penny"
	RoundQuarter   RoundingPolicy = "quarter"
	RoundQuarterUp RoundingPolicy = "quarter-up"
	RoundDollar    RoundingPolicy = "dollar"
	RoundDollarUp  RoundingPolicy = "dollar-up"
)

// Round applies the policy to v, returning a value at the policy's scale.
func (p RoundingPolicy) Round(v decimal.Decimal) decimal.Decimal {
	switch p {
	case RoundQuarter:
		return v.Div(decimal.NewFromFloat(0.25)).Round(0).Mul(decimal.NewFromFloat(0.25))
	case RoundQuarterUp:
		return v.Div(decimal.NewFromFloat(0.25)).Ceil().Mul(decimal.NewFromFloat(0.25))
	case RoundDollar:
		return v.Round(0)
	case RoundDollarUp:
		return v.Ceil()
	default: // RoundPenny
		return v.Round(2)
	}
}

// Connection owns the transport-level handle for one seat, the per-
// connection send/sync-reply queues, the clock offset established during
// handshake, and the index of the seat it is bound to (-1 while unbound —
// a new socket may arrive before its seat index is known).
type Connection struct {
	Conn *transport.Conn

	// SendQueue and SyncReplyQueue are multi-producer single-consumer
	// (§5): the per-connection sender drains SendQueue; the clock-sync
	// handshake drains SyncReplyQueue.
	SendQueue      chan SendRequest
	SyncReplyQueue chan float64

	seat atomic.Int64 // -1 until bound to a seat

	mu          sync.Mutex
	clockOffset float64 // server-to-client signed seconds, per §4.3
}

// SendRequest is one queued outbound message plus its delivery kind, used
// by the per-connection sender to decide whether to wait on the pause gate.
type SendRequest struct {
	Msg    message.Message
	IsGame bool
	Done   chan error // optional; nil if the caller does not await delivery
}

const noSeat = -1

// NewConnection wraps a transport.Conn.
func NewConnection(c *transport.Conn) *Connection {
	conn := &Connection{
		Conn:           c,
		SendQueue:      make(chan SendRequest, 64),
		SyncReplyQueue: make(chan float64, 4),
	}
	conn.seat.Store(noSeat)
	return conn
}

// Seat returns the seat index this connection is currently bound to, or -1
// if unbound (pre-login, or a fresh reconnect socket awaiting relogin).
func (c *Connection) Seat() int { return int(c.seat.Load()) }

// SetSeat binds this connection to seat i (or -1 to unbind).
func (c *Connection) SetSeat(i int) { c.seat.Store(int64(i)) }

// ClockOffset returns the best-effort clock offset computed by sync.
func (c *Connection) ClockOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clockOffset
}

// SetClockOffset stores the offset computed by the clock-sync handshake.
func (c *Connection) SetClockOffset(off float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockOffset = off
}

// ClientSession is one participant seat, per §3.
type ClientSession struct {
	ID             int
	Name           string
	Status         Status
	Earnings       decimal.Decimal
	RoundingPolicy RoundingPolicy

	Connection *Connection
	Group      *Group

	// ask_all bookkeeping (§4.4).
	ReplyReceived     bool
	UnansweredMessage any

	// Controller-defined scratch fields, keyed freely by the controller
	// (mirrors the teacher's GameClient pattern of a handful of named
	// fields plus a cache map for anything game-specific).
	Scratch map[string]any
}

// Group is a fixed partition of seats sharing controller-specific state
// (e.g. a per-group MarketBook).
type Group struct {
	ID      int
	Clients []int // seat indices, in group order
	State   any   // controller-defined (e.g. *auction.Book set)
}

// Table is the fixed-length Session Table.
type Table struct {
	mu    sync.Mutex
	seats []*ClientSession
}

// NewTable allocates a table of n null seats, per §4.2 (N supplied by the
// controller before connections are accepted).
func NewTable(n int) *Table {
	return &Table{seats: make([]*ClientSession, n)}
}

// N returns the fixed seat count.
func (t *Table) N() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seats)
}

// Allocate binds conn to the lowest-numbered null slot and returns its
// index, or ErrNoSlot if the table is full.
func (t *Table) Allocate(conn *Connection) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.seats {
		if s == nil {
			t.seats[i] = &ClientSession{
				ID:         i,
				Status:     StatusConnected,
				Connection: conn,
				Scratch:    make(map[string]any),
			}
			return i, nil
		}
	}
	return 0, ErrNoSlot
}

// Lookup returns the ClientSession bound to seat i, or nil if unbound.
func (t *Table) Lookup(i int) *ClientSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.seats) {
		return nil
	}
	return t.seats[i]
}

// Reassign rebinds seat i to newConnection. Legal only when the seat's
// current status is Disconnected (§4.2).
func (t *Table) Reassign(i int, newConnection *Connection) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.seats) || t.seats[i] == nil {
		return ErrNotDisconnected
	}
	if t.seats[i].Status != StatusDisconnected {
		return ErrNotDisconnected
	}
	t.seats[i].Connection = newConnection
	t.seats[i].Status = StatusConnected
	return nil
}

// Release clears seat i back to null. Only legal before the controller has
// entered the running phase; callers are responsible for enforcing that
// per §4.2 (the table itself does not track session phase).
func (t *Table) Release(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= 0 && i < len(t.seats) {
		t.seats[i] = nil
	}
}

// SetStatus updates seat i's status.
func (t *Table) SetStatus(i int, s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= 0 && i < len(t.seats) && t.seats[i] != nil {
		t.seats[i].Status = s
	}
}

// NameTaken reports whether name is already assigned to a seat other than
// excludeSeat (§3 invariant 3: name uniqueness after login).
func (t *Table) NameTaken(name string, excludeSeat int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.seats {
		if i == excludeSeat || s == nil {
			continue
		}
		if s.Name == name {
			return true
		}
	}
	return false
}

// AllNamed reports whether every seat has a non-empty Name.
func (t *Table) AllNamed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.seats {
		if s == nil || s.Name == "" {
			return false
		}
	}
	return true
}

// Each invokes fn for every bound seat in index order.
func (t *Table) Each(fn func(i int, s *ClientSession)) {
	t.mu.Lock()
	seats := make([]*ClientSession, len(t.seats))
	copy(seats, t.seats)
	t.mu.Unlock()
	for i, s := range seats {
		if s != nil {
			fn(i, s)
		}
	}
}
