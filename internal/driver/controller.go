// Package driver implements the Controller Driver (C4): the session state
// machine, the ask_all/tell_all synchronous-over-async primitives, and the
// match/round orchestration loop that drives a game-specific Controller.
//
// Grounded on the teacher's server/session-manager split
// (internal/login.SessionManager plus internal/gameserver.Server): the
// driver owns the Session Table and Communicator the way the teacher's
// Server owns its ClientManager and listener, and dispatches per-message
// events through a single handler the way internal/gameserver.Handler
// dispatches client packets.
package driver

import (
	"github.com/shopspring/decimal"

	"github.com/exp/sessioncoordinator/internal/message"
)

// Controller is the contract implemented per game (§6). The driver never
// reaches into controller-private state; every interaction is one of
// these hooks, each given the Driver so it can call AskAll/TellAll/Table.
type Controller interface {
	GetNumPlayers() int
	GetRounding() string
	GetShowUpPayment() decimal.Decimal
	// GetSurveyFile returns the survey file path and whether a survey is
	// configured at all. A configured-but-unreadable file is a fatal
	// StateError at startSession (§9 Open Question).
	GetSurveyFile() (path string, ok bool)

	InitClients(d *Driver)
	RunRound(d *Driver) (cont bool)
	PostRound(d *Driver)
	OnUnpause(d *Driver)
	GetReinitParams(d *Driver, seat int) message.Message

	// InitMessage returns the per-seat extra fields merged into the
	// broadcast `init` message's Extra map (§4.4 Running: "…controller
	// extras").
	InitMessage(d *Driver, seat int) map[string]any
}

// Constructor builds a fresh Controller instance from YAML-decoded
// parameters. Registered constructors replace the teacher's/source's
// dynamic class-name evaluation with an explicit registry (§9).
type Constructor func(params map[string]any) (Controller, error)

var registry = map[string]Constructor{}

// Register adds a controller constructor under name. Call from each
// controller package's init().
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Build looks up and constructs the controller registered under name.
func Build(name string, params map[string]any) (Controller, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, &ProtocolError{Detail: "unknown controller: " + name}
	}
	return ctor(params)
}
