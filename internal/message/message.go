// Package message defines the wire-level vocabulary exchanged between the
// coordinator and a connected client: a closed set of top-level types and,
// for game messages, a closed set of subtypes. Unrecognized types are
// logged and discarded by the controller driver's event handler rather
// than causing a panic.
package message

import "github.com/shopspring/decimal"

// Type is the top-level tag of a Message.
type Type string

const (
	TypeConnect        Type = "connect"
	TypeLogin          Type = "login"
	TypeLoginPrompt     Type = "loginPrompt"
	TypeReloginPrompt   Type = "reloginPrompt"
	TypeRelogin         Type = "relogin"
	TypeReady           Type = "ready"
	TypeChat            Type = "chat"
	TypePause           Type = "pause"
	TypeDisconnect      Type = "disconnect"
	TypeError           Type = "error"
	TypeInit            Type = "init"
	TypeReinit          Type = "reinit"
	TypeRound           Type = "round"
	TypeEarnings        Type = "earnings"
	TypeEndOfExperiment Type = "endOfExperiment"
	TypeSync            Type = "sync"
	TypePing            Type = "ping"
	TypeGameMessage     Type = "gm"
)

// nonGameTypes bypass the Communicator's pause gate (§4.3) so that the
// reconnection protocol and error/ping plumbing keep working while the
// session is paused. It lists every top-level type except gm.
var nonGameTypes = map[Type]bool{
	TypeError:           true,
	TypePing:            true,
	TypeReloginPrompt:   true,
	TypeRelogin:         true,
	TypeLoginPrompt:     true,
	TypeSync:            true,
	TypeChat:            true,
	TypeDisconnect:      true,
	TypeConnect:         true,
	TypeLogin:           true,
	TypeReady:           true,
	TypePause:           true,
	TypeInit:            true,
	TypeReinit:          true,
	TypeRound:           true,
	TypeEarnings:        true,
	TypeEndOfExperiment: true,
}

// BypassesPauseGate reports whether messages of type t are exempt from the
// pause gate per §4.3.
func BypassesPauseGate(t Type) bool {
	return nonGameTypes[t]
}

// DisconnectedClient identifies a seat available for reconnection.
type DisconnectedClient struct {
	ID   int `json:"id"`
	Name string `json:"name"`
}

// Message is the tagged record exchanged over the framed transport.
// Fields not relevant to Type are left at their zero value; GM holds the
// freeform `gm` body and Extra holds other opaque extras the transport
// never interprets.
type Message struct {
	Type Type `json:"type"`

	// login / relogin
	Name string `json:"name,omitempty"`
	ID   int    `json:"id,omitempty"`

	// error
	ErrorString string `json:"errorString,omitempty"`

	// reloginPrompt
	DisconnectedClients []DisconnectedClient `json:"disconnectedClients,omitempty"`

	// init
	GUIClass string         `json:"GUIclass,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`

	// round
	Round int `json:"round,omitempty"`

	// earnings / endOfExperiment
	Earnings        decimal.Decimal `json:"earnings,omitempty"`
	ShowUpPayment   decimal.Decimal `json:"showUpPayment,omitempty"`
	Rounding        string          `json:"rounding,omitempty"`
	TotalPayment    decimal.Decimal `json:"totalPayment,omitempty"`
	Survey          string          `json:"survey,omitempty"`

	// sync
	ClientTime float64 `json:"ct,omitempty"`

	// chat
	ChatText string `json:"text,omitempty"`
	ChatFrom int     `json:"from,omitempty"`

	// gm
	Subtype GMSubtype      `json:"subtype,omitempty"`
	GM      map[string]any `json:"gm,omitempty"`
}

// GMSubtype is the closed set of `gm`-nested subtypes this core and its
// reference controllers recognize. Controllers may define additional
// subtypes; the transport treats Subtype as opaque beyond routing.
type GMSubtype string

const (
	GMTimeup      GMSubtype = "timeup"
	GMAuction     GMSubtype = "auction"
	GMBid         GMSubtype = "bid"
	GMAsk         GMSubtype = "ask"
	GMTransaction GMSubtype = "transaction"
	GMError       GMSubtype = "error"
	GMProduction  GMSubtype = "production"
	GMConfirm     GMSubtype = "confirm"
)

// IsGame reports whether m is routed to the controller's inbound game-
// message queue rather than handled by the session state machine directly.
func (m Message) IsGame() bool {
	return m.Type == TypeGameMessage
}
