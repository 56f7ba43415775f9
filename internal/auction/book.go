// Package auction implements the Auction Engine (C5): the per-group
// continuous double auction book, the bid/ask matching loop, and money
// shocks. The round-score formula evaluator is in subpackage formula.
//
// Grounded on the teacher's concurrency idiom (single-writer state guarded
// by the caller's own single-threaded loop, the way internal/gameserver's
// per-client state is only ever mutated from the dispatching goroutine)
// and on rishavpaul-system-design's order-matching-engine for the general
// shape of a best-bid/best-ask matching book, generalized here to the
// spec's single-unit-per-trade, price-crossing CDA.
package auction

import "github.com/shopspring/decimal"

// NoSeat marks the absence of a bidder/seller in a Book.
const NoSeat = -1

// Book is the MarketBook of §3: the current best bid and best ask for one
// group/round/color, reset after every crossing transaction.
type Book struct {
	HighBid     decimal.Decimal
	HighBidder  int
	LowAsk      decimal.Decimal
	LowAskSet   bool
	LowSeller   int
	HighBidSet  bool

	// lastAccepted is the amount of the most recently accepted bid or ask:
	// the side that just triggered a cross transacts at its own amount,
	// not necessarily at HighBid (§4.5: "transact at the accepted amount").
	lastAccepted decimal.Decimal
}

// NewBook returns a book with highBid = -infinity, lowAsk = +infinity,
// represented by the Set flags rather than sentinel decimals so ordinary
// arithmetic never has to special-case an infinite value.
func NewBook() *Book {
	return &Book{HighBidder: NoSeat, LowSeller: NoSeat}
}

// Reset clears the book back to its initial state (§3: "a transaction is
// recorded... after which the book resets").
func (b *Book) Reset() {
	*b = *NewBook()
}

// AcceptBid records amount as the new high bid from seat, per invariant 6
// (§3): legal only if it strictly exceeds the current high bid.
func (b *Book) AcceptBid(seat int, amount decimal.Decimal) bool {
	if b.HighBidSet && amount.Cmp(b.HighBid) <= 0 {
		return false
	}
	b.HighBid = amount
	b.HighBidSet = true
	b.HighBidder = seat
	b.lastAccepted = amount
	return true
}

// AcceptAsk records amount as the new low ask from seat: legal only if it
// strictly undercuts the current low ask.
func (b *Book) AcceptAsk(seat int, amount decimal.Decimal) bool {
	if b.LowAskSet && amount.Cmp(b.LowAsk) >= 0 {
		return false
	}
	b.LowAsk = amount
	b.LowAskSet = true
	b.LowSeller = seat
	b.lastAccepted = amount
	return true
}

// Crossed reports whether the book has crossed (highBid >= lowAsk) and is
// ready for a transaction at the accepted amount: the amount of whichever
// side (bid or ask) was accepted last, since that is the side that
// triggered the cross (§3, §4.5).
func (b *Book) Crossed() (amount decimal.Decimal, buyer, seller int, ok bool) {
	if !b.HighBidSet || !b.LowAskSet {
		return decimal.Zero, 0, 0, false
	}
	if b.HighBid.Cmp(b.LowAsk) < 0 {
		return decimal.Zero, 0, 0, false
	}
	return b.lastAccepted, b.HighBidder, b.LowSeller, true
}
