package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/exp/sessioncoordinator/internal/driver"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
)

// Transaction is emitted to callers (e.g. for persistence/market log)
// whenever a book crosses.
type Transaction struct {
	Group     int
	Color     string
	Buyer     int
	Seller    int
	Amount    decimal.Decimal
	Timestamp time.Duration // baseTime-relative offset, per §4.5
}

// MarketEvent is one row of the market-history log: a bid, an ask, or an
// accepted transaction, mirroring the original's mktHist entries.
type MarketEvent struct {
	Group            int
	Color            string
	Action           string // "bid", "ask", or "accept"
	Buyer            int    // set for "bid" and "accept"
	Seller           int    // set for "ask" and "accept"
	Bid, Ask, Accept decimal.Decimal
	Timestamp        time.Duration
}

// RunMatchingLoop drives the per-group matching contract of §4.5 for one
// auction phase: only bid/ask gm messages are accepted, validated against
// acct and the per-group book, and a crossing book triggers a transfer and
// a reset. Runs until the driver's auction timer fires (a `timeup` gm
// message on the shared queue).
//
// groupOf maps a seat to its group id; books is one Book per group id,
// pre-reset by the caller. baseTime is the accumulated offset carried
// across auctions (§4.5); the returned value adds this auction's
// auctionTime to it.
func RunMatchingLoop(
	d *driver.Driver,
	acct Account,
	groupOf func(seat int) int,
	books map[int]*Book,
	auctionColor string,
	auctionTime time.Duration,
	baseTime time.Duration,
	emit func(tx Transaction),
) (newBaseTime time.Duration) {
	return RunMatchingLoopWithEvents(d, acct, groupOf, books, auctionColor, auctionTime, baseTime, emit, nil)
}

// RunMatchingLoopWithEvents is RunMatchingLoop with an additional emitEvent
// hook, called for every accepted bid or ask (not just completed
// transactions), for callers that persist the full market-history log
// (§4.6, §8).
func RunMatchingLoopWithEvents(
	d *driver.Driver,
	acct Account,
	groupOf func(seat int) int,
	books map[int]*Book,
	auctionColor string,
	auctionTime time.Duration,
	baseTime time.Duration,
	emit func(tx Transaction),
	emitEvent func(ev MarketEvent),
) (newBaseTime time.Duration) {
	deadline := time.Now().Add(auctionTime)

	for {
		gm := <-d.GameQueue()

		if gm.Seat < 0 && gm.Msg.Subtype == message.GMTimeup {
			break
		}
		if gm.Seat < 0 {
			continue
		}
		if gm.Msg.Subtype != message.GMBid && gm.Msg.Subtype != message.GMAsk {
			continue
		}

		seat := gm.Seat
		group := groupOf(seat)
		book, ok := books[group]
		if !ok {
			continue
		}

		amountRaw, _ := gm.Msg.GM["amount"].(float64)
		amount := decimal.NewFromFloat(amountRaw)
		if amount.Sign() <= 0 {
			continue
		}
		amount = Quantize(amount, 2)

		switch gm.Msg.Subtype {
		case message.GMBid:
			if acct.Color(seat) == auctionColor {
				sendGMError(d, seat, "bidTooLow")
				continue
			}
			if book.HighBidSet && amount.Cmp(book.HighBid) <= 0 {
				sendGMError(d, seat, "bidTooLow")
				continue
			}
			if acct.Dollars(seat).Cmp(amount) < 0 {
				sendGMError(d, seat, "notEnoughDollars")
				continue
			}
			book.AcceptBid(seat, amount)
			if emitEvent != nil {
				emitEvent(MarketEvent{Group: group, Color: auctionColor, Action: "bid", Buyer: seat, Bid: amount, Timestamp: baseTime + (auctionTime - time.Until(deadline))})
			}
		case message.GMAsk:
			if acct.Color(seat) != auctionColor {
				sendGMError(d, seat, "askTooHigh")
				continue
			}
			if book.LowAskSet && amount.Cmp(book.LowAsk) >= 0 {
				sendGMError(d, seat, "askTooHigh")
				continue
			}
			if acct.Chips(seat, auctionColor) < 1 {
				sendGMError(d, seat, "notEnoughChips")
				continue
			}
			book.AcceptAsk(seat, amount)
			if emitEvent != nil {
				emitEvent(MarketEvent{Group: group, Color: auctionColor, Action: "ask", Seller: seat, Ask: amount, Timestamp: baseTime + (auctionTime - time.Until(deadline))})
			}
		}

		broadcastBook(d, group, book)

		if amt, buyer, seller, crossed := book.Crossed(); crossed {
			acct.SetChips(buyer, auctionColor, acct.Chips(buyer, auctionColor)+1)
			acct.SetChips(seller, auctionColor, acct.Chips(seller, auctionColor)-1)
			acct.SetDollars(buyer, acct.Dollars(buyer).Sub(amt))
			acct.SetDollars(seller, acct.Dollars(seller).Add(amt))

			ts := baseTime + (auctionTime - time.Until(deadline))
			tx := Transaction{Group: group, Color: auctionColor, Buyer: buyer, Seller: seller, Amount: amt, Timestamp: ts}
			if emit != nil {
				emit(tx)
			}
			if emitEvent != nil {
				emitEvent(MarketEvent{Group: group, Color: auctionColor, Action: "accept", Buyer: buyer, Seller: seller, Accept: amt, Timestamp: ts})
			}
			broadcastTransaction(d, group, tx)
			book.Reset()
		}
	}

	return baseTime + auctionTime
}

func sendGMError(d *driver.Driver, seat int, code string) {
	s := d.Table.Lookup(seat)
	if s == nil || s.Connection == nil {
		return
	}
	d.Comm.Send(s.Connection, message.Message{Type: message.TypeGameMessage, Subtype: message.GMError, GM: map[string]any{"error": code}})
}

func broadcastBook(d *driver.Driver, group int, book *Book) {
	d.Table.Each(func(i int, s *session.ClientSession) {
		if s.Group == nil || s.Group.ID != group {
			return
		}
		d.Comm.Send(s.Connection, message.Message{
			Type: message.TypeGameMessage,
			GM: map[string]any{
				"highBid":    book.HighBid,
				"highBidder": book.HighBidder,
				"lowAsk":     book.LowAsk,
				"lowSeller":  book.LowSeller,
			},
		})
	})
}

func broadcastTransaction(d *driver.Driver, group int, tx Transaction) {
	d.Table.Each(func(i int, s *session.ClientSession) {
		if s.Group == nil || s.Group.ID != group {
			return
		}
		d.Comm.Send(s.Connection, message.Message{
			Type:    message.TypeGameMessage,
			Subtype: message.GMTransaction,
			GM: map[string]any{
				"buyerID":  tx.Buyer,
				"sellerID": tx.Seller,
				"amount":   tx.Amount,
			},
		})
	})
}
