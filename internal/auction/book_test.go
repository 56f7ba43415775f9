package auction

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewBookIsEmpty(t *testing.T) {
	b := NewBook()
	_, _, _, ok := b.Crossed()
	assert.False(t, ok)
	assert.Equal(t, NoSeat, b.HighBidder)
	assert.Equal(t, NoSeat, b.LowSeller)
}

// TestAcceptBidStrictlyIncreasing exercises §3 invariant 6 and §8's
// boundary behavior: a bid exactly equal to the current high bid is
// rejected.
func TestAcceptBidStrictlyIncreasing(t *testing.T) {
	b := NewBook()
	assert.True(t, b.AcceptBid(0, decimal.NewFromFloat(1.0)))
	assert.False(t, b.AcceptBid(1, decimal.NewFromFloat(1.0))) // equal, rejected
	assert.True(t, b.AcceptBid(1, decimal.NewFromFloat(1.5)))
	assert.Equal(t, 1, b.HighBidder)
}

func TestAcceptAskStrictlyDecreasing(t *testing.T) {
	b := NewBook()
	assert.True(t, b.AcceptAsk(0, decimal.NewFromFloat(2.0)))
	assert.False(t, b.AcceptAsk(1, decimal.NewFromFloat(2.0))) // equal, rejected
	assert.True(t, b.AcceptAsk(1, decimal.NewFromFloat(1.5)))
	assert.Equal(t, 1, b.LowSeller)
}

func TestCrossedResetsToEmpty(t *testing.T) {
	b := NewBook()
	b.AcceptBid(0, decimal.NewFromFloat(1.5))
	b.AcceptAsk(1, decimal.NewFromFloat(1.5))

	amount, buyer, seller, ok := b.Crossed()
	assert.True(t, ok)
	assert.True(t, amount.Equal(decimal.NewFromFloat(1.5)))
	assert.Equal(t, 0, buyer)
	assert.Equal(t, 1, seller)

	b.Reset()
	_, _, _, ok = b.Crossed()
	assert.False(t, ok)
}

// TestCrossedTransactsAtTheTriggeringSide exercises §4.5: when an ask
// crosses an already-standing bid, the transaction amount is the
// accepted ask, not the (higher) standing bid.
func TestCrossedTransactsAtTheTriggeringSide(t *testing.T) {
	b := NewBook()
	assert.True(t, b.AcceptBid(0, decimal.NewFromFloat(3.0)))
	assert.True(t, b.AcceptAsk(1, decimal.NewFromFloat(2.0)))

	amount, buyer, seller, ok := b.Crossed()
	assert.True(t, ok)
	assert.True(t, amount.Equal(decimal.NewFromFloat(2.0)), "expected transaction at the accepted ask, got %s", amount)
	assert.Equal(t, 0, buyer)
	assert.Equal(t, 1, seller)
}

// TestCrossedTransactsAtTheTriggeringBid is the mirror case: a bid that
// crosses an already-standing ask transacts at the bid.
func TestCrossedTransactsAtTheTriggeringBid(t *testing.T) {
	b := NewBook()
	assert.True(t, b.AcceptAsk(1, decimal.NewFromFloat(2.0)))
	assert.True(t, b.AcceptBid(0, decimal.NewFromFloat(3.0)))

	amount, _, _, ok := b.Crossed()
	assert.True(t, ok)
	assert.True(t, amount.Equal(decimal.NewFromFloat(3.0)), "expected transaction at the accepted bid, got %s", amount)
}

func TestQuantizeRoundsToOneDecimalThenRescales(t *testing.T) {
	q := Quantize(decimal.NewFromFloat(1.567), 2)
	assert.True(t, q.Equal(decimal.NewFromFloat(1.6)))
}
