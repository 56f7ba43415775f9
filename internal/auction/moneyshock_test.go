package auction

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPartitionShockSumsAndSigns exercises §8's boundary behavior: a
// money shock of aggregate Q with N recipients yields N integers summing
// to Q, none of opposite sign to Q. For |Q| >= N every share is nonzero;
// q=1 takes the N > |Q| path, where the surplus recipients get zero.
func TestPartitionShockSumsAndSigns(t *testing.T) {
	for _, q := range []int{10, -10, 1, 7} {
		shares := PartitionShock(q, 4)
		require.Len(t, shares, 4)
		sum := 0
		sign := 1
		if q < 0 {
			sign = -1
		}
		for _, s := range shares {
			if q != 0 {
				assert.Equal(t, sign, signOf(s), "share %d has wrong sign for q=%d", s, q)
			}
			sum += s
		}
		assert.Equal(t, q, sum)
	}
}

func signOf(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}

// TestPartitionShockMoreRecipientsThanUnits exercises §9's Open Question
// decision: when N > |Q|, distribute one unit per recipient up to |Q| and
// zero to the rest, rather than erroring out.
func TestPartitionShockMoreRecipientsThanUnits(t *testing.T) {
	shares := PartitionShock(3, 5)
	require.Len(t, shares, 5)
	sum := 0
	for _, s := range shares {
		sum += s
	}
	assert.Equal(t, 3, sum)
	for _, s := range shares {
		assert.Contains(t, []int{0, 1}, s)
	}
}

type fakeAccount struct {
	dollars       map[int]decimal.Decimal
	chips         map[int]map[string]int
	colors        map[int]string
	allowNegative bool
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		dollars: map[int]decimal.Decimal{},
		chips:   map[int]map[string]int{},
		colors:  map[int]string{},
	}
}

func (a *fakeAccount) Dollars(seat int) decimal.Decimal     { return a.dollars[seat] }
func (a *fakeAccount) SetDollars(seat int, v decimal.Decimal) { a.dollars[seat] = v }
func (a *fakeAccount) Chips(seat int, color string) int {
	return a.chips[seat][color]
}
func (a *fakeAccount) SetChips(seat int, color string, n int) {
	if a.chips[seat] == nil {
		a.chips[seat] = map[string]int{}
	}
	a.chips[seat][color] = n
}
func (a *fakeAccount) Color(seat int) string             { return a.colors[seat] }
func (a *fakeAccount) AllowNegativeDollars() bool        { return a.allowNegative }

func TestApplyShockClampsAtZeroWhenDisallowed(t *testing.T) {
	acct := newFakeAccount()
	acct.dollars[0] = decimal.NewFromInt(2)

	realized := ApplyShock(acct, []int{0}, -10)
	assert.Equal(t, -2, realized[0])
	assert.True(t, acct.Dollars(0).Equal(decimal.Zero))
}
