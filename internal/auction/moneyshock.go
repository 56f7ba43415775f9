package auction

import (
	"math/rand/v2"
	"sort"

	"github.com/shopspring/decimal"
)

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// Who selects which seats a money shock applies to.
type Who string

const (
	WhoBlueOnly Who = "blue-only"
	WhoRedOnly  Who = "red-only"
	WhoBoth     Who = "both"
)

// PartitionShock splits |q| into n positive integers summing to |q|,
// signed by sign(q), per §4.5: draw n-1 distinct positions in [1, |q|)
// uniformly without replacement, sort them, and take consecutive
// differences plus the final gap to |q|.
//
// Per §9's Open Question, when n > |q| there are not enough units to give
// every recipient at least one: this implementation gives one unit per
// recipient for the first |q| recipients and zero to the rest, rather than
// erroring out before the round starts.
func PartitionShock(q, n int) []int {
	if n <= 0 {
		return nil
	}
	sign := 1
	abs := q
	if q < 0 {
		sign = -1
		abs = -q
	}

	if n > abs {
		out := make([]int, n)
		for i := 0; i < abs; i++ {
			out[i] = sign
		}
		return out
	}
	if n == 1 {
		return []int{sign * abs}
	}

	positions := make(map[int]bool, n-1)
	for len(positions) < n-1 {
		positions[1+rand.IntN(abs-1)] = true
	}
	cuts := make([]int, 0, n-1)
	for p := range positions {
		cuts = append(cuts, p)
	}
	sort.Ints(cuts)

	out := make([]int, n)
	prev := 0
	for i, c := range cuts {
		out[i] = sign * (c - prev)
		prev = c
	}
	out[n-1] = sign * (abs - prev)
	return out
}

// ApplyShock transfers PartitionShock(q, len(seats)) to acct for each
// recipient in seats (order-matched), clamping at zero when
// AllowNegativeDollars is false and recording the realized (possibly
// clamped) amount.
func ApplyShock(acct Account, seats []int, q int) (realized []int) {
	shares := PartitionShock(q, len(seats))
	realized = make([]int, len(seats))
	for i, seat := range seats {
		share := shares[i]
		cur := acct.Dollars(seat)
		next := cur.Add(decimalFromInt(share))
		if next.Sign() < 0 && !acct.AllowNegativeDollars() {
			realized[i] = -int(cur.IntPart())
			next = cur.Add(decimalFromInt(realized[i]))
		} else {
			realized[i] = share
		}
		acct.SetDollars(seat, next)
	}
	return realized
}
