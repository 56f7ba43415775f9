package auction

import "github.com/shopspring/decimal"

// Account is the balance view the matching loop and money-shock apply
// against. Controllers (e.g. internal/controllers/cda) implement this over
// their own per-seat scratch state so the engine never depends on a
// specific game's field layout.
type Account interface {
	Dollars(seat int) decimal.Decimal
	SetDollars(seat int, v decimal.Decimal)
	Chips(seat int, color string) int
	SetChips(seat int, color string, n int)
	Color(seat int) string // the seat's assigned color (blue/red/...)
	AllowNegativeDollars() bool
}

// Quantize rounds amount to one decimal place then rescales it to the
// account's canonical decimal places, per §4.5 ("amount is quantized to
// one decimal place then scaled back to canonical representation").
func Quantize(amount decimal.Decimal, canonicalScale int32) decimal.Decimal {
	return amount.Round(1).Round(canonicalScale)
}
