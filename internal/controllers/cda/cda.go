// Package cda implements the continuous double auction with production
// choices: the second controller contract instance named in §1/§4.5. Two
// sequential single-sided auctions per round (one per color), each
// preceded by a production-choice phase, using the C5 Auction Engine for
// the matching loop and money shocks.
package cda

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exp/sessioncoordinator/internal/auction"
	"github.com/exp/sessioncoordinator/internal/auction/formula"
	"github.com/exp/sessioncoordinator/internal/driver"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
)

func init() {
	driver.Register("cda", New)
}

const (
	colorBlue = "blue"
	colorRed  = "red"

	dollarsKey = "dollars"
	colorKey   = "color"
	chipsBlue  = "chips_blue"
	chipsRed   = "chips_red"
	chipsGreen = "chips_green"
)

// productionPair is one (green, color) entry of a production-function
// schedule: choosing index i credits Green chips by X and the seat's own
// color chips by Y. Production never touches dollars.
type productionPair struct{ X, Y int }

// Controller is the CDA-with-production instance.
type Controller struct {
	numPlayers    int
	numRounds     int
	rounding      string
	showUpPayment decimal.Decimal
	exchangeRate  decimal.Decimal
	surveyFile    string

	groupSize        int
	auctionTime       time.Duration
	productionTime    time.Duration
	allowNegative     bool
	productionFn      []productionPair
	scoreFormula      *formula.Formula

	groups        []*session.Group
	books         map[int]*auction.Book
	phaseBaseTime time.Duration

	moneyShockAmount int
	moneyShockWho    auction.Who

	round int
}

// New builds a Controller from YAML params.
func New(params map[string]any) (driver.Controller, error) {
	c := &Controller{
		rounding:       "penny",
		exchangeRate:   decimal.NewFromInt(1),
		groupSize:      2,
		auctionTime:    60 * time.Second,
		productionTime: 15 * time.Second,
		productionFn:   []productionPair{{0, 0}, {1, 2}, {2, 3}, {3, 3}},
	}
	if v, ok := params["numPlayers"].(int); ok {
		c.numPlayers = v
	}
	if v, ok := params["numRounds"].(int); ok {
		c.numRounds = v
	}
	if v, ok := params["rounding"].(string); ok {
		c.rounding = v
	}
	if v, ok := params["showUpPayment"].(float64); ok {
		c.showUpPayment = decimal.NewFromFloat(v)
	}
	if v, ok := params["exchangeRate"].(float64); ok {
		c.exchangeRate = decimal.NewFromFloat(v)
	}
	if v, ok := params["allowNegativeDollars"].(bool); ok {
		c.allowNegative = v
	}
	if v, ok := params["auctionTimeSeconds"].(int); ok {
		c.auctionTime = time.Duration(v) * time.Second
	}
	if v, ok := params["moneyShockAmount"].(int); ok {
		c.moneyShockAmount = v
	}
	c.moneyShockWho = auction.WhoBoth
	if v, ok := params["moneyShockWho"].(string); ok && v != "" {
		c.moneyShockWho = auction.Who(v)
	}
	if v, ok := params["scoreFormula"].(string); ok && v != "" {
		f, err := formula.Compile(v)
		if err != nil {
			return nil, err
		}
		c.scoreFormula = f
	}
	if c.numPlayers <= 0 {
		c.numPlayers = 4
	}
	if c.numRounds <= 0 {
		c.numRounds = 1
	}

	c.books = make(map[int]*auction.Book)
	for g := 0; g*c.groupSize < c.numPlayers; g++ {
		c.books[g] = auction.NewBook()
	}
	return c, nil
}

func (c *Controller) GetNumPlayers() int                {
	return c.numPlayers
}
func (c *Controller) GetRounding() string               { return c.rounding }
func (c *Controller) GetShowUpPayment() decimal.Decimal { return c.showUpPayment }
func (c *Controller) GetSurveyFile() (string, bool)     { return c.surveyFile, c.surveyFile != "" }

func (c *Controller) InitMessage(d *driver.Driver, seat int) map[string]any {
	return map[string]any{"color": c.colorOf(seat)}
}

// colorOf assigns alternating colors within each group of groupSize seats,
// matching §8 seed test 2's two-seat/two-color layout.
func (c *Controller) colorOf(seat int) string {
	if seat%c.groupSize == 0 {
		return colorRed
	}
	return colorBlue
}

func (c *Controller) groupOf(seat int) int { return seat / c.groupSize }

// InitClients partitions seats into groups and seeds each seat's account
// scratch fields (§3 ClientSession controller-scratch fields).
func (c *Controller) InitClients(d *driver.Driver) {
	numGroups := (c.numPlayers + c.groupSize - 1) / c.groupSize
	c.groups = make([]*session.Group, numGroups)
	for g := 0; g < numGroups; g++ {
		c.groups[g] = &session.Group{ID: g}
	}

	d.Table.Each(func(i int, s *session.ClientSession) {
		g := c.groupOf(i)
		s.Group = c.groups[g]
		s.Group.Clients = append(s.Group.Clients, i)
		s.Scratch[colorKey] = c.colorOf(i)
		s.Scratch[dollarsKey] = decimal.NewFromInt(10)
		s.Scratch[chipsBlue] = 3
		s.Scratch[chipsRed] = 3
		s.Scratch[chipsGreen] = 0
	})
}

// RunRound runs the production phase and the two sequential auctions
// (one per color), per §4.5.
func (c *Controller) RunRound(d *driver.Driver) bool {
	c.round++

	if c.moneyShockAmount != 0 {
		c.applyMoneyShock(d)
	}

	for _, color := range []string{colorBlue, colorRed} {
		c.runProductionPhase(d, color)
		c.runAuctionPhase(d, color)
	}

	c.applyScores(d)
	return c.round < c.numRounds
}

// runProductionPhase broadcasts the production-function schedule to seats
// matching color and applies the chosen index, clamped to range, with a
// default-on-timeout of the middle index (§4.5).
func (c *Controller) runProductionPhase(d *driver.Driver, color string) {
	msgs := make([]message.Message, d.Table.N())
	d.Table.Each(func(i int, s *session.ClientSession) {
		m := message.Message{Type: message.TypeGameMessage, Subtype: message.GMProduction}
		if s.Scratch[colorKey] == color {
			pairs := make([][2]int, len(c.productionFn))
			for k, p := range c.productionFn {
				pairs[k] = [2]int{p.X, p.Y}
			}
			m.GM = map[string]any{"schedule": pairs, "timeLimit": c.productionTime.Seconds()}
		}
		msgs[i] = m
	})

	replies := d.AskAll(msgs, true)

	d.Table.Each(func(i int, s *session.ClientSession) {
		if s.Scratch[colorKey] != color {
			return
		}
		idx, ok := replies[i].GM["index"].(float64)
		choice := int(idx)
		if !ok {
			choice = len(c.productionFn) / 2 // default-on-timeout: middle index, truncated toward larger
		}
		if choice < 0 {
			choice = 0
		}
		if choice >= len(c.productionFn) {
			choice = len(c.productionFn) - 1
		}
		pair := c.productionFn[choice]
		chipsKey := chipsBlue
		if color == colorRed {
			chipsKey = chipsRed
		}
		s.Scratch[chipsKey] = s.Scratch[chipsKey].(int) + pair.Y
		s.Scratch[chipsGreen] = s.Scratch[chipsGreen].(int) + pair.X
	})

	d.TellAll([]message.Message{{Type: message.TypeGameMessage, Subtype: message.GMConfirm}}, false)
}

func (c *Controller) runAuctionPhase(d *driver.Driver, color string) {
	for _, b := range c.books {
		b.Reset()
	}

	d.TellAll([]message.Message{{Type: message.TypeGameMessage, Subtype: message.GMAuction, GM: map[string]any{"color": color, "auctionTime": c.auctionTime.Seconds()}}}, false)
	d.Comm.StartTimer(c.auctionTime)

	acct := &scratchAccount{table: d.Table, allowNegative: c.allowNegative}
	next := auction.RunMatchingLoopWithEvents(d, acct, c.groupOf, c.books, color, c.auctionTime, c.phaseBaseTime,
		func(tx auction.Transaction) {},
		func(ev auction.MarketEvent) {
			if err := d.PersistMarketEvent(ev.Group, ev.Color, ev.Action, ev.Buyer, ev.Bid.String(), ev.Accept.String(), ev.Ask.String(), ev.Seller, ev.Timestamp.String()); err != nil {
				slog.Error("persist market event failed", "error", err)
			}
		})
	c.phaseBaseTime = next
}

// applyMoneyShock partitions moneyShockAmount across the seats selected by
// moneyShockWho and credits/debits each, clamping at zero unless
// allowNegative (§4.5).
func (c *Controller) applyMoneyShock(d *driver.Driver) {
	var seats []int
	d.Table.Each(func(i int, s *session.ClientSession) {
		color, _ := s.Scratch[colorKey].(string)
		switch c.moneyShockWho {
		case auction.WhoBlueOnly:
			if color == colorBlue {
				seats = append(seats, i)
			}
		case auction.WhoRedOnly:
			if color == colorRed {
				seats = append(seats, i)
			}
		default:
			seats = append(seats, i)
		}
	})
	if len(seats) == 0 {
		return
	}

	acct := &scratchAccount{table: d.Table, allowNegative: c.allowNegative}
	realized := auction.ApplyShock(acct, seats, c.moneyShockAmount)
	for i, seat := range seats {
		s := d.Table.Lookup(seat)
		d.Comm.Send(s.Connection, message.Message{
			Type: message.TypeGameMessage,
			GM:   map[string]any{"moneyShockAmount": realized[i]},
		})
	}
}

func (c *Controller) applyScores(d *driver.Driver) {
	if c.scoreFormula == nil {
		return
	}
	d.Table.Each(func(i int, s *session.ClientSession) {
		dv, _ := s.Scratch[dollarsKey].(decimal.Decimal).Float64()
		score, err := c.scoreFormula.Eval(formula.Vars{
			D: dv,
			B: s.Scratch[chipsBlue].(int),
			R: s.Scratch[chipsRed].(int),
			G: s.Scratch[chipsGreen].(int),
		})
		if err == nil {
			s.Earnings = s.Earnings.Add(decimal.NewFromInt(int64(score)).Mul(c.exchangeRate))
		}
	})
}

func (c *Controller) PostRound(d *driver.Driver) {}

// OnUnpause restarts the auction timer for the remaining interval
// recorded at Pause (§4.4, §5).
func (c *Controller) OnUnpause(d *driver.Driver) {
	remaining := d.Comm.TimeLeftAtCancel()
	if remaining > 0 {
		d.Comm.StartTimer(remaining)
	}
}

func (c *Controller) GetReinitParams(d *driver.Driver, seat int) message.Message {
	s := d.Table.Lookup(seat)
	return message.Message{Extra: map[string]any{
		"round":   c.round,
		"color":   s.Scratch[colorKey],
		"dollars": s.Scratch[dollarsKey],
	}}
}

// scratchAccount implements auction.Account over ClientSession.Scratch.
type scratchAccount struct {
	table         *session.Table
	allowNegative bool
}

func (a *scratchAccount) Dollars(seat int) decimal.Decimal {
	return a.table.Lookup(seat).Scratch[dollarsKey].(decimal.Decimal)
}
func (a *scratchAccount) SetDollars(seat int, v decimal.Decimal) {
	a.table.Lookup(seat).Scratch[dollarsKey] = v
}
func (a *scratchAccount) Chips(seat int, color string) int {
	key := chipsBlue
	if color == colorRed {
		key = chipsRed
	}
	return a.table.Lookup(seat).Scratch[key].(int)
}
func (a *scratchAccount) SetChips(seat int, color string, n int) {
	key := chipsBlue
	if color == colorRed {
		key = chipsRed
	}
	a.table.Lookup(seat).Scratch[key] = n
}
func (a *scratchAccount) Color(seat int) string {
	return a.table.Lookup(seat).Scratch[colorKey].(string)
}
func (a *scratchAccount) AllowNegativeDollars() bool { return a.allowNegative }
