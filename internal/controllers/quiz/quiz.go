// Package quiz implements the simple request/reply round-loop controller
// instance of the controller contract (§1, §8 seed test 1): each round the
// controller broadcasts one prompt and awaits one reply per seat via
// AskAll; the reply's "amount" (cents) becomes that seat's earnings for
// the round, converted to dollars at the configured exchange rate.
package quiz

import (
	"github.com/shopspring/decimal"

	"github.com/exp/sessioncoordinator/internal/driver"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
)

func init() {
	driver.Register("quiz", New)
}

// Controller is the quiz round-loop instance.
type Controller struct {
	numPlayers    int
	numRounds     int
	rounding      string
	showUpPayment decimal.Decimal
	exchangeRate  decimal.Decimal
	surveyFile    string

	round int
}

// New builds a Controller from YAML params: numPlayers, numRounds,
// rounding, showUpPayment, exchangeRate, surveyFile.
func New(params map[string]any) (driver.Controller, error) {
	c := &Controller{
		rounding:     "penny",
		exchangeRate: decimal.NewFromInt(1),
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
	if v, ok := params["surveyFile"].(string); ok {
		c.surveyFile = v
	}
	if c.numPlayers <= 0 {
		c.numPlayers = 2
	}
	if c.numRounds <= 0 {
		c.numRounds = 1
	}
	return c, nil
}

func (c *Controller) GetNumPlayers() int                   { return c.numPlayers }
func (c *Controller) GetRounding() string                  { return c.rounding }
func (c *Controller) GetShowUpPayment() decimal.Decimal    { return c.showUpPayment }
func (c *Controller) GetSurveyFile() (string, bool)        { return c.surveyFile, c.surveyFile != "" }
func (c *Controller) InitMessage(d *driver.Driver, seat int) map[string]any { return nil }

func (c *Controller) InitClients(d *driver.Driver) {}

// RunRound broadcasts a single prompt and applies each seat's reply as
// earnings (amount in cents / 100), per §8 seed test 1.
func (c *Controller) RunRound(d *driver.Driver) bool {
	c.round++

	prompt := message.Message{Type: message.TypeGameMessage, Subtype: message.GMProduction, GM: map[string]any{"prompt": "submit amount"}}
	replies := d.AskAll([]message.Message{prompt}, false)

	d.Table.Each(func(i int, s *session.ClientSession) {
		amountCents, _ := replies[i].GM["amount"].(float64)
		earned := decimal.NewFromFloat(amountCents).Div(decimal.NewFromInt(100)).Mul(c.exchangeRate)
		s.Earnings = s.Earnings.Add(earned)
	})

	return c.round < c.numRounds
}

func (c *Controller) PostRound(d *driver.Driver) {}

func (c *Controller) OnUnpause(d *driver.Driver) {}

func (c *Controller) GetReinitParams(d *driver.Driver, seat int) message.Message {
	s := d.Table.Lookup(seat)
	return message.Message{Extra: map[string]any{"round": c.round, "earnings": s.Earnings}}
}
