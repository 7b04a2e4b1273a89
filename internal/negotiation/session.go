// Package negotiation simulates a shopkeeper bargaining over one product with
// one customer across a bounded number of rounds.
package negotiation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusOpen     Status = "open"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further offers can be evaluated.
func (s Status) Terminal() bool {
	return s != StatusOpen
}

// Actor identifies who made an offer.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorEngine   Actor = "engine"
)

// Offer is one price put forward during a round.
type Offer struct {
	Round  int             `json:"round"`
	Amount decimal.Decimal `json:"amount"`
	Actor  Actor           `json:"actor"`
}

// Session is the bargaining state for one (customer, product) pair.
type Session struct {
	ID         string `json:"id"`
	ProductID  string `json:"productId"`
	CustomerID string `json:"customerId"`
	Category   string `json:"category"`

	ListPrice  decimal.Decimal `json:"listPrice"`
	FloorPrice decimal.Decimal `json:"-"`
	CurrentAsk decimal.Decimal `json:"currentAsk"`
	// AgreedPrice is set once the session is accepted.
	AgreedPrice *decimal.Decimal `json:"agreedPrice,omitempty"`
	Concession  float64          `json:"-"`
	// DefaultPolicy is true when the category had no policy of its own.
	DefaultPolicy bool `json:"-"`

	Offers     []Offer `json:"offers"`
	Status     Status  `json:"status"`
	RoundCount int     `json:"roundCount"`
	MaxRounds  int     `json:"maxRounds"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoundsLeft returns how many offers the customer may still make.
func (s Session) RoundsLeft() int {
	if s.Status.Terminal() {
		return 0
	}
	return s.MaxRounds - s.RoundCount
}

// clone returns a copy that shares no mutable state with s.
func (s Session) clone() Session {
	c := s
	c.Offers = make([]Offer, len(s.Offers))
	copy(c.Offers, s.Offers)
	if s.AgreedPrice != nil {
		p := *s.AgreedPrice
		c.AgreedPrice = &p
	}
	return c
}

// DecisionKind is the engine's answer to a customer offer.
type DecisionKind string

const (
	DecisionAccept  DecisionKind = "accept"
	DecisionCounter DecisionKind = "counter"
	DecisionReject  DecisionKind = "reject"
	DecisionExpire  DecisionKind = "expire"
)

// Decision is the outcome of evaluating one offer.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	// Amount is the agreed price for Accept, the counter price for Counter and
	// the standing ask for Reject and Expire.
	Amount       decimal.Decimal `json:"amount"`
	Round        int             `json:"round"`
	RoundsLeft   int             `json:"roundsLeft"`
	FloorReached bool            `json:"floorReached"`
}
