package negotiation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/policy"
)

// DefaultMaxRounds is used when neither the caller nor the config sets a limit.
const DefaultMaxRounds = 3

var cent = decimal.New(1, -2)

// Config holds engine settings.
type Config struct {
	DefaultMaxRounds int
}

// Engine computes negotiation state transitions. It never mutates the
// sessions it is given and holds no per-session state.
type Engine struct {
	policies *policy.Table
	cfg      Config
	now      func() time.Time
}

// NewEngine creates a negotiation engine. A nil table uses the built-in policy.
func NewEngine(policies *policy.Table, cfg Config) *Engine {
	if policies == nil {
		policies = policy.DefaultTable()
	}
	if cfg.DefaultMaxRounds <= 0 {
		cfg.DefaultMaxRounds = DefaultMaxRounds
	}
	return &Engine{policies: policies, cfg: cfg, now: time.Now}
}

// Start opens a session for a product. The floor price is fixed here: base
// cost plus delivery fee plus the category's margin. The opening ask is the
// list price, or the floor when the list price is below it.
func (e *Engine) Start(product domain.Product, customerID string, maxRounds int) (Session, error) {
	if err := product.Validate(); err != nil {
		return Session{}, err
	}
	if maxRounds <= 0 {
		maxRounds = e.cfg.DefaultMaxRounds
	}

	p, err := e.policies.Lookup(product.Category)
	fallback := errors.Is(err, domain.ErrConfigurationMissing)

	floor := product.Landed().Add(p.Margin(product.BaseCost)).Round(2)
	ask := decimal.Max(product.ListPrice, floor)

	now := e.now()
	return Session{
		ProductID:     product.ID,
		CustomerID:    customerID,
		Category:      product.Category,
		ListPrice:     product.ListPrice,
		FloorPrice:    floor,
		CurrentAsk:    ask,
		Concession:    p.Concession,
		DefaultPolicy: fallback,
		Offers:        []Offer{},
		Status:        StatusOpen,
		MaxRounds:     maxRounds,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Evaluate applies a customer offer to a session and returns the new session
// and the engine's decision. The input session is left untouched.
func (e *Engine) Evaluate(s Session, amount decimal.Decimal) (Session, Decision, error) {
	if s.Status != StatusOpen {
		return s, Decision{}, domain.InvalidState(fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	if !amount.IsPositive() {
		return s, Decision{}, domain.InvalidOffer(fmt.Sprintf("offer must be positive, got %s", amount))
	}

	next := s.clone()
	next.UpdatedAt = e.now()

	round := next.RoundCount + 1
	if round > next.MaxRounds {
		next.Status = StatusExpired
		return next, Decision{Kind: DecisionExpire, Amount: next.CurrentAsk, Round: next.RoundCount}, nil
	}
	next.RoundCount = round
	next.Offers = append(next.Offers, Offer{Round: round, Amount: amount, Actor: ActorCustomer})
	final := round == next.MaxRounds

	switch {
	case amount.GreaterThanOrEqual(next.CurrentAsk):
		return e.accept(next, amount)

	case amount.GreaterThanOrEqual(next.FloorPrice):
		if final {
			// Last round: an offer at or above the floor is better than no sale.
			return e.accept(next, amount)
		}
		counter := concede(next.CurrentAsk, amount, next.Concession, next.FloorPrice)
		if counter.LessThanOrEqual(amount) {
			return e.accept(next, amount)
		}
		next.CurrentAsk = counter
		next.Offers = append(next.Offers, Offer{Round: round, Amount: counter, Actor: ActorEngine})
		return next, e.decide(next, DecisionCounter, counter), nil

	case final:
		next.Status = StatusRejected
		return next, e.decide(next, DecisionReject, next.CurrentAsk), nil

	default:
		// Below the floor with rounds left: the floor is the final offer.
		next.CurrentAsk = next.FloorPrice
		next.Offers = append(next.Offers, Offer{Round: round, Amount: next.FloorPrice, Actor: ActorEngine})
		return next, e.decide(next, DecisionCounter, next.FloorPrice), nil
	}
}

// Expire closes an open session without an agreement.
func (e *Engine) Expire(s Session) (Session, Decision, error) {
	if s.Status != StatusOpen {
		return s, Decision{}, domain.InvalidState(fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	next := s.clone()
	next.Status = StatusExpired
	next.UpdatedAt = e.now()
	return next, Decision{Kind: DecisionExpire, Amount: next.CurrentAsk, Round: next.RoundCount}, nil
}

func (e *Engine) decide(s Session, kind DecisionKind, amount decimal.Decimal) Decision {
	return Decision{
		Kind:         kind,
		Amount:       amount,
		Round:        s.RoundCount,
		RoundsLeft:   s.RoundsLeft(),
		FloorReached: kind == DecisionCounter && amount.Equal(s.FloorPrice),
	}
}

func (e *Engine) accept(s Session, amount decimal.Decimal) (Session, Decision, error) {
	s.Status = StatusAccepted
	s.AgreedPrice = &amount
	return s, e.decide(s, DecisionAccept, amount), nil
}

// concede moves the ask toward the offer by the concession factor. The result
// is rounded down to cents, stays strictly below ask and never drops below floor.
func concede(ask, offer decimal.Decimal, concession float64, floor decimal.Decimal) decimal.Decimal {
	gap := ask.Sub(offer)
	counter := ask.Sub(gap.Mul(decimal.NewFromFloat(concession))).RoundFloor(2)
	if counter.GreaterThanOrEqual(ask) {
		counter = ask.Sub(cent).RoundFloor(2)
	}
	return decimal.Max(counter, floor)
}
