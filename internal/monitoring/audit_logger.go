// Package monitoring provides the audit trail for negotiation decisions.
package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

// DefaultChannel is the pub/sub channel audit events are published on.
const DefaultChannel = "negotiation.decisions"

// Publisher publishes JSON-encoded messages. cache.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Action is the kind of audited transition.
type Action string

const (
	ActionStarted Action = "started"
	ActionDecided Action = "decided"
)

// AuditEvent represents one audited negotiation transition.
type AuditEvent struct {
	ID         uuid.UUID                 `json:"id"`
	SessionID  string                    `json:"session_id"`
	ProductID  string                    `json:"product_id"`
	CustomerID string                    `json:"customer_id"`
	Action     Action                    `json:"action"`
	Status     negotiation.Status        `json:"status"`
	Round      int                       `json:"round"`
	Offer      *decimal.Decimal          `json:"offer,omitempty"`
	Decision   *negotiation.DecisionKind `json:"decision,omitempty"`
	Amount     *decimal.Decimal          `json:"amount,omitempty"`
	OccurredAt time.Time                 `json:"occurred_at"`
}

// DecisionAuditor logs negotiation transitions and optionally publishes them.
type DecisionAuditor struct {
	logger    *observability.Logger
	publisher Publisher
	channel   string
}

// NewDecisionAuditor creates a new auditor. The publisher may be nil.
func NewDecisionAuditor(logger *observability.Logger, publisher Publisher, channel string) *DecisionAuditor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &DecisionAuditor{
		logger:    logger,
		publisher: publisher,
		channel:   channel,
	}
}

// RecordStart audits a newly opened session.
func (a *DecisionAuditor) RecordStart(ctx context.Context, s negotiation.Session) {
	a.LogEvent(ctx, AuditEvent{
		SessionID:  s.ID,
		ProductID:  s.ProductID,
		CustomerID: s.CustomerID,
		Action:     ActionStarted,
		Status:     s.Status,
		Amount:     &s.CurrentAsk,
	})
}

// RecordDecision audits the engine's answer to an offer or an expiry.
func (a *DecisionAuditor) RecordDecision(ctx context.Context, s negotiation.Session, d negotiation.Decision) {
	kind := d.Kind
	amount := d.Amount
	event := AuditEvent{
		SessionID:  s.ID,
		ProductID:  s.ProductID,
		CustomerID: s.CustomerID,
		Action:     ActionDecided,
		Status:     s.Status,
		Round:      d.Round,
		Decision:   &kind,
		Amount:     &amount,
	}
	if offer, ok := lastCustomerOffer(s, d.Round); ok {
		event.Offer = &offer
	}
	a.LogEvent(ctx, event)
}

// LogEvent records an audit event. Publish failures are logged and never
// propagate to the negotiation.
func (a *DecisionAuditor) LogEvent(ctx context.Context, event AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	evt := a.logger.WithContext(ctx).Info().
		Str("event_id", event.ID.String()).
		Str("session_id", event.SessionID).
		Str("product_id", event.ProductID).
		Str("action", string(event.Action)).
		Str("status", string(event.Status)).
		Int("round", event.Round)
	if event.Decision != nil {
		evt = evt.Str("decision", string(*event.Decision))
	}
	if event.Amount != nil {
		evt = evt.Amount("amount", *event.Amount)
	}
	evt.Msg("Audit event")

	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, a.channel, event); err != nil {
		a.logger.Warn().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("channel", a.channel).
			Msg("Failed to publish audit event")
	}
}

func lastCustomerOffer(s negotiation.Session, round int) (decimal.Decimal, bool) {
	for i := len(s.Offers) - 1; i >= 0; i-- {
		o := s.Offers[i]
		if o.Actor == negotiation.ActorCustomer && o.Round == round {
			return o.Amount, true
		}
	}
	return decimal.Decimal{}, false
}
