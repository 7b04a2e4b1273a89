package negotiation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

// Auditor receives every session transition.
type Auditor interface {
	RecordStart(ctx context.Context, s Session)
	RecordDecision(ctx context.Context, s Session, d Decision)
}

// Store keeps sessions in memory. Offers on one session are applied strictly
// in order while different sessions progress concurrently.
type Store struct {
	engine  *Engine
	logger  *observability.Logger
	auditor Auditor

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewStore creates a session store. The auditor may be nil.
func NewStore(engine *Engine, logger *observability.Logger, auditor Auditor) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		engine:   engine,
		logger:   logger,
		auditor:  auditor,
		sessions: make(map[string]*entry),
	}
}

// Start opens a new session and returns a snapshot of it.
func (s *Store) Start(ctx context.Context, product domain.Product, customerID string, maxRounds int) (Session, error) {
	session, err := s.engine.Start(product, customerID, maxRounds)
	if err != nil {
		return Session{}, err
	}
	session.ID = uuid.NewString()

	if session.DefaultPolicy {
		s.logger.Warn().
			Str("category", product.Category).
			Str("product_id", product.ID).
			Msg("No negotiation policy for category, using default")
	}

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session}
	s.mu.Unlock()

	s.logger.WithContext(ctx).WithSession(session.ID).Info().
		Str("product_id", session.ProductID).
		Str("customer_id", session.CustomerID).
		Int("max_rounds", session.MaxRounds).
		Msg("Negotiation started")

	if s.auditor != nil {
		s.auditor.RecordStart(ctx, session.clone())
	}
	return session.clone(), nil
}

// Evaluate applies an offer to a session.
func (s *Store) Evaluate(ctx context.Context, id string, amount decimal.Decimal) (Session, Decision, error) {
	e, err := s.entry(id)
	if err != nil {
		return Session{}, Decision{}, err
	}

	e.mu.Lock()
	next, decision, err := s.engine.Evaluate(e.session, amount)
	if err == nil {
		e.session = next
	}
	snapshot := e.session.clone()
	e.mu.Unlock()

	if err != nil {
		return snapshot, Decision{}, err
	}

	s.logger.WithContext(ctx).WithSession(id).Info().
		Amount("offer", amount).
		Str("decision", string(decision.Kind)).
		Amount("amount", decision.Amount).
		Int("round", decision.Round).
		Int("rounds_left", decision.RoundsLeft).
		Msg("Offer evaluated")

	if s.auditor != nil {
		s.auditor.RecordDecision(ctx, snapshot, decision)
	}
	return snapshot, decision, nil
}

// Get returns a snapshot of a session.
func (s *Store) Get(id string) (Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), nil
}

// Expire closes an open session.
func (s *Store) Expire(ctx context.Context, id string) (Session, Decision, error) {
	e, err := s.entry(id)
	if err != nil {
		return Session{}, Decision{}, err
	}

	e.mu.Lock()
	next, decision, err := s.engine.Expire(e.session)
	if err == nil {
		e.session = next
	}
	snapshot := e.session.clone()
	e.mu.Unlock()

	if err != nil {
		return snapshot, Decision{}, err
	}

	s.logger.WithContext(ctx).WithSession(id).Info().Msg("Negotiation expired")
	if s.auditor != nil {
		s.auditor.RecordDecision(ctx, snapshot, decision)
	}
	return snapshot, decision, nil
}

// ExpireIdle expires every open session whose last update is older than
// idle and returns how many were expired.
func (s *Store) ExpireIdle(ctx context.Context, idle time.Duration) int {
	cutoff := s.engine.now().Add(-idle)
	expired := 0
	for _, id := range s.ids() {
		e, err := s.entry(id)
		if err != nil {
			continue
		}

		e.mu.Lock()
		if e.session.Status != StatusOpen || !e.session.UpdatedAt.Before(cutoff) {
			e.mu.Unlock()
			continue
		}
		next, decision, err := s.engine.Expire(e.session)
		if err == nil {
			e.session = next
		}
		e.mu.Unlock()
		if err != nil {
			continue
		}

		expired++
		if s.auditor != nil {
			s.auditor.RecordDecision(ctx, next.clone(), decision)
		}
	}

	if expired > 0 {
		s.logger.Info().Int("expired", expired).Dur("idle", idle).Msg("Expired idle negotiations")
	}
	return expired
}

// List returns snapshots of all sessions, oldest first.
func (s *Store) List() []Session {
	ids := s.ids()
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if session, err := s.Get(id); err == nil {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.SessionNotFound(id)
	}
	return e, nil
}

func (s *Store) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
