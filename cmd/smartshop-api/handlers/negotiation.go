package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

// NegotiationHandler serves bargaining sessions.
type NegotiationHandler struct {
	logger   *observability.Logger
	provider catalog.Provider
	store    *negotiation.Store
	renderer dialogue.Renderer
}

// NewNegotiationHandler creates a new negotiation handler.
func NewNegotiationHandler(logger *observability.Logger, provider catalog.Provider, store *negotiation.Store, renderer dialogue.Renderer) *NegotiationHandler {
	if renderer == nil {
		renderer = dialogue.NewTemplateRenderer()
	}
	return &NegotiationHandler{logger: logger, provider: provider, store: store, renderer: renderer}
}

// StartRequestDTO is the body of POST /negotiations.
type StartRequestDTO struct {
	ProductID  string `json:"productId"`
	CustomerID string `json:"customerId"`
	MaxRounds  int    `json:"maxRounds,omitempty"`
}

// OfferRequestDTO is the body of POST /negotiations/{id}/offers.
// Amount accepts a JSON number or a decimal string.
type OfferRequestDTO struct {
	Amount *decimal.Decimal `json:"amount"`
}

// DecisionResponseDTO is a session after a decision, with the shopkeeper's reply.
type DecisionResponseDTO struct {
	Session  negotiation.Session  `json:"session"`
	Decision negotiation.Decision `json:"decision"`
	Message  string               `json:"message"`
}

// Start handles POST /negotiations.
func (h *NegotiationHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req StartRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required", "")
		return
	}
	if req.MaxRounds < 0 {
		writeError(w, http.StatusBadRequest, "invalid maxRounds", "maxRounds must not be negative")
		return
	}

	product, err := h.provider.Product(ctx, req.ProductID)
	if err != nil {
		writeDomainError(w, h.logger, err, "start negotiation")
		return
	}
	session, err := h.store.Start(ctx, product, req.CustomerID, req.MaxRounds)
	if err != nil {
		writeDomainError(w, h.logger, err, "start negotiation")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Get handles GET /negotiations/{id}.
func (h *NegotiationHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err, "get negotiation")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// List handles GET /negotiations.
func (h *NegotiationHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// Offer handles POST /negotiations/{id}/offers.
func (h *NegotiationHandler) Offer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req OfferRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required", "")
		return
	}

	session, decision, err := h.store.Evaluate(ctx, chi.URLParam(r, "id"), *req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err, "evaluate offer")
		return
	}
	writeJSON(w, http.StatusOK, h.reply(ctx, session, decision, *req.Amount))
}

// Expire handles POST /negotiations/{id}/expire.
func (h *NegotiationHandler) Expire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, decision, err := h.store.Expire(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err, "expire negotiation")
		return
	}
	writeJSON(w, http.StatusOK, h.reply(ctx, session, decision, decimal.Zero))
}

func (h *NegotiationHandler) reply(ctx context.Context, session negotiation.Session, decision negotiation.Decision, offer decimal.Decimal) DecisionResponseDTO {
	resp := DecisionResponseDTO{Session: session, Decision: decision}

	product, err := h.provider.Product(ctx, session.ProductID)
	if err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Str("product_id", session.ProductID).Msg("Product vanished from catalog")
		return resp
	}
	msg, err := h.renderer.RenderDecision(ctx, dialogue.DecisionInput{
		Product:  product,
		Session:  session,
		Decision: decision,
		Offer:    offer,
	})
	if err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Msg("Failed to render decision")
	}
	resp.Message = msg
	return resp
}
