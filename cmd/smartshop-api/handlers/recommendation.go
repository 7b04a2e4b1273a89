package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/smartshop-engine/internal/cache"
	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

// RecommendationConfig holds request defaults for the recommendation routes.
type RecommendationConfig struct {
	DefaultK     int
	MaxK         int
	CacheResults bool
	CacheTTL     time.Duration
}

// RecommendationHandler serves ranked product lists.
type RecommendationHandler struct {
	logger   *observability.Logger
	provider catalog.Provider
	engine   *recommend.Engine
	renderer dialogue.Renderer
	cache    cache.Client
	cfg      RecommendationConfig
}

// NewRecommendationHandler creates a new recommendation handler. The cache may be nil.
func NewRecommendationHandler(
	logger *observability.Logger,
	provider catalog.Provider,
	engine *recommend.Engine,
	renderer dialogue.Renderer,
	responseCache cache.Client,
	cfg RecommendationConfig,
) *RecommendationHandler {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	if renderer == nil {
		renderer = dialogue.NewTemplateRenderer()
	}
	return &RecommendationHandler{
		logger:   logger,
		provider: provider,
		engine:   engine,
		renderer: renderer,
		cache:    responseCache,
		cfg:      cfg,
	}
}

// RecommendationResponseDTO is a ranked list with a conversational summary.
type RecommendationResponseDTO struct {
	Anchor  *domain.Product    `json:"anchor,omitempty"`
	Query   string             `json:"query,omitempty"`
	Results []recommend.Result `json:"results"`
	Message string             `json:"message"`
	Cached  bool               `json:"cached"`
}

// PersonalizedRequestDTO is the body of POST /recommendations/personalized.
type PersonalizedRequestDTO struct {
	ProductIDs []string `json:"productIds"`
	K          int      `json:"k"`
}

type rankFunc func(anchor domain.Product, products, history []domain.Product, k int) []recommend.Result

// Recommend handles GET /products/{id}/recommendations.
func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	h.anchored(w, r, "recommend", true, h.engine.Recommend)
}

// Similar handles GET /products/{id}/similar.
func (h *RecommendationHandler) Similar(w http.ResponseWriter, r *http.Request) {
	h.anchored(w, r, "similar", false, func(anchor domain.Product, products, _ []domain.Product, k int) []recommend.Result {
		return h.engine.Similar(anchor, products, k)
	})
}

// Better handles GET /products/{id}/better.
func (h *RecommendationHandler) Better(w http.ResponseWriter, r *http.Request) {
	h.anchored(w, r, "better", false, func(anchor domain.Product, products, _ []domain.Product, k int) []recommend.Result {
		return h.engine.BetterAlternatives(anchor, products, k)
	})
}

func (h *RecommendationHandler) anchored(w http.ResponseWriter, r *http.Request, kind string, withHistory bool, rank rankFunc) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx).WithOperation(kind)

	k, err := parseK(r.URL.Query().Get("k"), h.cfg.DefaultK, h.cfg.MaxK)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid k", err.Error())
		return
	}

	anchorID := chi.URLParam(r, "id")
	var historyIDs []string
	if withHistory {
		historyIDs = splitIDs(r.URL.Query().Get("history"))
	}

	key := cache.Key("rec", kind, anchorID, strconv.Itoa(k), strings.Join(historyIDs, ","))
	if h.serveCached(ctx, w, key) {
		return
	}

	anchor, err := h.provider.Product(ctx, anchorID)
	if err != nil {
		writeDomainError(w, logger, err, kind)
		return
	}
	products, err := h.provider.Products(ctx)
	if err != nil {
		writeDomainError(w, logger, err, kind)
		return
	}
	history, err := resolve(products, historyIDs)
	if err != nil {
		writeDomainError(w, logger, err, kind)
		return
	}

	results := rank(anchor, products, history, k)
	logger.Info().
		Str("product_id", anchorID).
		Int("k", k).
		Int("history", len(history)).
		Int("results", len(results)).
		Msg("Ranked recommendations")

	h.respond(ctx, w, key, RecommendationResponseDTO{Anchor: &anchor, Results: results}, dialogue.RecommendationInput{Anchor: &anchor, Results: results})
}

// Personalized handles POST /recommendations/personalized.
func (h *RecommendationHandler) Personalized(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req PersonalizedRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	k := req.K
	if k == 0 {
		k = h.cfg.DefaultK
	}
	if k < 0 {
		writeError(w, http.StatusBadRequest, "invalid k", "k must be a positive integer")
		return
	}
	if k > h.cfg.MaxK {
		k = h.cfg.MaxK
	}

	products, err := h.provider.Products(ctx)
	if err != nil {
		writeDomainError(w, h.logger, err, "personalized")
		return
	}
	viewed, err := resolve(products, req.ProductIDs)
	if err != nil {
		writeDomainError(w, h.logger, err, "personalized")
		return
	}

	results := h.engine.Personalized(viewed, products, k)
	h.respond(ctx, w, "", RecommendationResponseDTO{Results: results}, dialogue.RecommendationInput{Results: results})
}

// Search handles GET /search.
func (h *RecommendationHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required", "")
		return
	}
	k, err := parseK(r.URL.Query().Get("k"), h.cfg.DefaultK, h.cfg.MaxK)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid k", err.Error())
		return
	}

	key := cache.Key("rec", "search", strings.ToLower(query), strconv.Itoa(k))
	if h.serveCached(ctx, w, key) {
		return
	}

	products, err := h.provider.Products(ctx)
	if err != nil {
		writeDomainError(w, h.logger, err, "search")
		return
	}

	results := h.engine.Search(query, products, k)
	h.respond(ctx, w, key, RecommendationResponseDTO{Query: query, Results: results}, dialogue.RecommendationInput{Query: query, Results: results})
}

func (h *RecommendationHandler) serveCached(ctx context.Context, w http.ResponseWriter, key string) bool {
	if h.cache == nil || !h.cfg.CacheResults {
		return false
	}
	var cached RecommendationResponseDTO
	found, err := cache.GetJSON(ctx, h.cache, key, &cached)
	if err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("Recommendation cache read failed")
		return false
	}
	if !found {
		return false
	}
	cached.Cached = true
	writeJSON(w, http.StatusOK, cached)
	return true
}

func (h *RecommendationHandler) respond(ctx context.Context, w http.ResponseWriter, key string, resp RecommendationResponseDTO, in dialogue.RecommendationInput) {
	if resp.Results == nil {
		resp.Results = []recommend.Result{}
	}
	msg, err := h.renderer.RenderRecommendations(ctx, in)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to render recommendations")
	}
	resp.Message = msg

	if key != "" && h.cache != nil && h.cfg.CacheResults {
		if err := cache.SetJSON(ctx, h.cache, key, resp, h.cfg.CacheTTL); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("Recommendation cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolve looks up products by ID, keeping the requested order.
func resolve(products []domain.Product, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := domain.FindProduct(products, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
