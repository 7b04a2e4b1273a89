package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

// CatalogHandler serves product listings.
type CatalogHandler struct {
	logger   *observability.Logger
	provider catalog.Provider
	features *features.Cache
	maxLimit int
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(logger *observability.Logger, provider catalog.Provider, attrs *features.Cache, maxLimit int) *CatalogHandler {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &CatalogHandler{logger: logger, provider: provider, features: attrs, maxLimit: maxLimit}
}

// ProductDTO is a product with its extracted attributes.
type ProductDTO struct {
	domain.Product
	Attributes features.AttributeMap `json:"attributes"`
}

// ProductListDTO is the response of GET /products.
type ProductListDTO struct {
	Products []ProductDTO `json:"products"`
	Total    int          `json:"total"`
}

// List handles GET /products.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := catalog.Filter{
		Category: q.Get("category"),
		Brand:    q.Get("brand"),
		Sort:     q.Get("sort"),
		Limit:    h.maxLimit,
	}

	switch filter.Sort {
	case "", catalog.SortPriceAsc, catalog.SortPriceDesc, catalog.SortRating, catalog.SortReviews:
	default:
		writeError(w, http.StatusBadRequest, "invalid sort", "use price, price_desc, rating or reviews")
		return
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"min_price", &filter.MinPrice}, {"max_price", &filter.MaxPrice}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.name, err.Error())
			return
		}
		*p.dst = &d
	}

	if raw := q.Get("min_rating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 5 {
			writeError(w, http.StatusBadRequest, "invalid min_rating", "must be between 0 and 5")
			return
		}
		filter.MinRating = v
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := parseK(raw, h.maxLimit, h.maxLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
			return
		}
		filter.Limit = limit
	}

	products, err := h.provider.Products(ctx)
	if err != nil {
		writeDomainError(w, h.logger, err, "list products")
		return
	}

	// Total counts matches before the limit is applied.
	unlimited := filter
	unlimited.Limit = 0
	matches := unlimited.Apply(products)
	page := matches
	if len(page) > filter.Limit {
		page = page[:filter.Limit]
	}

	resp := ProductListDTO{Products: make([]ProductDTO, 0, len(page)), Total: len(matches)}
	for _, p := range page {
		resp.Products = append(resp.Products, h.dto(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /products/{id}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err, "get product")
		return
	}
	writeJSON(w, http.StatusOK, h.dto(p))
}

// Categories handles GET /categories.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	products, err := h.provider.Products(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err, "list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": catalog.Categories(products)})
}

func (h *CatalogHandler) dto(p domain.Product) ProductDTO {
	return ProductDTO{Product: p, Attributes: h.features.Attributes(p)}
}
