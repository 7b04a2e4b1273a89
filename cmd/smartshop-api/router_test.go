package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
	"github.com/spherical-ai/smartshop-engine/internal/policy"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	rating := 4.2
	products := []domain.Product{{
		ID:          "p1",
		Title:       "Acme Phone 8GB RAM 128GB",
		Category:    "electronics",
		BaseCost:    decimal.NewFromInt(150),
		DeliveryFee: decimal.NewFromInt(5),
		ListPrice:   decimal.NewFromInt(300),
		Rating:      &rating,
	}}

	attrs := features.NewCache(features.NewExtractor())
	policies := policy.DefaultTable()
	logger := observability.NopLogger()
	svc := &Services{
		Catalog:      catalog.NewMemoryProvider(products),
		Features:     attrs,
		Recommender:  recommend.NewEngine(attrs, policies, recommend.DefaultConfig()),
		Negotiations: negotiation.NewStore(negotiation.NewEngine(policies, negotiation.Config{DefaultMaxRounds: 3}), logger, nil),
		Renderer:     dialogue.NewTemplateRenderer(),
	}
	cfg := DefaultAppConfig()
	cfg.AllowedOrigins = []string{"https://shop.example.com"}
	return NewRouter(logger, svc, cfg)
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"smartshop"}`, rec.Body.String())
}

func TestRouter_Routes(t *testing.T) {
	router := testRouter(t)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/api/v1/products", "", http.StatusOK},
		{http.MethodGet, "/api/v1/products/p1", "", http.StatusOK},
		{http.MethodGet, "/api/v1/products/p1/recommendations", "", http.StatusOK},
		{http.MethodGet, "/api/v1/products/p1/similar", "", http.StatusOK},
		{http.MethodGet, "/api/v1/products/p1/better", "", http.StatusOK},
		{http.MethodGet, "/api/v1/categories", "", http.StatusOK},
		{http.MethodGet, "/api/v1/search?q=phone", "", http.StatusOK},
		{http.MethodPost, "/api/v1/extract", `{"title":"Acme Phone 8GB RAM"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/recommendations/personalized", `{"productIds":["p1"]}`, http.StatusOK},
		{http.MethodPost, "/api/v1/negotiations", `{"productId":"p1"}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/negotiations", "", http.StatusOK},
		{http.MethodGet, "/api/v1/negotiations/missing", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/negotiations/missing/offers", `{"amount":1}`, http.StatusNotFound},
		{http.MethodPost, "/api/v1/negotiations/missing/expire", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_CORS(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunJanitor(t *testing.T) {
	policies := policy.DefaultTable()
	store := negotiation.NewStore(negotiation.NewEngine(policies, negotiation.Config{DefaultMaxRounds: 3}), nil, nil)
	rating := 4.0
	session, err := store.Start(context.Background(), domain.Product{
		ID:          "p1",
		Title:       "Acme Phone",
		Category:    "electronics",
		BaseCost:    decimal.NewFromInt(100),
		DeliveryFee: decimal.NewFromInt(5),
		ListPrice:   decimal.NewFromInt(200),
		Rating:      &rating,
	}, "c1", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runJanitor(ctx, observability.NopLogger(), store, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s, err := store.Get(session.ID)
		return err == nil && s.Status == negotiation.StatusExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
