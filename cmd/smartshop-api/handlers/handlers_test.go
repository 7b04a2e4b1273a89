package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/smartshop-engine/internal/cache"
	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
	"github.com/spherical-ai/smartshop-engine/internal/policy"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

func product(id, title, category, price string, rating float64) domain.Product {
	list := decimal.RequireFromString(price)
	return domain.Product{
		ID:          id,
		Title:       title,
		Category:    category,
		BaseCost:    list.Div(decimal.NewFromInt(2)),
		DeliveryFee: decimal.NewFromInt(5),
		ListPrice:   list,
		Rating:      &rating,
		Brand:       "Acme",
	}
}

func testProducts() []domain.Product {
	return []domain.Product{
		product("a", "Acme Phone 8GB RAM 128GB", "electronics", "300", 4.1),
		product("c1", "Acme Phone 16GB RAM 128GB", "electronics", "310", 4.5),
		product("c2", "Acme Phone 8GB RAM 128GB Black", "electronics", "290", 3.9),
		product("h1", "Acme Blender 1200W Stainless Steel", "home_kitchen", "80", 4.8),
	}
}

type testServer struct {
	router http.Handler
	store  *negotiation.Store
	cache  *cache.MemoryClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := observability.NopLogger()
	provider := catalog.NewMemoryProvider(testProducts())
	attrs := features.NewCache(features.NewExtractor())
	policies := policy.DefaultTable()
	engine := recommend.NewEngine(attrs, policies, recommend.DefaultConfig())
	store := negotiation.NewStore(negotiation.NewEngine(policies, negotiation.Config{DefaultMaxRounds: 3}), logger, nil)
	memCache := cache.NewMemoryClient(100)
	t.Cleanup(func() { memCache.Close() })

	ch := NewCatalogHandler(logger, provider, attrs, 2)
	eh := NewExtractHandler(logger, attrs.Extractor())
	rh := NewRecommendationHandler(logger, provider, engine, nil, memCache, RecommendationConfig{
		DefaultK:     5,
		MaxK:         10,
		CacheResults: true,
		CacheTTL:     time.Minute,
	})
	nh := NewNegotiationHandler(logger, provider, store, nil)

	r := chi.NewRouter()
	r.Post("/extract", eh.Extract)
	r.Get("/categories", ch.Categories)
	r.Get("/search", rh.Search)
	r.Get("/products", ch.List)
	r.Get("/products/{id}", ch.Get)
	r.Get("/products/{id}/recommendations", rh.Recommend)
	r.Get("/products/{id}/similar", rh.Similar)
	r.Get("/products/{id}/better", rh.Better)
	r.Post("/recommendations/personalized", rh.Personalized)
	r.Post("/negotiations", nh.Start)
	r.Get("/negotiations", nh.List)
	r.Get("/negotiations/{id}", nh.Get)
	r.Post("/negotiations/{id}/offers", nh.Offer)
	r.Post("/negotiations/{id}/expire", nh.Expire)

	return &testServer{router: r, store: store, cache: memCache}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestExtract(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/extract", `{"title":"Acme Phone 8GB RAM, 128GB Storage, Blue"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Attributes map[string]interface{}            `json:"attributes"`
		Groups     map[string]map[string]interface{} `json:"groups"`
	}
	decode(t, rec, &resp)
	assert.EqualValues(t, 8, resp.Attributes["ram_gb"])
	assert.Equal(t, "blue", resp.Attributes["color"])
	assert.NotEmpty(t, resp.Groups)

	tests := []struct {
		name string
		body string
	}{
		{"empty title", `{"title":"  "}`},
		{"malformed", `{"title":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/extract", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCatalog_List(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		query   string
		status  int
		wantIDs []string
		total   int
	}{
		{name: "limit applies after filtering", query: "?category=electronics&sort=price", status: http.StatusOK, wantIDs: []string{"c2", "a"}, total: 3},
		{name: "price range", query: "?min_price=85&max_price=300&sort=price_desc", status: http.StatusOK, wantIDs: []string{"a", "c2"}, total: 2},
		{name: "rating", query: "?min_rating=4.4&sort=rating", status: http.StatusOK, wantIDs: []string{"h1", "c1"}, total: 2},
		{name: "explicit limit", query: "?limit=1&sort=reviews", status: http.StatusOK, total: 4},
		{name: "bad sort", query: "?sort=random", status: http.StatusBadRequest},
		{name: "bad price", query: "?min_price=cheap", status: http.StatusBadRequest},
		{name: "bad rating", query: "?min_rating=7", status: http.StatusBadRequest},
		{name: "bad limit", query: "?limit=0", status: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/products"+tc.query, "")
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusOK {
				return
			}
			var resp ProductListDTO
			decode(t, rec, &resp)
			assert.Equal(t, tc.total, resp.Total)
			if tc.wantIDs != nil {
				got := make([]string, len(resp.Products))
				for i, p := range resp.Products {
					got[i] = p.ID
				}
				assert.Equal(t, tc.wantIDs, got)
			}
		})
	}
}

func TestCatalog_GetAndCategories(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products/c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p ProductDTO
	decode(t, rec, &p)
	assert.Equal(t, "c1", p.ID)
	assert.Contains(t, p.Attributes, "ram_gb")

	rec = s.do(t, http.MethodGet, "/products/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.KindProductNotFound))

	rec = s.do(t, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"categories":["electronics","home_kitchen"]}`, rec.Body.String())
}

func TestRecommendations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products/a/recommendations?k=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RecommendationResponseDTO
	decode(t, rec, &resp)
	require.NotNil(t, resp.Anchor)
	assert.Equal(t, "a", resp.Anchor.ID)
	assert.Len(t, resp.Results, 2)
	assert.False(t, resp.Cached)
	assert.Contains(t, resp.Message, "Here are 2 products")
	for _, r := range resp.Results {
		assert.NotEqual(t, "a", r.Product.ID)
		assert.NotEqual(t, "h1", r.Product.ID, "other categories are never recommended")
	}

	// Second identical request is served from the cache.
	rec = s.do(t, http.MethodGet, "/products/a/recommendations?k=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cached RecommendationResponseDTO
	decode(t, rec, &cached)
	assert.True(t, cached.Cached)
	assert.Equal(t, len(resp.Results), len(cached.Results))
	assert.Positive(t, s.cache.Len())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown anchor", "/products/zzz/recommendations", http.StatusNotFound},
		{"unknown history", "/products/a/recommendations?history=c1,zzz", http.StatusNotFound},
		{"bad k", "/products/a/recommendations?k=-1", http.StatusBadRequest},
		{"history", "/products/a/recommendations?history=c1", http.StatusOK},
		{"similar", "/products/a/similar", http.StatusOK},
		{"better", "/products/a/better?k=3", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tc.path, "")
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRecommendations_Better(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products/a/better", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RecommendationResponseDTO
	decode(t, rec, &resp)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].Product.ID)
	assert.Equal(t, recommend.RelationBetterAlternative, resp.Results[0].Relation)
}

func TestPersonalized(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/recommendations/personalized", `{"productIds":["a"],"k":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RecommendationResponseDTO
	decode(t, rec, &resp)
	assert.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.NotEqual(t, "a", r.Product.ID, "viewed products are excluded")
	}

	rec = s.do(t, http.MethodPost, "/recommendations/personalized", `{"productIds":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Results, "no history falls back to top rated")

	rec = s.do(t, http.MethodPost, "/recommendations/personalized", `{"productIds":["missing"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/recommendations/personalized", `{"k":-2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/search?q=blender", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RecommendationResponseDTO
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "h1", resp.Results[0].Product.ID)
	assert.Equal(t, "blender", resp.Query)
	assert.Contains(t, resp.Message, `match "blender"`)

	rec = s.do(t, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/search?q=zzzz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestNegotiation_Flow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/negotiations", `{"productId":"a","customerId":"cust-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session negotiation.Session
	decode(t, rec, &session)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 3, session.MaxRounds)
	assert.True(t, session.CurrentAsk.Equal(decimal.NewFromInt(300)))
	assert.NotContains(t, rec.Body.String(), "floor", "the floor price is never exposed")

	offer := func(body string) (*httptest.ResponseRecorder, DecisionResponseDTO) {
		rec := s.do(t, http.MethodPost, "/negotiations/"+session.ID+"/offers", body)
		var resp DecisionResponseDTO
		if rec.Code == http.StatusOK {
			decode(t, rec, &resp)
		}
		return rec, resp
	}

	rec, resp := offer(`{"amount":250}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, negotiation.DecisionCounter, resp.Decision.Kind)
	assert.True(t, resp.Decision.Amount.Equal(decimal.NewFromInt(275)), resp.Decision.Amount.String())
	assert.Equal(t, 2, resp.Decision.RoundsLeft)
	assert.Contains(t, resp.Message, "$275.00")

	rec, resp = offer(`{"amount":"275"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, negotiation.DecisionAccept, resp.Decision.Kind)
	assert.Equal(t, negotiation.StatusAccepted, resp.Session.Status)
	require.NotNil(t, resp.Session.AgreedPrice)
	assert.Contains(t, resp.Message, "Deal!")

	rec, _ = offer(`{"amount":280}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "closed sessions reject offers")

	rec = s.do(t, http.MethodGet, "/negotiations/"+session.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &session)
	assert.Len(t, session.Offers, 3)

	rec = s.do(t, http.MethodGet, "/negotiations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestNegotiation_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/negotiations", `{"productId":"a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session negotiation.Session
	decode(t, rec, &session)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing product id", http.MethodPost, "/negotiations", `{}`, http.StatusBadRequest},
		{"unknown product", http.MethodPost, "/negotiations", `{"productId":"zzz"}`, http.StatusNotFound},
		{"negative rounds", http.MethodPost, "/negotiations", `{"productId":"a","maxRounds":-1}`, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/negotiations/nope", "", http.StatusNotFound},
		{"offer unknown session", http.MethodPost, "/negotiations/nope/offers", `{"amount":10}`, http.StatusNotFound},
		{"missing amount", http.MethodPost, "/negotiations/" + session.ID + "/offers", `{}`, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/negotiations/" + session.ID + "/offers", `{"amount":0}`, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/negotiations/" + session.ID + "/offers", `{"amount":"-5"}`, http.StatusBadRequest},
		{"garbage amount", http.MethodPost, "/negotiations/" + session.ID + "/offers", `{"amount":"ten"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	// Invalid offers leave the session untouched.
	got, err := s.store.Get(session.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RoundCount)
}

func TestNegotiation_Expire(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/negotiations", `{"productId":"h1","maxRounds":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session negotiation.Session
	decode(t, rec, &session)

	rec = s.do(t, http.MethodPost, "/negotiations/"+session.ID+"/expire", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DecisionResponseDTO
	decode(t, rec, &resp)
	assert.Equal(t, negotiation.DecisionExpire, resp.Decision.Kind)
	assert.Equal(t, negotiation.StatusExpired, resp.Session.Status)
	assert.True(t, strings.Contains(resp.Message, "ended"))

	rec = s.do(t, http.MethodPost, "/negotiations/"+session.ID+"/expire", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestParseK(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 5, false},
		{"3", 3, false},
		{"500", 10, false},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range tests {
		got, err := parseK(tc.raw, 5, 10)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}
