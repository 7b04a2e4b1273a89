package recommend

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
)

func product(id, title, category, price string) domain.Product {
	list := decimal.RequireFromString(price)
	return domain.Product{
		ID:          id,
		Title:       title,
		Category:    category,
		BaseCost:    list.Div(decimal.NewFromInt(2)),
		DeliveryFee: decimal.NewFromInt(5),
		ListPrice:   list,
	}
}

func rated(p domain.Product, rating float64) domain.Product {
	p.Rating = &rating
	return p
}

func phoneCatalog() (domain.Product, []domain.Product) {
	anchor := product("a", "Acme Phone 8GB RAM 128GB", "electronics", "300")
	return anchor, []domain.Product{
		anchor,
		product("c1", "Acme Phone 16GB RAM 128GB", "electronics", "310"),
		product("c2", "Acme Phone 8GB RAM 128GB Black", "electronics", "290"),
		product("c3", "Acme Phone 16GB RAM 128GB", "electronics", "400"),
		product("c4", "Acme Phone 16GB RAM 64GB", "electronics", "300"),
		product("x1", "Acme Blender 16GB RAM 128GB", "home_kitchen", "50"),
	}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Product.ID
	}
	return out
}

func TestEngine_Recommend(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor, catalog := phoneCatalog()

	results := engine.Recommend(anchor, catalog, nil, 10)
	require.Equal(t, []string{"c2", "c1", "c3", "c4"}, ids(results))

	relations := map[string]Relation{}
	for _, r := range results {
		relations[r.Product.ID] = r.Relation
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.Equal(t, RelationSimilar, relations["c2"])
	assert.Equal(t, RelationBetterAlternative, relations["c1"])
	assert.Equal(t, RelationSimilar, relations["c3"], "premium above ratio")
	assert.Equal(t, RelationSimilar, relations["c4"], "worse storage")

	assert.InDelta(t, 1.5/1.7, results[0].Score, 1e-9)
	assert.InDelta(t, 1.1/1.5, results[1].Score, 1e-9)
}

func TestEngine_BetterAlternativeScenario(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor := product("anchor", "Phone 8GB RAM 128GB", "electronics", "300")
	candidate := product("cand", "Phone 16GB RAM 128GB", "electronics", "310")

	results := engine.Recommend(anchor, []domain.Product{candidate}, nil, 5)
	require.Len(t, results, 1)
	assert.Equal(t, RelationBetterAlternative, results[0].Relation)

	require.Len(t, results[0].Rationale, 1)
	diff := results[0].Rationale[0]
	assert.Equal(t, "ram_gb", diff.Key)
	assert.Equal(t, ComparisonBetter, diff.Comparison)
	assert.Equal(t, features.Num(8), *diff.Anchor)
	assert.Equal(t, features.Num(16), *diff.Candidate)
}

func TestEngine_LighterIsBetter(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor := product("a", "Ultrabook 16GB RAM 2 kg", "computers", "1000")
	lighter := product("b", "Ultrabook 16GB RAM 1.2 kg", "computers", "1100")
	heavier := product("c", "Ultrabook 16GB RAM 3 kg", "computers", "900")

	results := engine.Recommend(anchor, []domain.Product{lighter, heavier}, nil, 5)
	relations := map[string]Relation{}
	for _, r := range results {
		relations[r.Product.ID] = r.Relation
	}
	assert.Equal(t, RelationBetterAlternative, relations["b"])
	assert.Equal(t, RelationSimilar, relations["c"])
}

func TestEngine_HistoryBoost(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor, catalog := phoneCatalog()
	viewed := product("h1", "Acme Phone 8GB RAM 128GB Black", "electronics", "299")

	results := engine.Recommend(anchor, catalog, []domain.Product{viewed}, 10)
	scores := map[string]float64{}
	for _, r := range results {
		scores[r.Product.ID] = r.Score
	}
	assert.InDelta(t, 1.5/1.7+0.1, scores["c2"], 1e-9)
	assert.InDelta(t, 1.1/1.5+0.05, scores["c1"], 1e-9)
	assert.InDelta(t, 0.75/1.5, scores["c4"], 1e-9)

	// Products already in the history are not boosted.
	results = engine.Recommend(anchor, catalog, []domain.Product{catalog[2]}, 10)
	for _, r := range results {
		if r.Product.ID == "c2" {
			assert.InDelta(t, 1.5/1.7, r.Score, 1e-9)
		}
	}
}

func TestEngine_HistoryBoostCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryBoost = 1
	engine := NewEngine(nil, nil, cfg)
	anchor, catalog := phoneCatalog()
	viewed := product("h1", "Acme Phone 8GB RAM 128GB Black", "electronics", "299")

	for _, r := range engine.Recommend(anchor, catalog, []domain.Product{viewed}, 10) {
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestEngine_EdgeCases(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor, catalog := phoneCatalog()

	assert.Empty(t, engine.Recommend(anchor, nil, nil, 5))
	assert.Empty(t, engine.Recommend(anchor, catalog, nil, 0))
	assert.Empty(t, engine.Recommend(anchor, catalog, nil, -1))
	assert.NotNil(t, engine.Recommend(anchor, nil, nil, 5))

	assert.Len(t, engine.Recommend(anchor, catalog, nil, 2), 2)

	// The anchor need not be part of the catalog.
	outside := product("z", "Acme Phone 8GB RAM 128GB", "electronics", "300")
	assert.Len(t, engine.Recommend(outside, catalog[1:], nil, 10), 4)

	// Nothing recognisable means nothing similar.
	plain := product("p", "Gift Card", "electronics", "300")
	assert.Empty(t, engine.Recommend(plain, catalog, nil, 10))
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor, catalog := phoneCatalog()
	history := []domain.Product{catalog[3]}

	first := engine.Recommend(anchor, catalog, history, 10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Recommend(anchor, catalog, history, 10))
	}

	// A fresh engine with a cold cache agrees.
	assert.Equal(t, first, NewEngine(nil, nil, DefaultConfig()).Recommend(anchor, catalog, history, 10))
}

func TestEngine_SimilarAndBetter(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	anchor, catalog := phoneCatalog()

	assert.Equal(t, []string{"c2", "c1"}, ids(engine.Similar(anchor, catalog, 2)))
	assert.Equal(t, []string{"c1"}, ids(engine.BetterAlternatives(anchor, catalog, 5)))
	assert.Empty(t, engine.BetterAlternatives(anchor, catalog, 0))
}

func TestEngine_Personalized(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	_, catalog := phoneCatalog()
	catalog[1] = rated(catalog[1], 4.5)
	catalog[2] = rated(catalog[2], 3.9)
	catalog[5] = rated(catalog[5], 4.8)

	t.Run("no history returns top rated", func(t *testing.T) {
		results := engine.Personalized(nil, catalog, 2)
		assert.Equal(t, []string{"x1", "c1"}, ids(results))
		assert.InDelta(t, 0.96, results[0].Score, 1e-9)
	})

	t.Run("history excludes viewed products", func(t *testing.T) {
		results := engine.Personalized([]domain.Product{catalog[0]}, catalog, 10)
		got := ids(results)
		assert.NotContains(t, got, "a")
		assert.NotContains(t, got, "x1", "other category scores zero")
		assert.Equal(t, "c2", got[0])
	})

	t.Run("k zero", func(t *testing.T) {
		assert.Empty(t, engine.Personalized(nil, catalog, 0))
	})
}

func TestEngine_Search(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())
	_, catalog := phoneCatalog()

	results := engine.Search("phone 16GB RAM", catalog, 4)
	assert.Equal(t, []string{"c4", "c1", "c3", "x1"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	assert.Empty(t, engine.Search("", catalog, 5))
	assert.Empty(t, engine.Search("the", catalog, 5))
	assert.Empty(t, engine.Search("phone", catalog, 0))
	assert.Empty(t, engine.Search("submarine", catalog, 5))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinSimilarity = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PremiumRatio = -0.1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HistoryBoost = 2
	assert.Error(t, cfg.Validate())
}
