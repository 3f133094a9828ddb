package selector

import (
	"context"
	"testing"

	apperrors "sjsage522/srpauditor/pkg/errors"
	"sjsage522/srpauditor/services/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records reads so tests can assert on session caching
type countingStore struct {
	*store.MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, key)
}

func TestNormalizeHost(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{"https://www.Dealer.com/used-inventory?page=2", "dealer.com"},
		{"http://shop.dealer.com:8080", "shop.dealer.com"},
		{"www.dealer.com", "dealer.com"},
		{"dealer.com/new", "dealer.com"},
		{"global", "global"},
		{"", ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, NormalizeHost(tc.in), tc.in)
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, "selectors:global", []byte(`{"vehicleCard":".global-card"}`)))
	require.NoError(t, s.Set(ctx, "selectors:dealer.com", []byte(`{"vehicleCard":".dealer-card","model":".m"}`)))

	r := NewRegistry(s)

	cfg, err := r.Resolve(ctx, "https://www.dealer.com/inventory")
	require.NoError(t, err)
	assert.Equal(t, ".dealer-card", cfg.Get(KeyVehicleCard))

	cfg, err = r.Resolve(ctx, "other.com")
	require.NoError(t, err)
	assert.Equal(t, ".global-card", cfg.Get(KeyVehicleCard))

	empty := NewRegistry(store.NewMemoryStore())
	cfg, err = empty.Resolve(ctx, "other.com")
	require.NoError(t, err)
	assert.Empty(t, cfg)
}

func TestResolveCachesUntilSave(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{MemoryStore: store.NewMemoryStore()}
	r := NewRegistry(s)

	require.NoError(t, r.Save(ctx, "dealer.com", Config{KeyVehicleCard: ".a"}))
	_, err := r.Resolve(ctx, "dealer.com")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "www.dealer.com")
	require.NoError(t, err)
	assert.Equal(t, 1, s.gets, "second resolve must come from the session cache")

	// Mutating the returned config does not leak into the cache
	cfg, _ := r.Resolve(ctx, "dealer.com")
	cfg[KeyVehicleCard] = ".mutated"
	cfg, _ = r.Resolve(ctx, "dealer.com")
	assert.Equal(t, ".a", cfg.Get(KeyVehicleCard))

	require.NoError(t, r.Save(ctx, "dealer.com", Config{KeyVehicleCard: ".b"}))
	cfg, err = r.Resolve(ctx, "dealer.com")
	require.NoError(t, err)
	assert.Equal(t, ".b", cfg.Get(KeyVehicleCard))
}

func TestResolveRejectsMalformedConfig(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, "selectors:dealer.com", []byte(`["not","an","object"]`)))

	_, err := NewRegistry(s).Resolve(ctx, "dealer.com")
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestRequireMissingVehicleCard(t *testing.T) {
	err := Require("dealer.com", Config{KeyStockNumber: ".stock"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), KeyVehicleCard)

	err = Require("dealer.com", Config{KeyVehicleCard: ".card"}, KeyStockNumber)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyStockNumber)

	assert.NoError(t, Require("dealer.com", Config{KeyVehicleCard: ".card", KeyStockNumber: ".s"}, KeyStockNumber))
}

func TestFieldKeysAndTraversalDefaults(t *testing.T) {
	cfg := Config{
		KeyVehicleCard: ".card",
		KeyModel:       ".model",
		KeyStockNumber: ".stock",
		"price":        ".price",
		"empty":        "  ",
		KeyNextPage:    "a.next",
	}

	assert.Equal(t, []string{"model", "price", "stockNumber"}, cfg.FieldKeys())
	assert.Equal(t, "a.next", cfg.Traversal(KeyNextPage))
	assert.Equal(t, DefaultTraversal[KeyLoadMore], cfg.Traversal(KeyLoadMore))
}
