package conflict

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync-engine/internal/domain"
)

func TestParsePolicy_Overrides(t *testing.T) {
	doc := []byte(`
recency_window: 2m
primary_catalog_source: magento
source_priority:
  default: [woocommerce, shopify]
  product: [shopify, woocommerce]
sensitive_fields:
  customer: [email]
validation:
  product:
    price: gt=0
`)
	p, err := ParsePolicy(doc)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, p.RecencyWindow)
	assert.Equal(t, []string{"magento", "shopify", "woocommerce"}, p.priorityList(domain.EntityProduct))
	assert.Equal(t, []string{"woocommerce", "shopify"}, p.priorityList(domain.EntityCustomer))
	assert.True(t, p.isSensitive(domain.EntityCustomer, "email"))
	assert.False(t, p.isSensitive(domain.EntityOrder, "total"))
	assert.Equal(t, "gt=0", p.Validation[domain.EntityProduct]["price"])
}

func TestParsePolicy_EmptyKeepsDefaults(t *testing.T) {
	p, err := ParsePolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestParsePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad duration", "recency_window: soon"},
		{"negative duration", "recency_window: -1m"},
		{"unknown rule", "validation:\n  product:\n    price: not_a_rule"},
		{"bad yaml", "source_priority: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recency_window: 30s\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.RecencyWindow)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRank_UnknownPlatformLast(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 0, p.rank(domain.EntityProduct, "shopify"))
	assert.Equal(t, len(p.priorityList(domain.EntityProduct)), p.rank(domain.EntityProduct, "etsy"))
}

func TestWinner_Tiebreaks(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	assert.Equal(t, "b-shop", r.winner(domain.EntityProduct, "a-shop", t0, "b-shop", t0.Add(time.Second)))
	assert.Equal(t, "a-shop", r.winner(domain.EntityProduct, "b-shop", t0, "a-shop", t0))
	assert.Equal(t, "shopify", r.winner(domain.EntityProduct, "etsy", t0.Add(time.Hour), "shopify", t0))
}

func TestLoadPolicy_SampleFile(t *testing.T) {
	p, err := LoadPolicy(filepath.Join("..", "..", "config", "sync-policy.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, p.RecencyWindow)
	assert.Equal(t, []string{"magento", "shopify", "woocommerce", "custom"}, p.SourcePriority[domain.EntityCustomer])
	assert.True(t, p.isSensitive(domain.EntityOrder, "total"))
	assert.Equal(t, "gte=0", p.Validation[domain.EntityProduct]["price"])
}
