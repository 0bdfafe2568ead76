package adapters_test

import (
	"testing"

	"github.com/smallbiznis/hireboard/internal/payment/adapters"
	"github.com/smallbiznis/hireboard/internal/payment/adapters/stripe"
	"github.com/smallbiznis/hireboard/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesProvidersCaseInsensitively(t *testing.T) {
	registry := adapters.NewRegistry(nil, stripe.NewFactory())

	assert.True(t, registry.ProviderExists(" Stripe "))
	assert.False(t, registry.ProviderExists("paypal"))
	assert.Equal(t, []string{"stripe"}, registry.Providers())

	adapter, err := registry.NewAdapter("STRIPE", domain.AdapterConfig{
		Config: map[string]any{"webhook_secret": "whsec_test"},
	})
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	_, err = registry.NewAdapter("paypal", domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestNilRegistryHasNoProviders(t *testing.T) {
	var registry *adapters.Registry
	assert.False(t, registry.ProviderExists("stripe"))
	assert.Empty(t, registry.Providers())
}
