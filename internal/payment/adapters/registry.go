package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/hireboard/internal/payment/domain"
)

// Registry maps a webhook path segment (/api/payments/webhooks/:provider)
// to the factory that verifies and parses that gateway's events.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	r := &Registry{factories: make(map[string]domain.AdapterFactory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		if key := providerKey(f.Provider()); key != "" {
			r.factories[key] = f
		}
	}
	return r
}

func (r *Registry) ProviderExists(provider string) bool {
	_, ok := r.lookup(provider)
	return ok
}

// Providers lists registered gateways in name order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for key := range r.factories {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	f, ok := r.lookup(provider)
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg.Provider = providerKey(provider)
	return f.NewAdapter(cfg)
}

func (r *Registry) lookup(provider string) (domain.AdapterFactory, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.factories[providerKey(provider)]
	return f, ok
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
