package adapters

import (
	"sort"
	"strings"
	"sync"

	"github.com/smallbiznis/partnerpay/internal/payment/domain"
)

// Registry builds webhook adapters on first use and keeps them for the
// lifetime of the process. Each provider is configured once at startup.
type Registry struct {
	factories map[string]domain.AdapterFactory
	configs   map[string]domain.AdapterConfig

	mu       sync.Mutex
	adapters map[string]domain.WebhookAdapter
}

func NewRegistry(configs []domain.AdapterConfig, factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		configs:   map[string]domain.AdapterConfig{},
		adapters:  map[string]domain.WebhookAdapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	for _, cfg := range configs {
		provider := normalize(cfg.Provider)
		if provider == "" {
			continue
		}
		cfg.Provider = provider
		registry.configs[provider] = cfg
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for provider := range r.factories {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}

// Adapter returns the configured adapter for provider.
func (r *Registry) Adapter(provider string) (domain.WebhookAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if adapter, ok := r.adapters[provider]; ok {
		return adapter, nil
	}
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	adapter, err := factory.NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	r.adapters[provider] = adapter
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
