package llm

import (
	"fmt"
	"sync"

	llmprovider "github.com/haowjy/meridian-llm-go"
)

// ProviderRegistry caches provider instances so each provider client is built once.
type ProviderRegistry struct {
	factory ProviderLookup
	cache   map[string]llmprovider.Provider
	mu      sync.RWMutex
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(factory ProviderLookup) *ProviderRegistry {
	return &ProviderRegistry{
		factory: factory,
		cache:   make(map[string]llmprovider.Provider),
	}
}

// GetProvider returns the cached provider for the name, creating it on first use.
// Creation failures are not cached, so a missing key can be fixed without a restart
// of the registry.
func (r *ProviderRegistry) GetProvider(provider string) (llmprovider.Provider, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}

	r.mu.RLock()
	if cached, exists := r.cache[provider]; exists {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock
	if cached, exists := r.cache[provider]; exists {
		return cached, nil
	}

	created, err := r.factory.GetProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider '%s': %w", provider, err)
	}
	r.cache[provider] = created

	return created, nil
}

// Validate checks if the factory is properly configured.
// Should be called at startup to fail fast if misconfigured.
func (r *ProviderRegistry) Validate() error {
	if r.factory == nil {
		return fmt.Errorf("provider factory is not configured")
	}
	return nil
}
