package persistence

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ProviderConfig selects a persistence backend and carries its settings.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// PluginFactory creates persistence plugins from configuration.
type PluginFactory func(config json.RawMessage) (Plugin, error)

var (
	registry = make(map[string]PluginFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a persistence plugin factory for a provider type.
func RegisterProvider(providerType string, factory PluginFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// NewPersistence creates a persistence plugin from provider configuration.
func NewPersistence(cfg ProviderConfig) (Plugin, error) {
	mu.RLock()
	factory, ok := registry[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown persistence provider type: %s", cfg.Type)
	}
	return factory(cfg.Config)
}

// ListProviders returns registered provider types.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	return providers
}
