package provider

import (
	"sync"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"
)

type registryProviderImpl struct {
	source port.RegistryProvider
	logger port.Logger

	mu       sync.Mutex
	registry *entity.Registry
}

// NewRegistryProvider creates a RegistryProvider that loads the registry once and then serves
// it from memory. A failed load is not memoized.
func NewRegistryProvider(source port.RegistryProvider, logger port.Logger) port.RegistryProvider {
	return &registryProviderImpl{source: source, logger: logger}
}

// GetRegistry returns the validated registry.
func (p *registryProviderImpl) GetRegistry() (entity.Registry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registry != nil {
		return *p.registry, nil
	}
	p.logger.Debug("Loading address registry")
	reg, err := p.source.GetRegistry()
	if err != nil {
		p.logger.Error("Failed to load address registry", "error", err)
		return entity.Registry{}, err
	}
	if err := reg.Validate(); err != nil {
		p.logger.Error("Address registry is invalid", "error", err)
		return entity.Registry{}, err
	}
	p.registry = &reg
	p.logger.Info("Address registry loaded", "groups", len(reg.Groups), "addresses", reg.Size())
	return reg, nil
}
