package core

import (
	"fmt"
	"sort"
	"sync"
)

type ProviderModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]ProviderModule
}

func NewModuleRegistry() *ProviderModuleRegistry {
	return &ProviderModuleRegistry{modules: make(map[string]ProviderModule)}
}

func (r *ProviderModuleRegistry) Register(module ProviderModule) error {
	if module == nil {
		return fmt.Errorf("core: provider module is nil")
	}
	id := normalizeProviderID(module.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.modules[id] = module
	return nil
}

func (r *ProviderModuleRegistry) Get(providerID string) (ProviderModule, bool) {
	id := normalizeProviderID(providerID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	module, ok := r.modules[id]
	r.mu.RUnlock()
	return module, ok
}

func (r *ProviderModuleRegistry) List() []ProviderModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.modules))
	for id := range r.modules {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	modules := make([]ProviderModule, 0, len(keys))
	for _, id := range keys {
		modules = append(modules, r.modules[id])
	}
	return modules
}

var _ ModuleRegistry = (*ProviderModuleRegistry)(nil)
