package socialengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-socialengine/core"
)

// ModulePack groups provider modules a downstream package contributes.
type ModulePack struct {
	Name    string
	Modules []core.ProviderModule
}

// ListenerPack groups result listeners attached to every attempt.
type ListenerPack struct {
	Name      string
	Listeners []core.ResultListener
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	modulePacks   map[string]ModulePack
	listenerPacks map[string]ListenerPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		modulePacks:   map[string]ModulePack{},
		listenerPacks: map[string]ListenerPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterModulePack(pack ModulePack) error {
	if h == nil {
		return fmt.Errorf("socialengine: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("socialengine: module pack name is required")
	}
	if len(pack.Modules) == 0 {
		return fmt.Errorf("socialengine: module pack %q has no modules", name)
	}

	normalized := ModulePack{
		Name:    name,
		Modules: append([]core.ProviderModule(nil), pack.Modules...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.modulePacks[name]; exists {
		return fmt.Errorf("socialengine: module pack %q already registered", name)
	}
	h.modulePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterListenerPack(pack ListenerPack) error {
	if h == nil {
		return fmt.Errorf("socialengine: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("socialengine: listener pack name is required")
	}
	if len(pack.Listeners) == 0 {
		return fmt.Errorf("socialengine: listener pack %q has no listeners", name)
	}
	for _, listener := range pack.Listeners {
		if listener == nil {
			return fmt.Errorf("socialengine: listener pack %q contains nil listener", name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.listenerPacks[name]; exists {
		return fmt.Errorf("socialengine: listener pack %q already registered", name)
	}
	h.listenerPacks[name] = ListenerPack{
		Name:      name,
		Listeners: append([]core.ResultListener(nil), pack.Listeners...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("socialengine: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("socialengine: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("socialengine: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("socialengine: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyModulePacks registers every pack module, in pack name order.
func (h *ExtensionHooks) ApplyModulePacks(registry core.ModuleRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("socialengine: module registry is required")
	}

	for _, pack := range h.ModulePacks() {
		for _, module := range pack.Modules {
			if module == nil {
				return fmt.Errorf("socialengine: module pack %q contains nil module", pack.Name)
			}
			if err := registry.Register(module); err != nil {
				return fmt.Errorf("socialengine: module pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplyListenerPacks(orchestrator *core.Orchestrator) error {
	if h == nil {
		return nil
	}
	if orchestrator == nil {
		return fmt.Errorf("socialengine: orchestrator is required")
	}
	for _, pack := range h.ListenerPacks() {
		for _, listener := range pack.Listeners {
			orchestrator.AddResultListener(listener)
		}
	}
	return nil
}

// Options returns orchestrator options that install the registered module
// and listener packs.
func (h *ExtensionHooks) Options() []core.Option {
	if h == nil {
		return nil
	}
	var opts []core.Option
	for _, pack := range h.ModulePacks() {
		opts = append(opts, core.WithModules(pack.Modules...))
	}
	for _, pack := range h.ListenerPacks() {
		for _, listener := range pack.Listeners {
			opts = append(opts, core.WithResultListener(listener))
		}
	}
	return opts
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("socialengine: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("socialengine: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ModulePacks() []ModulePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.modulePacks))
	for name := range h.modulePacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ModulePack, 0, len(names))
	for _, name := range names {
		pack := h.modulePacks[name]
		out = append(out, ModulePack{
			Name:    pack.Name,
			Modules: append([]core.ProviderModule(nil), pack.Modules...),
		})
	}
	return out
}

func (h *ExtensionHooks) ListenerPacks() []ListenerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.listenerPacks))
	for name := range h.listenerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ListenerPack, 0, len(names))
	for _, name := range names {
		pack := h.listenerPacks[name]
		out = append(out, ListenerPack{
			Name:      pack.Name,
			Listeners: append([]core.ResultListener(nil), pack.Listeners...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
