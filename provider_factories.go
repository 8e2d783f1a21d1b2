package socialengine

import (
	"fmt"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/inbound"
	"github.com/goliatone/go-socialengine/providers"
	"github.com/goliatone/go-socialengine/providers/github"
	"github.com/goliatone/go-socialengine/providers/google"
	"github.com/goliatone/go-socialengine/providers/linkedin"
)

func LinkedInModule(cfg linkedin.Config) (*providers.OAuth2Module, error) {
	return linkedin.New(cfg)
}

func GitHubModule(cfg github.Config) (*providers.OAuth2Module, error) {
	return github.New(cfg)
}

func GoogleModule(cfg google.Config) (*providers.OAuth2Module, error) {
	return google.New(cfg)
}

// NewLinkedIn builds a LinkedIn module and an orchestrator that owns it.
// The module is returned so callers can mount its callback handler.
func NewLinkedIn(cfg linkedin.Config, opts ...Option) (*Orchestrator, *providers.OAuth2Module, error) {
	module, err := linkedin.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, core.WithModules(module))
	orchestrator, err := core.NewOrchestrator(Config{}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return orchestrator, module, nil
}

func RegisterLinkedIn(registry ModuleRegistry, cfg linkedin.Config) (*providers.OAuth2Module, error) {
	return registerModule(registry, func() (*providers.OAuth2Module, error) { return linkedin.New(cfg) })
}

func RegisterGitHub(registry ModuleRegistry, cfg github.Config) (*providers.OAuth2Module, error) {
	return registerModule(registry, func() (*providers.OAuth2Module, error) { return github.New(cfg) })
}

func RegisterGoogle(registry ModuleRegistry, cfg google.Config) (*providers.OAuth2Module, error) {
	return registerModule(registry, func() (*providers.OAuth2Module, error) { return google.New(cfg) })
}

func registerModule(registry ModuleRegistry, build func() (*providers.OAuth2Module, error)) (*providers.OAuth2Module, error) {
	if registry == nil {
		return nil, fmt.Errorf("socialengine: module registry is required")
	}
	module, err := build()
	if err != nil {
		return nil, err
	}
	if err := registry.Register(module); err != nil {
		return nil, err
	}
	return module, nil
}

// NewCallbackDispatcher routes redirects for the given modules through one
// handler, deduplicating repeated deliveries of the same state.
func NewCallbackDispatcher(handlers ...inbound.CallbackHandler) (*inbound.Dispatcher, error) {
	dispatcher := inbound.NewDispatcher(nil, inbound.NewInMemoryClaimStore())
	for _, handler := range handlers {
		if err := dispatcher.Register(handler); err != nil {
			return nil, err
		}
	}
	return dispatcher, nil
}
