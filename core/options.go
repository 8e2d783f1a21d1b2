package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type orchestratorBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        ModuleRegistry
	modules         []ProviderModule
	attemptStore    AttemptStore
	listeners       []ResultListener
	now             func() time.Time
	newAttemptID    func() string
}

type Option func(*orchestratorBuilder)

func WithLogger(logger Logger) Option {
	return func(b *orchestratorBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *orchestratorBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *orchestratorBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *orchestratorBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *orchestratorBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *orchestratorBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRegistry(registry ModuleRegistry) Option {
	return func(b *orchestratorBuilder) {
		b.registry = registry
	}
}

// WithModules registers modules on the orchestrator's registry during
// construction.
func WithModules(modules ...ProviderModule) Option {
	return func(b *orchestratorBuilder) {
		b.modules = append(b.modules, modules...)
	}
}

func WithAttemptStore(store AttemptStore) Option {
	return func(b *orchestratorBuilder) {
		b.attemptStore = store
	}
}

func WithResultListener(listener ResultListener) Option {
	return func(b *orchestratorBuilder) {
		if listener != nil {
			b.listeners = append(b.listeners, listener)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *orchestratorBuilder) {
		b.now = now
	}
}

func WithAttemptIDGenerator(generator func() string) Option {
	return func(b *orchestratorBuilder) {
		b.newAttemptID = generator
	}
}

func defaultOrchestratorBuilder(runtime Config) orchestratorBuilder {
	loggerProvider, logger := glog.Resolve(defaultLoggerName, nil, nil)
	return orchestratorBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
		newAttemptID:    uuid.NewString,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return socialErrorMapper(err)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded configuration and runtime
// overrides, with later layers winning.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	attempt := map[string]any{}
	if includeZero || cfg.Attempt.Timeout > 0 {
		attempt["timeout"] = cfg.Attempt.Timeout
	}
	if includeZero || cfg.Attempt.DispatchBuffer > 0 {
		attempt["dispatch_buffer"] = cfg.Attempt.DispatchBuffer
	}
	if includeZero || cfg.Attempt.HistoryEnabled {
		attempt["history_enabled"] = cfg.Attempt.HistoryEnabled
	}
	if len(attempt) > 0 {
		layer["attempt"] = attempt
	}

	if includeZero || len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for id, settings := range cfg.Providers {
			id = normalizeProviderID(id)
			if id == "" {
				continue
			}
			entry := map[string]any{
				"scope":  settings.Scope,
				"fields": append([]string(nil), settings.Fields...),
			}
			if settings.Timeout > 0 {
				entry["timeout"] = settings.Timeout
			}
			providers[id] = entry
		}
		layer["providers"] = providers
	}
	return layer
}
