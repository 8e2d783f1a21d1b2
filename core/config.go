package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultAttemptTimeout        = 120 * time.Second
	defaultDispatchBuffer        = 64
	defaultServiceName           = "socialengine"
	defaultLoggerName            = "socialengine"
	maxAttemptTimeout            = 24 * time.Hour
	defaultOAuthStateTTLMultiple = 2
)

type AttemptConfig struct {
	Timeout        time.Duration `koanf:"timeout" mapstructure:"timeout"`
	DispatchBuffer int           `koanf:"dispatch_buffer" mapstructure:"dispatch_buffer"`
	HistoryEnabled bool          `koanf:"history_enabled" mapstructure:"history_enabled"`
}

type ProviderSettings struct {
	Scope   string        `koanf:"scope" mapstructure:"scope"`
	Fields  []string      `koanf:"fields" mapstructure:"fields"`
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type Config struct {
	ServiceName string                      `koanf:"service_name" mapstructure:"service_name"`
	Attempt     AttemptConfig               `koanf:"attempt" mapstructure:"attempt"`
	Providers   map[string]ProviderSettings `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Attempt: AttemptConfig{
			Timeout:        DefaultAttemptTimeout,
			DispatchBuffer: defaultDispatchBuffer,
			HistoryEnabled: true,
		},
		Providers: map[string]ProviderSettings{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Attempt.Timeout < 0 || c.Attempt.Timeout > maxAttemptTimeout {
		return fmt.Errorf("core: attempt.timeout must be between 0 and %s", maxAttemptTimeout)
	}
	if c.Attempt.DispatchBuffer < 0 {
		return fmt.Errorf("core: attempt.dispatch_buffer must be >= 0")
	}
	for id, settings := range c.Providers {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("core: provider id is required")
		}
		if _, err := ParseScope(settings.Scope); err != nil {
			return fmt.Errorf("core: providers.%s.scope: %w", id, err)
		}
		if settings.Timeout < 0 || settings.Timeout > maxAttemptTimeout {
			return fmt.Errorf("core: providers.%s.timeout must be between 0 and %s", id, maxAttemptTimeout)
		}
	}
	return nil
}

// ProviderConfig converts the settings stored for providerID into a
// ProviderConfig. The boolean is false when nothing is configured.
func (c Config) ProviderConfig(providerID string) (ProviderConfig, bool, error) {
	settings, ok := c.Providers[normalizeProviderID(providerID)]
	if !ok {
		return ProviderConfig{}, false, nil
	}
	scope, err := ParseScope(settings.Scope)
	if err != nil {
		return ProviderConfig{}, true, err
	}
	return ProviderConfig{
		Scope:           scope,
		RequestedFields: ParseFieldSet(settings.Fields),
		Timeout:         settings.Timeout,
	}.Normalize(), true, nil
}

func (c Config) ProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c Config) attemptTimeout() time.Duration {
	if c.Attempt.Timeout <= 0 {
		return DefaultAttemptTimeout
	}
	return c.Attempt.Timeout
}

func (c Config) dispatchBuffer() int {
	if c.Attempt.DispatchBuffer <= 0 {
		return defaultDispatchBuffer
	}
	return c.Attempt.DispatchBuffer
}

func normalizeProviderID(id string) string {
	return strings.TrimSpace(strings.ToLower(id))
}
