package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const (
	// MessagePrefix namespaces every message type the bus accepts.
	MessagePrefix = "social."

	QueueResolverKey = "social.queue"
)

// ValidateMessage enforces Type(), the social prefix and an optional
// Validate().
func ValidateMessage(msg any) error {
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if err := validateType(m.Type()); err != nil {
		return err
	}
	return command.ValidateMessage(msg)
}

func validateType(messageType string) error {
	messageType = strings.TrimSpace(messageType)
	if messageType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(messageType, MessagePrefix) {
		return fmt.Errorf("gocommand: message type %q must start with %q", messageType, MessagePrefix)
	}
	return nil
}

// Bus registers social handlers with a go-command registry and subscribes
// them to the process dispatcher. Close detaches everything it subscribed.
type Bus struct {
	registry *command.Registry

	mu   sync.Mutex
	subs []commanddispatcher.Subscription
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

func (b *Bus) AddResolver(key string, resolver command.Resolver) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// MirrorToQueue copies registered commands into a go-job queue registry on
// Initialize, so they can also run as queued jobs.
func (b *Bus) MirrorToQueue(queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.Initialize()
}

func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Unsubscribe()
	}
}

func (b *Bus) track(sub commanddispatcher.Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// releaseFrom unsubscribes everything tracked after mark.
func (b *Bus) releaseFrom(mark int) {
	b.mu.Lock()
	if mark > len(b.subs) {
		mark = len(b.subs)
	}
	released := b.subs[mark:]
	b.subs = b.subs[:mark]
	b.mu.Unlock()
	for i := len(released) - 1; i >= 0; i-- {
		released[i].Unsubscribe()
	}
}

func RegisterCommand[T command.Message](b *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	var zero T
	if err := validateType(zero.Type()); err != nil {
		return err
	}
	sub := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return err
	}
	b.track(sub)
	return nil
}

func RegisterQuery[T command.Message, R any](b *Bus, qry command.Querier[T, R], runnerOpts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	var zero T
	if err := validateType(zero.Type()); err != nil {
		return err
	}
	sub := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := b.registry.RegisterCommand(qry); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return err
	}
	b.track(sub)
	return nil
}

func Dispatch[T command.Message](ctx context.Context, msg T) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T command.Message, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessage(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
