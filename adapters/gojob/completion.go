package gojob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-socialengine/core"
)

const (
	JobIDAttemptCompleted      = "social.attempt.completed"
	ScriptPathAttemptCompleted = "social.attempt.completed"

	completionDedupPolicy = "drop"
)

// CompletionEvent is the queue payload describing one terminal attempt.
type CompletionEvent struct {
	AttemptID   string
	ProviderID  string
	Outcome     core.Outcome
	ErrorKind   core.ErrorKind
	Error       string
	Profile     map[string]any
	Metadata    map[string]any
	StartedAt   time.Time
	CompletedAt time.Time
}

func CompletionEventFromResult(result core.AuthResult) CompletionEvent {
	event := CompletionEvent{
		AttemptID:   result.AttemptID,
		ProviderID:  result.ProviderID,
		Outcome:     result.Outcome,
		ErrorKind:   result.ErrorKind,
		Metadata:    copyAnyMap(result.Metadata),
		StartedAt:   result.StartedAt.UTC(),
		CompletedAt: result.CompletedAt.UTC(),
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	if len(result.Profile) > 0 {
		event.Profile = make(map[string]any, len(result.Profile))
		for flag, value := range result.Profile {
			event.Profile[string(flag)] = value
		}
	}
	return event
}

// ExecutionMessage encodes the event with the attempt id as idempotency key
// so a republished result is dropped by the queue.
func (e CompletionEvent) ExecutionMessage() *core.JobExecutionMessage {
	params := map[string]any{
		"attempt_id":   e.AttemptID,
		"provider_id":  e.ProviderID,
		"outcome":      string(e.Outcome),
		"started_at":   e.StartedAt.Format(time.RFC3339Nano),
		"completed_at": e.CompletedAt.Format(time.RFC3339Nano),
	}
	if e.ErrorKind != core.ErrorKindNone {
		params["error_kind"] = string(e.ErrorKind)
	}
	if e.Error != "" {
		params["error"] = e.Error
	}
	if len(e.Profile) > 0 {
		params["profile"] = copyAnyMap(e.Profile)
		fields := make([]string, 0, len(e.Profile))
		for field := range e.Profile {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		params["profile_fields"] = fields
	}
	if len(e.Metadata) > 0 {
		params["metadata"] = copyAnyMap(e.Metadata)
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDAttemptCompleted,
		ScriptPath:     ScriptPathAttemptCompleted,
		Parameters:     params,
		IdempotencyKey: e.AttemptID,
		DedupPolicy:    completionDedupPolicy,
	}
}

func CompletionEventFromMessage(msg *core.JobExecutionMessage) (CompletionEvent, error) {
	if msg == nil {
		return CompletionEvent{}, fmt.Errorf("gojob: execution message is required")
	}
	if msg.JobID != JobIDAttemptCompleted {
		return CompletionEvent{}, fmt.Errorf("gojob: unexpected job %q", msg.JobID)
	}
	params := msg.Parameters
	event := CompletionEvent{
		AttemptID:  stringParam(params, "attempt_id"),
		ProviderID: stringParam(params, "provider_id"),
		Outcome:    core.Outcome(stringParam(params, "outcome")),
		ErrorKind:  core.ErrorKind(stringParam(params, "error_kind")),
		Error:      stringParam(params, "error"),
		Profile:    mapParam(params, "profile"),
		Metadata:   mapParam(params, "metadata"),
	}
	if event.AttemptID == "" {
		event.AttemptID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if event.AttemptID == "" {
		return CompletionEvent{}, fmt.Errorf("gojob: completion message has no attempt id")
	}
	var err error
	if event.StartedAt, err = timeParam(params, "started_at"); err != nil {
		return CompletionEvent{}, err
	}
	if event.CompletedAt, err = timeParam(params, "completed_at"); err != nil {
		return CompletionEvent{}, err
	}
	return event, nil
}

// CompletionEnqueuer is a result listener that enqueues every terminal
// result as a completion job.
type CompletionEnqueuer struct {
	enqueuer core.JobEnqueuer
	logger   glog.Logger
}

func NewCompletionEnqueuer(enqueuer core.JobEnqueuer, logger glog.Logger) *CompletionEnqueuer {
	if logger == nil {
		logger = glog.Nop()
	}
	return &CompletionEnqueuer{enqueuer: enqueuer, logger: logger}
}

func (p *CompletionEnqueuer) OnResult(ctx context.Context, result core.AuthResult) {
	if err := p.Publish(ctx, result); err != nil && p != nil && p.logger != nil {
		p.logger.Error("social completion enqueue failed",
			"attempt_id", result.AttemptID,
			"provider_id", result.ProviderID,
			"error", err.Error(),
		)
	}
}

func (p *CompletionEnqueuer) Publish(ctx context.Context, result core.AuthResult) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: completion enqueuer is not configured")
	}
	if strings.TrimSpace(result.AttemptID) == "" {
		return fmt.Errorf("gojob: result has no attempt id")
	}
	return p.enqueuer.Enqueue(ctx, CompletionEventFromResult(result).ExecutionMessage())
}

type CompletionHandler func(ctx context.Context, event CompletionEvent) error

// CompletionConsumer pulls completion jobs and hands them to a handler,
// acking on success and nacking under the retry policy otherwise.
type CompletionConsumer struct {
	dequeuer core.JobDequeuer
	handler  CompletionHandler
	policy   RetryPolicy
	retry    time.Duration
	logger   glog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

type ConsumerOption func(*CompletionConsumer)

// WithRetryPolicy replaces the default bounds. Unset limits keep their
// defaults.
func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *CompletionConsumer) { c.policy = policy.bounded() }
}

func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(c *CompletionConsumer) { c.retry = delay }
}

func WithConsumerLogger(logger glog.Logger) ConsumerOption {
	return func(c *CompletionConsumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCompletionConsumer(dequeuer core.JobDequeuer, handler CompletionHandler, opts ...ConsumerOption) *CompletionConsumer {
	consumer := &CompletionConsumer{
		dequeuer: dequeuer,
		handler:  handler,
		policy:   DefaultRetryPolicy(),
		retry:    defaultRetryDelay,
		logger:   glog.Nop(),
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

// ProcessNext handles a single delivery.
func (c *CompletionConsumer) ProcessNext(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.handler == nil {
		return fmt.Errorf("gojob: completion consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	event, err := CompletionEventFromMessage(msg)
	if err != nil {
		// Malformed payloads never succeed on retry.
		c.logger.Error("social completion payload rejected", "error", err.Error())
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	if handleErr := c.handler(ctx, event); handleErr != nil {
		attempt := c.bump(event.AttemptID)
		nack := c.policy.Apply(core.JobNackOptions{Delay: c.retry, Requeue: true, Reason: handleErr.Error()}, attempt)
		if !nack.Requeue {
			c.forget(event.AttemptID)
			c.logger.Warn("social completion retries exhausted",
				"attempt_id", event.AttemptID,
				"attempts", attempt,
				"dead_letter", nack.DeadLetter,
				"error", handleErr.Error(),
			)
		}
		return delivery.Nack(ctx, nack)
	}
	c.forget(event.AttemptID)
	return delivery.Ack(ctx)
}

// Run processes deliveries until ctx is done.
func (c *CompletionConsumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("social completion processing failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *CompletionConsumer) bump(attemptID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[attemptID]++
	return c.attempts[attemptID]
}

func (c *CompletionConsumer) forget(attemptID string) {
	c.mu.Lock()
	delete(c.attempts, attemptID)
	c.mu.Unlock()
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func mapParam(params map[string]any, key string) map[string]any {
	value, ok := params[key].(map[string]any)
	if !ok || len(value) == 0 {
		return nil
	}
	return copyAnyMap(value)
}

func timeParam(params map[string]any, key string) (time.Time, error) {
	raw := stringParam(params, key)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("gojob: invalid %s: %w", key, err)
	}
	return parsed, nil
}

var _ core.ResultListener = (*CompletionEnqueuer)(nil)
