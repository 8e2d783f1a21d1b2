package core

import (
	"context"
	"sync"
)

// Ticket is the caller's handle on one authentication attempt. It resolves
// exactly once, from the orchestrator's dispatcher.
type Ticket struct {
	attempt AuthAttempt

	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	result AuthResult
}

func newTicket(attempt AuthAttempt) *Ticket {
	return &Ticket{
		attempt: attempt.Clone(),
		done:    make(chan struct{}),
	}
}

func (t *Ticket) AttemptID() string {
	if t == nil {
		return ""
	}
	return t.attempt.ID
}

func (t *Ticket) ProviderID() string {
	if t == nil {
		return ""
	}
	return t.attempt.ProviderID
}

// Attempt returns the attempt as it looked when authorization was handed
// to the provider.
func (t *Ticket) Attempt() AuthAttempt {
	if t == nil {
		return AuthAttempt{}
	}
	return t.attempt.Clone()
}

func (t *Ticket) Handoff() Handoff {
	if t == nil {
		return Handoff{}
	}
	return t.attempt.Handoff.Clone()
}

func (t *Ticket) Done() <-chan struct{} {
	if t == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return t.done
}

func (t *Ticket) Result() (AuthResult, bool) {
	if t == nil {
		return AuthResult{}, false
	}
	select {
	case <-t.done:
	default:
		return AuthResult{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result.Clone(), true
}

// Wait blocks until the attempt resolves or ctx is done. A ctx error does
// not affect the attempt itself.
func (t *Ticket) Wait(ctx context.Context) (AuthResult, error) {
	if t == nil {
		return AuthResult{}, ErrAttemptNotPending
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		result, _ := t.Result()
		return result, nil
	case <-ctx.Done():
		return AuthResult{}, ctx.Err()
	}
}

func (t *Ticket) resolve(result AuthResult) bool {
	resolved := false
	t.once.Do(func() {
		t.mu.Lock()
		t.result = result.Clone()
		t.mu.Unlock()
		close(t.done)
		resolved = true
	})
	return resolved
}
