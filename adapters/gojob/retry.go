package gojob

import (
	"strings"
	"time"

	"github.com/goliatone/go-socialengine/core"
)

const (
	defaultMaxAttempts = 5
	defaultMaxDelay    = time.Minute
	defaultRetryDelay  = 5 * time.Second
)

// RetryPolicy bounds how often a failed completion job is requeued.
// Once MaxAttempts handler failures are reached the job is dead-lettered
// when DeadLetterOnMax is set and dropped otherwise.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttempts,
		MaxDelay:        defaultMaxDelay,
		DeadLetterOnMax: true,
	}
}

// bounded fills unset limits from the defaults so a consumer never
// retries forever.
func (p RetryPolicy) bounded() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// Apply decides the nack for the given 1-based failure count.
func (p RetryPolicy) Apply(nack core.JobNackOptions, attempt int) core.JobNackOptions {
	nack.Reason = strings.TrimSpace(nack.Reason)
	nack.Delay = max(nack.Delay, 0)
	if p.MaxDelay > 0 {
		nack.Delay = min(nack.Delay, p.MaxDelay)
	}

	switch {
	case nack.DeadLetter:
		nack.Requeue = false
	case p.MaxAttempts > 0 && attempt >= p.MaxAttempts:
		nack.Requeue = false
		nack.DeadLetter = p.DeadLetterOnMax
	default:
		nack.Requeue = true
	}
	return nack
}
