package core

import (
	"context"
	"fmt"
	"sync"
)

type delivery struct {
	attempt AuthAttempt
	result  AuthResult
	ticket  *Ticket
}

// resultDispatcher delivers terminal results on a single goroutine, in the
// order attempts reached their terminal state. The queue is unbounded so a
// listener that starts a new attempt can never deadlock the dispatcher.
type resultDispatcher struct {
	mu       sync.Mutex
	queue    []delivery
	stopping bool
	wake     chan struct{}
	done     chan struct{}
	deliver  func(context.Context, delivery)
}

func newResultDispatcher(capacity int, deliver func(context.Context, delivery)) *resultDispatcher {
	d := &resultDispatcher{
		queue:   make([]delivery, 0, capacity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		deliver: deliver,
	}
	go d.run()
	return d
}

func (d *resultDispatcher) enqueue(item delivery) error {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return ErrOrchestratorClosed
	}
	d.queue = append(d.queue, item)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *resultDispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			stopping := d.stopping
			d.mu.Unlock()
			if stopping {
				return
			}
			<-d.wake
			continue
		}
		item := d.queue[0]
		d.queue[0] = delivery{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(ctx, item)
	}
}

// stop drains the queue and waits for the dispatcher goroutine to exit.
func (d *resultDispatcher) stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("core: dispatcher drain interrupted: %w", ctx.Err())
	}
}
