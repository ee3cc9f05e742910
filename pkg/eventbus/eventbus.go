package eventbus

import (
	"context"
	"sync"
)

// Handler consumes one event. A returned error is reported to the bus's
// error hook and never reaches the publisher.
type Handler[T any] func(ctx context.Context, event T) error

type subscriber[T any] struct {
	name    string
	handler Handler[T]
}

// Bus provides in-process fan-out of typed events to named subscribers.
type Bus[T any] struct {
	mu      sync.RWMutex
	subs    []subscriber[T]
	onError func(name string, err error)
	wg      sync.WaitGroup
	closed  bool
}

// New creates a Bus. onError, if set, is called for every handler error or panic.
func New[T any](onError func(name string, err error)) *Bus[T] {
	return &Bus[T]{onError: onError}
}

// Subscribe registers handler under name. Names label errors and metrics.
func (b *Bus[T]) Subscribe(name string, handler Handler[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber[T]{name: name, handler: handler})
}

// Publish delivers event to every subscriber on its own goroutine and returns
// immediately. Events published after Close are dropped.
func (b *Bus[T]) Publish(ctx context.Context, event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	// Deliveries outlive the publishing request.
	ctx = context.WithoutCancel(ctx)
	for _, s := range b.subs {
		b.wg.Add(1)
		go func(s subscriber[T]) {
			defer b.wg.Done()
			b.deliver(ctx, s, event)
		}(s)
	}
}

// PublishSync delivers event to every subscriber in registration order.
func (b *Bus[T]) PublishSync(ctx context.Context, event T) {
	b.mu.RLock()
	subs := append([]subscriber[T](nil), b.subs...)
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	for _, s := range subs {
		b.deliver(ctx, s, event)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops accepting events and waits for in-flight deliveries until ctx is done.
func (b *Bus[T]) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus[T]) deliver(ctx context.Context, s subscriber[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			b.report(s.name, &PanicError{Value: r})
		}
	}()
	if err := s.handler(ctx, event); err != nil {
		b.report(s.name, err)
	}
}

func (b *Bus[T]) report(name string, err error) {
	if b.onError != nil {
		b.onError(name, err)
	}
}
