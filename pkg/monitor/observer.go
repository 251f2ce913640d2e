package monitor

import (
	"sync"
)

// Observer receives record-set change notifications. Implementations must be
// comparable (pointer receivers are the norm) so subscriptions can be
// deduplicated and removed by identity.
type Observer interface {
	RecordsUpdated(records []*Record)
}

// FuncObserver adapts a plain function into an Observer with a stable
// identity, so the same instance can later be unsubscribed.
type FuncObserver struct {
	fn func(records []*Record)
}

// NewFuncObserver wraps fn into an Observer.
func NewFuncObserver(fn func(records []*Record)) *FuncObserver {
	return &FuncObserver{fn: fn}
}

// RecordsUpdated invokes the wrapped function.
func (o *FuncObserver) RecordsUpdated(records []*Record) {
	o.fn(records)
}

// observerBus fans record-set change notifications out to subscribers.
// Delivery happens outside the store's critical section, after the mutation
// is visible to reads; delivery order across subscribers is unspecified.
type observerBus struct {
	mu        sync.Mutex
	observers []Observer
}

func newObserverBus() *observerBus {
	return &observerBus{}
}

// subscribe registers an observer. Re-subscribing the same observer is a
// no-op.
func (b *observerBus) subscribe(observer Observer) {
	if observer == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.observers {
		if existing == observer {
			return
		}
	}

	b.observers = append(b.observers, observer)
}

// unsubscribe removes an observer by identity.
func (b *observerBus) unsubscribe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.observers {
		if existing == observer {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

// notify delivers the record snapshot to every subscriber.
func (b *observerBus) notify(records []*Record) {
	b.mu.Lock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.Unlock()

	for _, observer := range observers {
		observer.RecordsUpdated(records)
	}
}
