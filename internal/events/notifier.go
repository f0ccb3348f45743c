package events

import (
	"context"
	"sync"

	"github.com/nimasrn/donation-ledger/pkg/logger"
	"go.uber.org/multierr"
)

// Notifier is where stores and engines hand off what happened. Delivery
// failures are logged by the notifier and never bubble up to the write that
// produced the event.
type Notifier interface {
	Notify(ctx context.Context, evs ...Event)
}

type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

type nop struct{}

func (nop) Notify(context.Context, ...Event) {}

// Nop discards every event.
var Nop Notifier = nop{}

// OrNop returns n, or Nop when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop
	}
	return n
}

// Bus fans events out to in-process handlers, synchronously and in
// subscription order.
type Bus struct {
	mu     sync.RWMutex
	byType map[Type][]Handler
	all    []Handler
}

func NewBus() *Bus {
	return &Bus{byType: make(map[Type][]Handler)}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], h)
}

func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Dispatch runs every matching handler and returns their combined error.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.all)+len(b.byType[e.Type]))
	handlers = append(handlers, b.byType[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	var err error
	for _, h := range handlers {
		err = multierr.Append(err, h.Handle(ctx, e))
	}
	return err
}

func (b *Bus) Notify(ctx context.Context, evs ...Event) {
	for _, e := range evs {
		if err := b.Dispatch(ctx, e); err != nil {
			logger.Warn("event handler failed", "type", e.Type, "id", e.ID, "error", err)
		}
	}
}

// Publisher is the queue side of QueuePublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// QueuePublisher writes each event to a durable stream for the processor.
type QueuePublisher struct {
	pub Publisher
}

func NewQueuePublisher(pub Publisher) *QueuePublisher {
	return &QueuePublisher{pub: pub}
}

func (p *QueuePublisher) Notify(ctx context.Context, evs ...Event) {
	for _, e := range evs {
		if _, err := p.pub.PublishJSON(ctx, e, map[string]string{"type": string(e.Type), "event_id": e.ID}); err != nil {
			logger.Error("event publish failed", "type", e.Type, "id", e.ID, "error", err)
		}
	}
}

// Multi forwards to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evs ...Event) {
	for _, n := range m {
		n.Notify(ctx, evs...)
	}
}
