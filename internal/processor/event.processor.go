package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/idempotency"
	"github.com/nimasrn/donation-ledger/internal/queue"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/prom"
)

// ErrSkipped marks a message that was acked without running handlers.
var ErrSkipped = errors.New("event skipped")

type Dispatcher interface {
	Dispatch(ctx context.Context, e events.Event) error
}

// EventProcessor decodes ledger events off the stream and dispatches each
// one at most once per event id.
type EventProcessor struct {
	dispatcher  Dispatcher
	idempotency *idempotency.Service
}

func NewEventProcessor(dispatcher Dispatcher, idem *idempotency.Service) *EventProcessor {
	return &EventProcessor{dispatcher: dispatcher, idempotency: idem}
}

func (p *EventProcessor) GetType() string {
	return "ledger-event"
}

func (p *EventProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var e events.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil || e.ID == "" {
		// undecodable payloads never succeed on retry
		logger.Error("dropping malformed event", "message_id", msg.ID, "error", err)
		prom.AddEventProcessed("unknown", "malformed")
		return ErrSkipped
	}

	attempt, err := p.idempotency.Acquire(ctx, e.ID)
	switch {
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		prom.AddEventProcessed(string(e.Type), "duplicate")
		return ErrSkipped
	case errors.Is(err, idempotency.ErrMaxRetriesExceeded):
		logger.Error("event gave up after retries", "event_id", e.ID, "type", e.Type)
		prom.AddEventProcessed(string(e.Type), "exhausted")
		return ErrSkipped
	case errors.Is(err, idempotency.ErrLockAcquireFailed):
		return fmt.Errorf("event %s is held by another worker", e.ID)
	case err != nil:
		return err
	}
	defer func() { _ = p.idempotency.Release(ctx, attempt) }()

	if err := p.dispatcher.Dispatch(ctx, e); err != nil {
		_ = p.idempotency.MarkFailure(ctx, attempt, err)
		prom.AddEventProcessed(string(e.Type), "failed")
		return fmt.Errorf("dispatch %s: %w", e.Type, err)
	}

	if err := p.idempotency.MarkSuccess(ctx, attempt, nil); err != nil {
		logger.Error("failed to mark event processed", "event_id", e.ID, "error", err)
	}
	prom.AddEventProcessed(string(e.Type), "ok")
	logger.Debug("event processed", "event_id", e.ID, "type", e.Type, "attempt", attempt.RetryCount+1)
	return nil
}

// AuditHandler writes every ledger event to the log.
func AuditHandler() events.Handler {
	return events.HandlerFunc(func(_ context.Context, e events.Event) error {
		logger.Info("ledger event",
			"event_id", e.ID,
			"type", e.Type,
			"entity", e.Entity,
			"entity_id", e.EntityID,
			"from", e.From,
			"to", e.To,
			"occurred_at", e.OccurredAt)
		return nil
	})
}
