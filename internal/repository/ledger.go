package repository

import (
	"context"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
)

// TransactionLedger is called by TransactionRepository.Update when the stored
// status differs from the new one. It runs inside the update's database
// transaction; the events it returns are published after commit.
type TransactionLedger interface {
	ApplyTransaction(ctx context.Context, t *model.Transaction, from, to model.TransactionStatus) ([]events.Event, error)
}

type SubscriptionLedger interface {
	ApplySubscription(ctx context.Context, s *model.Subscription, from, to model.SubscriptionStatus) ([]events.Event, error)
}
