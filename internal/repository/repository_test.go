package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Notify(_ context.Context, evs ...events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evs...)
}

func (n *recordingNotifier) types() []events.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Type, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

type transition struct {
	from, to string
}

type stubLedger struct {
	mu            sync.Mutex
	transactions  []transition
	subscriptions []transition
	err           error
}

func (l *stubLedger) ApplyTransaction(_ context.Context, t *model.Transaction, from, to model.TransactionStatus) ([]events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = append(l.transactions, transition{string(from), string(to)})
	return []events.Event{events.New(events.TransactionStatusChanged, "transaction", t.ID, nil)}, l.err
}

func (l *stubLedger) ApplySubscription(_ context.Context, s *model.Subscription, from, to model.SubscriptionStatus) ([]events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscriptions = append(l.subscriptions, transition{string(from), string(to)})
	return nil, l.err
}

func ptr[T any](v T) *T { return &v }

func createDonor(t *testing.T, repo *DonorRepository, email string) *model.Donor {
	t.Helper()
	d := model.NewDonor(email, "Ada", "Lovelace")
	_, err := repo.Create(context.Background(), d)
	require.NoError(t, err)
	return d
}
