// Package ledger keeps donor and campaign totals in step with transaction
// status changes.
package ledger

import (
	"context"
	"time"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/prom"
	"github.com/pkg/errors"
)

// DonorTotals and CampaignTotals are single-statement adjustments; each call
// is atomic on its own row and nothing here locks around them.
type DonorTotals interface {
	CreditDonor(ctx context.Context, id, amount, tip int64, at time.Time) error
	DebitDonor(ctx context.Context, id, amount, tip int64, at time.Time) error
}

type CampaignTotals interface {
	CreditCampaign(ctx context.Context, id, amount int64, at time.Time) error
	DebitCampaign(ctx context.Context, id, amount int64, at time.Time) error
}

type Aggregator struct {
	donors    DonorTotals
	campaigns CampaignTotals
	now       func() time.Time
}

func NewAggregator(donors DonorTotals, campaigns CampaignTotals) *Aggregator {
	return &Aggregator{
		donors:    donors,
		campaigns: campaigns,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type direction string

const (
	credit direction = "credit"
	debit  direction = "debit"
)

// ApplyTransaction credits on entry to completed and debits when a
// completed transaction is refunded, cancelled or failed. Debits use the
// amounts recorded at completion. Other transitions only produce events.
func (a *Aggregator) ApplyTransaction(ctx context.Context, t *model.Transaction, from, to model.TransactionStatus) ([]events.Event, error) {
	if from == to {
		return nil, nil
	}

	switch {
	case to == model.TransactionStatusCompleted:
		if err := a.adjust(ctx, t, credit); err != nil {
			return nil, err
		}
	case from == model.TransactionStatusCompleted && to.Reverses():
		if err := a.adjust(ctx, t, debit); err != nil {
			return nil, err
		}
	}

	return []events.Event{
		events.Transition(events.TransactionStatusChanged, "transaction", t.ID, string(from), string(to), t),
		events.Transition(events.TransactionTransition(string(from), string(to)), "transaction", t.ID, string(from), string(to), t),
	}, nil
}

func (a *Aggregator) adjust(ctx context.Context, t *model.Transaction, dir direction) error {
	amount, tip := t.AggregateAmounts()
	at := a.now()

	var err error
	if dir == credit {
		err = a.donors.CreditDonor(ctx, t.DonorID, amount, tip, at)
	} else {
		err = a.donors.DebitDonor(ctx, t.DonorID, amount, tip, at)
	}
	if err != nil {
		return errors.Wrapf(err, "%s donor %d", dir, t.DonorID)
	}
	prom.AddAggregateAdjustment("donor", string(dir))

	if t.CampaignID != nil {
		if dir == credit {
			err = a.campaigns.CreditCampaign(ctx, *t.CampaignID, amount, at)
		} else {
			err = a.campaigns.DebitCampaign(ctx, *t.CampaignID, amount, at)
		}
		if err != nil {
			return errors.Wrapf(err, "%s campaign %d", dir, *t.CampaignID)
		}
		prom.AddAggregateAdjustment("campaign", string(dir))
	}

	logger.Debug("aggregates adjusted",
		"transaction_id", t.ID, "direction", dir, "amount", amount, "tip", tip,
		"donor_id", t.DonorID, "campaign_id", t.CampaignID)
	return nil
}

// ApplySubscription never touches totals; money moves with each renewal's
// transaction.
func (a *Aggregator) ApplySubscription(ctx context.Context, s *model.Subscription, from, to model.SubscriptionStatus) ([]events.Event, error) {
	if from == to {
		return nil, nil
	}
	return []events.Event{
		events.Transition(events.SubscriptionStatusChanged, "subscription", s.ID, string(from), string(to), s),
		events.Transition(events.SubscriptionTransition(string(from), string(to)), "subscription", s.ID, string(from), string(to), s),
	}, nil
}
