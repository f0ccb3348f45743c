package repository

import (
	"context"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"gorm.io/gorm"
)

var subscriptionColumns = baseColumns.with(columns{
	"status":            "status",
	"amount":            "amount",
	"frequency":         "frequency",
	"date_next_renewal": "date_next_renewal",
	"renewal_count":     "renewal_count",
})

type SubscriptionRepository struct {
	recordStore[SubscriptionEntity]
	ledger SubscriptionLedger
}

func NewSubscriptionRepository(db *pg.DB, ledger SubscriptionLedger, notifier events.Notifier) *SubscriptionRepository {
	return &SubscriptionRepository{
		recordStore: newRecordStore[SubscriptionEntity](db, "subscription", subscriptionColumns, notifier),
		ledger:      ledger,
	}
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *model.Subscription) (int64, error) {
	s.Currency = model.NormalizeCurrency(s.Currency)
	if err := s.Validate(); err != nil {
		return 0, err
	}
	e := toSubscriptionEntity(s)
	e.Stamp(timeNow())
	if err := r.insert(ctx, e); err != nil {
		return 0, err
	}
	*s = *toSubscriptionModel(e)
	r.created(ctx, events.SubscriptionCreated, e.ID, s)
	return e.ID, nil
}

func (r *SubscriptionRepository) Read(ctx context.Context, id int64) (*model.Subscription, error) {
	e, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSubscriptionModel(e), nil
}

// Update stamps the cancellation and expiry dates on entry to those states
// and reports status changes to the ledger.
func (r *SubscriptionRepository) Update(ctx context.Context, s *model.Subscription) error {
	s.Currency = model.NormalizeCurrency(s.Currency)
	if err := s.Validate(); err != nil {
		return err
	}

	var pending []events.Event
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := r.findForUpdate(ctx, s.ID)
		if err != nil {
			return err
		}
		from := model.SubscriptionStatus(old.Status)
		now := timeNow()

		e := toSubscriptionEntity(s)
		e.CreatedAt = old.CreatedAt
		e.ModifiedAt = now
		if s.Status == model.SubscriptionStatusCancelled && e.DateCancelled == nil {
			e.DateCancelled = &now
		}
		if s.Status == model.SubscriptionStatusExpired && e.DateExpired == nil {
			e.DateExpired = &now
		}
		if err := r.save(ctx, e); err != nil {
			return err
		}
		*s = *toSubscriptionModel(e)

		if from == s.Status || r.ledger == nil {
			return nil
		}
		pending, err = r.ledger.ApplySubscription(ctx, s, from, s.Status)
		return err
	})
	if err != nil {
		return err
	}
	r.notifier.Notify(ctx, pending...)
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id int64) error {
	return r.remove(ctx, id)
}

func (r *SubscriptionRepository) Query(ctx context.Context, f model.SubscriptionFilter) ([]*model.Subscription, error) {
	rows, err := r.list(ctx, r.filter(ctx, f), f.Page)
	if err != nil {
		return nil, err
	}
	return toSubscriptionModels(rows), nil
}

func (r *SubscriptionRepository) Count(ctx context.Context, f model.SubscriptionFilter) (int64, error) {
	return r.count(r.filter(ctx, f))
}

func (r *SubscriptionRepository) filter(ctx context.Context, f model.SubscriptionFilter) *gorm.DB {
	q := applyDateRange(r.query(ctx), f.DateRange)
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(f.Statuses))
	}
	if f.DonorID != nil {
		q = q.Where("donor_id = ?", *f.DonorID)
	}
	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.Frequency != "" {
		q = q.Where("frequency = ?", string(f.Frequency))
	}
	return q
}
