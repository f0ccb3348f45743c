package repository

import (
	"context"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var transactionColumns = baseColumns.with(columns{
	"status":       "status",
	"amount":       "amount",
	"total_amount": "total_amount",
	"completed_at": "completed_at",
	"donor_id":     "donor_id",
	"campaign_id":  "campaign_id",
})

type TransactionRepository struct {
	recordStore[TransactionEntity]
	ledger TransactionLedger
}

func NewTransactionRepository(db *pg.DB, ledger TransactionLedger, notifier events.Notifier) *TransactionRepository {
	return &TransactionRepository{
		recordStore: newRecordStore[TransactionEntity](db, "transaction", transactionColumns, notifier),
		ledger:      ledger,
	}
}

// Create stores a new transaction as given. Creating one directly in
// completed does not credit the aggregates; only Update does.
func (r *TransactionRepository) Create(ctx context.Context, t *model.Transaction) (int64, error) {
	t.Currency = model.NormalizeCurrency(t.Currency)
	if err := t.Validate(); err != nil {
		return 0, err
	}
	e := toTransactionEntity(t)
	e.Stamp(timeNow())
	if err := r.insert(ctx, e); err != nil {
		return 0, err
	}
	*t = *toTransactionModel(e)
	r.created(ctx, events.TransactionCreated, e.ID, t)
	return e.ID, nil
}

func (r *TransactionRepository) Read(ctx context.Context, id int64) (*model.Transaction, error) {
	e, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTransactionModel(e), nil
}

func (r *TransactionRepository) FindByGatewayID(ctx context.Context, gatewayID string) (*model.Transaction, error) {
	var e TransactionEntity
	err := r.DB.Read(ctx).Where("gateway_transaction_id = ?", gatewayID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewNotFoundError("transaction", gatewayID)
		}
		return nil, model.NewPersistenceError("find transaction by gateway id", err)
	}
	return toTransactionModel(&e), nil
}

// Update persists t and, when the status moved, hands the transition to the
// ledger in the same database transaction. Entering completed freezes the
// credited amount and tip; any other write keeps the stored snapshot.
func (r *TransactionRepository) Update(ctx context.Context, t *model.Transaction) error {
	t.Currency = model.NormalizeCurrency(t.Currency)
	if err := t.Validate(); err != nil {
		return err
	}

	var pending []events.Event
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := r.findForUpdate(ctx, t.ID)
		if err != nil {
			return err
		}
		from := model.TransactionStatus(old.Status)
		now := timeNow()

		e := toTransactionEntity(t)
		e.CreatedAt = old.CreatedAt
		e.ModifiedAt = now
		if from != model.TransactionStatusCompleted && t.Status == model.TransactionStatusCompleted {
			amount, tip := t.Amount, t.TipAmount
			e.CompletedAmount, e.CompletedTip = &amount, &tip
			if e.CompletedAt == nil {
				e.CompletedAt = &now
			}
		} else {
			e.CompletedAmount, e.CompletedTip = old.CompletedAmount, old.CompletedTip
		}
		if t.Status == model.TransactionStatusRefunded && e.RefundedAt == nil {
			e.RefundedAt = &now
		}

		if err := r.save(ctx, e); err != nil {
			return err
		}
		*t = *toTransactionModel(e)

		if from == t.Status || r.ledger == nil {
			return nil
		}
		pending, err = r.ledger.ApplyTransaction(ctx, t, from, t.Status)
		return err
	})
	if err != nil {
		return err
	}
	r.notifier.Notify(ctx, pending...)
	return nil
}

func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	return r.remove(ctx, id)
}

func (r *TransactionRepository) Query(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, error) {
	rows, err := r.list(ctx, r.filter(ctx, f), f.Page)
	if err != nil {
		return nil, err
	}
	return toTransactionModels(rows), nil
}

func (r *TransactionRepository) Count(ctx context.Context, f model.TransactionFilter) (int64, error) {
	return r.count(r.filter(ctx, f))
}

func (r *TransactionRepository) filter(ctx context.Context, f model.TransactionFilter) *gorm.DB {
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
	if f.SubscriptionID != nil {
		q = q.Where("subscription_id = ?", *f.SubscriptionID)
	}
	if f.SourceID != nil {
		q = q.Where("source_id = ?", *f.SourceID)
	}
	return applySearch(q, f.Search, "gateway_transaction_id")
}

func statusStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
