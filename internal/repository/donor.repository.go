package repository

import (
	"context"
	"time"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var donorColumns = baseColumns.with(columns{
	"email":             "email",
	"first_name":        "first_name",
	"last_name":         "last_name",
	"name":              "last_name",
	"total_donated":     "total_donated",
	"total_tip":         "total_tip",
	"transaction_count": "transaction_count",
	"last_transaction":  "last_transaction_at",
})

type DonorRepository struct {
	recordStore[DonorEntity]
}

func NewDonorRepository(db *pg.DB, notifier events.Notifier) *DonorRepository {
	return &DonorRepository{newRecordStore[DonorEntity](db, "donor", donorColumns, notifier)}
}

func (r *DonorRepository) Create(ctx context.Context, d *model.Donor) (int64, error) {
	d.Email = model.NormalizeEmail(d.Email)
	if err := d.Validate(); err != nil {
		return 0, err
	}
	e := toDonorEntity(d)
	e.Stamp(timeNow())
	if err := r.insert(ctx, e); err != nil {
		return 0, err
	}
	*d = *toDonorModel(e)
	r.created(ctx, events.DonorCreated, e.ID, d)
	return e.ID, nil
}

func (r *DonorRepository) Read(ctx context.Context, id int64) (*model.Donor, error) {
	e, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDonorModel(e), nil
}

func (r *DonorRepository) FindByEmail(ctx context.Context, email string) (*model.Donor, error) {
	email = model.NormalizeEmail(email)
	var e DonorEntity
	err := r.DB.Read(ctx).Where("email = ?", email).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewNotFoundError("donor", email)
		}
		return nil, model.NewPersistenceError("find donor by email", err)
	}
	return toDonorModel(&e), nil
}

// FirstOrCreate returns the donor with d's email, creating it from d when
// absent. A concurrent insert of the same email loses to the unique index
// and is resolved by reading the winner.
func (r *DonorRepository) FirstOrCreate(ctx context.Context, d *model.Donor) (*model.Donor, bool, error) {
	existing, err := r.FindByEmail(ctx, d.Email)
	if err == nil {
		return existing, false, nil
	}
	if !model.IsNotFound(err) {
		return nil, false, err
	}

	if _, err := r.Create(ctx, d); err != nil {
		if model.IsKind(err, model.KindValidation) {
			return nil, false, err
		}
		if existing, findErr := r.FindByEmail(ctx, d.Email); findErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return d, true, nil
}

// Update writes the profile fields. Aggregates are owned by the ledger
// engine and are kept as stored.
func (r *DonorRepository) Update(ctx context.Context, d *model.Donor) error {
	d.Email = model.NormalizeEmail(d.Email)
	if err := d.Validate(); err != nil {
		return err
	}
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := r.findForUpdate(ctx, d.ID)
		if err != nil {
			return err
		}
		e := toDonorEntity(d)
		e.TotalDonated = old.TotalDonated
		e.TotalTip = old.TotalTip
		e.TransactionCount = old.TransactionCount
		e.FirstTransactionAt = old.FirstTransactionAt
		e.LastTransactionAt = old.LastTransactionAt
		e.CreatedAt = old.CreatedAt
		e.ModifiedAt = timeNow()
		if err := r.save(ctx, e); err != nil {
			return err
		}
		*d = *toDonorModel(e)
		return nil
	})
}

func (r *DonorRepository) Delete(ctx context.Context, id int64) error {
	return r.remove(ctx, id)
}

func (r *DonorRepository) Query(ctx context.Context, f model.DonorFilter) ([]*model.Donor, error) {
	rows, err := r.list(ctx, r.filter(ctx, f), f.Page)
	if err != nil {
		return nil, err
	}
	return toDonorModels(rows), nil
}

func (r *DonorRepository) Count(ctx context.Context, f model.DonorFilter) (int64, error) {
	return r.count(r.filter(ctx, f))
}

func (r *DonorRepository) filter(ctx context.Context, f model.DonorFilter) *gorm.DB {
	q := applyDateRange(r.query(ctx), f.DateRange)
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	return applySearch(q, f.Search, "email", "first_name", "last_name")
}

// CreditDonor adds one completed transaction to the donor's lifetime totals
// in a single statement.
func (r *DonorRepository) CreditDonor(ctx context.Context, id, amount, tip int64, at time.Time) error {
	res := r.Write(ctx).Model(&DonorEntity{}).Where("id = ?", id).Updates(map[string]any{
		"total_donated":        gorm.Expr("total_donated + ?", amount),
		"total_tip":            gorm.Expr("total_tip + ?", tip),
		"transaction_count":    gorm.Expr("transaction_count + 1"),
		"first_transaction_at": gorm.Expr("COALESCE(first_transaction_at, ?)", at),
		"last_transaction_at":  at,
		"modified_at":          at,
	})
	return r.adjusted(res, id, "credit")
}

// DebitDonor reverses a credit, flooring every total at zero.
func (r *DonorRepository) DebitDonor(ctx context.Context, id, amount, tip int64, at time.Time) error {
	res := r.Write(ctx).Model(&DonorEntity{}).Where("id = ?", id).Updates(map[string]any{
		"total_donated":     floorSub("total_donated", amount),
		"total_tip":         floorSub("total_tip", tip),
		"transaction_count": floorSub("transaction_count", 1),
		"modified_at":       at,
	})
	return r.adjusted(res, id, "debit")
}

func (r *DonorRepository) adjusted(res *gorm.DB, id int64, direction string) error {
	if res.Error != nil {
		return model.NewPersistenceError(direction+" donor totals", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Warn("donor totals not adjusted, row missing", "donor_id", id, "direction", direction)
	}
	return nil
}
