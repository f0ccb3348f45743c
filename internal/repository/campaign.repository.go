package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"gorm.io/gorm"
)

var campaignColumns = baseColumns.with(columns{
	"title":             "title",
	"date_start":        "date_start",
	"date_end":          "date_end",
	"goal_amount":       "goal_amount",
	"total_raised":      "total_raised",
	"transaction_count": "transaction_count",
})

type CampaignRepository struct {
	recordStore[CampaignEntity]
}

func NewCampaignRepository(db *pg.DB, notifier events.Notifier) *CampaignRepository {
	return &CampaignRepository{newRecordStore[CampaignEntity](db, "campaign", campaignColumns, notifier)}
}

// Create fills a slug from the title and starts the campaign today when no
// start date is given.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (int64, error) {
	now := timeNow()
	c.Currency = model.NormalizeCurrency(c.Currency)
	if c.DateStart == nil {
		today := model.Day(now)
		c.DateStart = &today
	}
	if err := c.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		s, err := r.uniqueSlug(ctx, c.Slug, c.Title)
		if err != nil {
			return err
		}
		c.Slug = s
		e := toCampaignEntity(c)
		e.Stamp(now)
		if err := r.insert(ctx, e); err != nil {
			return err
		}
		*c = *toCampaignModel(e)
		id = e.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.created(ctx, events.CampaignCreated, id, c)
	return id, nil
}

func (r *CampaignRepository) uniqueSlug(ctx context.Context, want, title string) (string, error) {
	base := slug.Make(want)
	if base == "" {
		base = slug.Make(title)
	}
	if base == "" {
		base = "campaign"
	}
	candidate := base
	for n := 2; ; n++ {
		var taken int64
		if err := r.Write(ctx).Model(&CampaignEntity{}).Where("slug = ?", candidate).Count(&taken).Error; err != nil {
			return "", model.NewPersistenceError("check campaign slug", err)
		}
		if taken == 0 {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

func (r *CampaignRepository) Read(ctx context.Context, id int64) (*model.Campaign, error) {
	e, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCampaignModel(e), nil
}

// Update writes the content fields; raised totals stay as stored.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	c.Currency = model.NormalizeCurrency(c.Currency)
	if err := c.Validate(); err != nil {
		return err
	}
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := r.findForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}
		if c.Slug == "" {
			c.Slug = old.Slug
		} else if c.Slug != old.Slug {
			if c.Slug, err = r.uniqueSlug(ctx, c.Slug, c.Title); err != nil {
				return err
			}
		}
		e := toCampaignEntity(c)
		e.TotalRaised = old.TotalRaised
		e.TransactionCount = old.TransactionCount
		e.CreatedAt = old.CreatedAt
		e.ModifiedAt = timeNow()
		if err := r.save(ctx, e); err != nil {
			return err
		}
		*c = *toCampaignModel(e)
		return nil
	})
}

func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	return r.remove(ctx, id)
}

// BatchDelete deletes each id on its own so one failure does not undo the
// rest.
func (r *CampaignRepository) BatchDelete(ctx context.Context, ids []int64) (deleted []int64, failed map[int64]error) {
	deleted = make([]int64, 0, len(ids))
	failed = make(map[int64]error)
	for _, id := range ids {
		if err := r.remove(ctx, id); err != nil {
			failed[id] = err
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, failed
}

func (r *CampaignRepository) Query(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, error) {
	rows, err := r.list(ctx, r.filter(ctx, f), f.Page)
	if err != nil {
		return nil, err
	}
	return toCampaignModels(rows), nil
}

func (r *CampaignRepository) Count(ctx context.Context, f model.CampaignFilter) (int64, error) {
	return r.count(r.filter(ctx, f))
}

// filter mirrors Campaign.StatusAt in SQL at day granularity.
func (r *CampaignRepository) filter(ctx context.Context, f model.CampaignFilter) *gorm.DB {
	q := applyDateRange(r.query(ctx), f.DateRange)
	q = applySearch(q, f.Search, "title", "description")

	now := f.Today
	if now.IsZero() {
		now = timeNow()
	}
	today := model.Day(now)
	tomorrow := today.AddDate(0, 0, 1)

	switch f.Status {
	case model.CampaignStatusActive:
		q = q.Where("(date_start IS NULL OR date_start < ?) AND (date_end IS NULL OR date_end >= ?)", tomorrow, today)
	case model.CampaignStatusScheduled:
		q = q.Where("date_start >= ? AND (date_end IS NULL OR date_end >= ?)", tomorrow, today)
	case model.CampaignStatusEnded:
		q = q.Where("date_end IS NOT NULL AND date_end < ?", today)
	case model.CampaignStatusDraft:
		q = q.Where("1 = 0")
	}
	return q
}

func (r *CampaignRepository) CreditCampaign(ctx context.Context, id, amount int64, at time.Time) error {
	res := r.Write(ctx).Model(&CampaignEntity{}).Where("id = ?", id).Updates(map[string]any{
		"total_raised":      gorm.Expr("total_raised + ?", amount),
		"transaction_count": gorm.Expr("transaction_count + 1"),
		"modified_at":       at,
	})
	return r.adjusted(res, id, "credit")
}

func (r *CampaignRepository) DebitCampaign(ctx context.Context, id, amount int64, at time.Time) error {
	res := r.Write(ctx).Model(&CampaignEntity{}).Where("id = ?", id).Updates(map[string]any{
		"total_raised":      floorSub("total_raised", amount),
		"transaction_count": floorSub("transaction_count", 1),
		"modified_at":       at,
	})
	return r.adjusted(res, id, "debit")
}

func (r *CampaignRepository) adjusted(res *gorm.DB, id int64, direction string) error {
	if res.Error != nil {
		return model.NewPersistenceError(direction+" campaign totals", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Warn("campaign totals not adjusted, row missing", "campaign_id", id, "direction", direction)
	}
	return nil
}
