package repository

import (
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
)

type CampaignEntity struct {
	ID               int64      `gorm:"primaryKey;autoIncrement;column:id"`
	Title            string     `gorm:"column:title;size:255;not null"`
	Slug             string     `gorm:"column:slug;size:255;not null;uniqueIndex"`
	Description      string     `gorm:"column:description;type:text"`
	GoalAmount       int64      `gorm:"column:goal_amount;not null;default:0"`
	TotalRaised      int64      `gorm:"column:total_raised;not null;default:0"`
	TransactionCount int64      `gorm:"column:transaction_count;not null;default:0"`
	Currency         string     `gorm:"column:currency;size:3;not null"`
	DateStart        *time.Time `gorm:"column:date_start;index"`
	DateEnd          *time.Time `gorm:"column:date_end;index"`
	pg.Timestamps
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(m *model.Campaign) *CampaignEntity {
	if m == nil {
		return nil
	}
	return &CampaignEntity{
		ID:               m.ID,
		Title:            m.Title,
		Slug:             m.Slug,
		Description:      m.Description,
		GoalAmount:       m.GoalAmount,
		TotalRaised:      m.TotalRaised,
		TransactionCount: m.TransactionCount,
		Currency:         m.Currency,
		DateStart:        utcPtr(m.DateStart),
		DateEnd:          utcPtr(m.DateEnd),
		Timestamps:       pg.Timestamps{CreatedAt: m.CreatedAt, ModifiedAt: m.ModifiedAt},
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	return &model.Campaign{
		ID:               e.ID,
		Title:            e.Title,
		Slug:             e.Slug,
		Description:      e.Description,
		GoalAmount:       e.GoalAmount,
		TotalRaised:      e.TotalRaised,
		TransactionCount: e.TransactionCount,
		Currency:         e.Currency,
		DateStart:        utcPtr(e.DateStart),
		DateEnd:          utcPtr(e.DateEnd),
		CreatedAt:        e.CreatedAt.UTC(),
		ModifiedAt:       e.ModifiedAt.UTC(),
	}
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
