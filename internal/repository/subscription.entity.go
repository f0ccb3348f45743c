package repository

import (
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
)

type SubscriptionEntity struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement;column:id"`
	Status                string     `gorm:"column:status;size:32;not null;index"`
	DonorID               int64      `gorm:"column:donor_id;not null;index"`
	SourceID              int64      `gorm:"column:source_id;not null;default:0"`
	CampaignID            *int64     `gorm:"column:campaign_id;index"`
	InitialTransactionID  *int64     `gorm:"column:initial_transaction_id"`
	Amount                int64      `gorm:"column:amount;not null"`
	FeeAmount             int64      `gorm:"column:fee_amount;not null;default:0"`
	TipAmount             int64      `gorm:"column:tip_amount;not null;default:0"`
	TotalAmount           int64      `gorm:"column:total_amount;not null"`
	Currency              string     `gorm:"column:currency;size:3;not null"`
	Frequency             string     `gorm:"column:frequency;size:32;not null"`
	PaymentGateway        string     `gorm:"column:payment_gateway;size:64"`
	GatewaySubscriptionID *string    `gorm:"column:gateway_subscription_id;size:255;index"`
	GatewayCustomerID     *string    `gorm:"column:gateway_customer_id;size:255"`
	RenewalCount          int64      `gorm:"column:renewal_count;not null;default:0"`
	TotalRenewed          int64      `gorm:"column:total_renewed;not null;default:0"`
	DateNextRenewal       *time.Time `gorm:"column:date_next_renewal"`
	DateCancelled         *time.Time `gorm:"column:date_cancelled"`
	DateExpired           *time.Time `gorm:"column:date_expired"`
	pg.Timestamps
}

func (SubscriptionEntity) TableName() string {
	return "subscriptions"
}

func toSubscriptionEntity(m *model.Subscription) *SubscriptionEntity {
	if m == nil {
		return nil
	}
	return &SubscriptionEntity{
		ID:                    m.ID,
		Status:                string(m.Status),
		DonorID:               m.DonorID,
		SourceID:              m.SourceID,
		CampaignID:            m.CampaignID,
		InitialTransactionID:  m.InitialTransactionID,
		Amount:                m.Amount,
		FeeAmount:             m.FeeAmount,
		TipAmount:             m.TipAmount,
		TotalAmount:           m.TotalAmount,
		Currency:              m.Currency,
		Frequency:             string(m.Frequency),
		PaymentGateway:        m.PaymentGateway,
		GatewaySubscriptionID: m.GatewaySubscriptionID,
		GatewayCustomerID:     m.GatewayCustomerID,
		RenewalCount:          m.RenewalCount,
		TotalRenewed:          m.TotalRenewed,
		DateNextRenewal:       utcPtr(m.DateNextRenewal),
		DateCancelled:         utcPtr(m.DateCancelled),
		DateExpired:           utcPtr(m.DateExpired),
		Timestamps:            pg.Timestamps{CreatedAt: m.CreatedAt, ModifiedAt: m.ModifiedAt},
	}
}

func toSubscriptionModel(e *SubscriptionEntity) *model.Subscription {
	if e == nil {
		return nil
	}
	return &model.Subscription{
		ID:                    e.ID,
		Status:                model.SubscriptionStatus(e.Status),
		DonorID:               e.DonorID,
		SourceID:              e.SourceID,
		CampaignID:            e.CampaignID,
		InitialTransactionID:  e.InitialTransactionID,
		Amount:                e.Amount,
		FeeAmount:             e.FeeAmount,
		TipAmount:             e.TipAmount,
		TotalAmount:           e.TotalAmount,
		Currency:              e.Currency,
		Frequency:             model.DonationType(e.Frequency),
		PaymentGateway:        e.PaymentGateway,
		GatewaySubscriptionID: e.GatewaySubscriptionID,
		GatewayCustomerID:     e.GatewayCustomerID,
		RenewalCount:          e.RenewalCount,
		TotalRenewed:          e.TotalRenewed,
		DateNextRenewal:       utcPtr(e.DateNextRenewal),
		DateCancelled:         utcPtr(e.DateCancelled),
		DateExpired:           utcPtr(e.DateExpired),
		CreatedAt:             e.CreatedAt.UTC(),
		ModifiedAt:            e.ModifiedAt.UTC(),
	}
}

func toSubscriptionModels(entities []*SubscriptionEntity) []*model.Subscription {
	models := make([]*model.Subscription, len(entities))
	for i, e := range entities {
		models[i] = toSubscriptionModel(e)
	}
	return models
}
