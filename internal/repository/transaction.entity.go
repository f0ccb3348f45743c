package repository

import (
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
)

type TransactionEntity struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement;column:id"`
	Status                string     `gorm:"column:status;size:32;not null;index"`
	Type                  string     `gorm:"column:type;size:32;not null"`
	DonorID               int64      `gorm:"column:donor_id;not null;index"`
	SubscriptionID        *int64     `gorm:"column:subscription_id;index"`
	ParentID              *int64     `gorm:"column:parent_id"`
	CampaignID            *int64     `gorm:"column:campaign_id;index"`
	SourceID              int64      `gorm:"column:source_id;not null;default:0"`
	Amount                int64      `gorm:"column:amount;not null"`
	FeeAmount             int64      `gorm:"column:fee_amount;not null;default:0"`
	TipAmount             int64      `gorm:"column:tip_amount;not null;default:0"`
	TotalAmount           int64      `gorm:"column:total_amount;not null"`
	CompletedAmount       *int64     `gorm:"column:completed_amount"`
	CompletedTip          *int64     `gorm:"column:completed_tip"`
	Currency              string     `gorm:"column:currency;size:3;not null"`
	PaymentGateway        string     `gorm:"column:payment_gateway;size:64"`
	GatewayTransactionID  *string    `gorm:"column:gateway_transaction_id;size:255;uniqueIndex"`
	GatewaySubscriptionID *string    `gorm:"column:gateway_subscription_id;size:255"`
	IsAnonymous           bool       `gorm:"column:is_anonymous;not null;default:false"`
	DonorIP               string     `gorm:"column:donor_ip;size:64"`
	CompletedAt           *time.Time `gorm:"column:completed_at"`
	RefundedAt            *time.Time `gorm:"column:refunded_at"`
	pg.Timestamps
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:                    m.ID,
		Status:                string(m.Status),
		Type:                  string(m.Type),
		DonorID:               m.DonorID,
		SubscriptionID:        m.SubscriptionID,
		ParentID:              m.ParentID,
		CampaignID:            m.CampaignID,
		SourceID:              m.SourceID,
		Amount:                m.Amount,
		FeeAmount:             m.FeeAmount,
		TipAmount:             m.TipAmount,
		TotalAmount:           m.TotalAmount,
		CompletedAmount:       m.CompletedAmount,
		CompletedTip:          m.CompletedTip,
		Currency:              m.Currency,
		PaymentGateway:        m.PaymentGateway,
		GatewayTransactionID:  m.GatewayTransactionID,
		GatewaySubscriptionID: m.GatewaySubscriptionID,
		IsAnonymous:           m.IsAnonymous,
		DonorIP:               m.DonorIP,
		CompletedAt:           utcPtr(m.CompletedAt),
		RefundedAt:            utcPtr(m.RefundedAt),
		Timestamps:            pg.Timestamps{CreatedAt: m.CreatedAt, ModifiedAt: m.ModifiedAt},
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:                    e.ID,
		Status:                model.TransactionStatus(e.Status),
		Type:                  model.DonationType(e.Type),
		DonorID:               e.DonorID,
		SubscriptionID:        e.SubscriptionID,
		ParentID:              e.ParentID,
		CampaignID:            e.CampaignID,
		SourceID:              e.SourceID,
		Amount:                e.Amount,
		FeeAmount:             e.FeeAmount,
		TipAmount:             e.TipAmount,
		TotalAmount:           e.TotalAmount,
		CompletedAmount:       e.CompletedAmount,
		CompletedTip:          e.CompletedTip,
		Currency:              e.Currency,
		PaymentGateway:        e.PaymentGateway,
		GatewayTransactionID:  e.GatewayTransactionID,
		GatewaySubscriptionID: e.GatewaySubscriptionID,
		IsAnonymous:           e.IsAnonymous,
		DonorIP:               e.DonorIP,
		CompletedAt:           utcPtr(e.CompletedAt),
		RefundedAt:            utcPtr(e.RefundedAt),
		CreatedAt:             e.CreatedAt.UTC(),
		ModifiedAt:            e.ModifiedAt.UTC(),
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
