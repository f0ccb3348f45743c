package repository

import (
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
)

type DonorEntity struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement;column:id"`
	UserID             *int64     `gorm:"column:user_id;index"`
	Email              string     `gorm:"column:email;size:255;not null;uniqueIndex"`
	FirstName          string     `gorm:"column:first_name;size:255"`
	LastName           string     `gorm:"column:last_name;size:255"`
	Prefix             string     `gorm:"column:prefix;size:32"`
	Phone              string     `gorm:"column:phone;size:64"`
	TotalDonated       int64      `gorm:"column:total_donated;not null;default:0"`
	TotalTip           int64      `gorm:"column:total_tip;not null;default:0"`
	TransactionCount   int64      `gorm:"column:transaction_count;not null;default:0"`
	FirstTransactionAt *time.Time `gorm:"column:first_transaction_at"`
	LastTransactionAt  *time.Time `gorm:"column:last_transaction_at"`
	pg.Timestamps
}

func (DonorEntity) TableName() string {
	return "donors"
}

func toDonorEntity(m *model.Donor) *DonorEntity {
	if m == nil {
		return nil
	}
	return &DonorEntity{
		ID:                 m.ID,
		UserID:             m.UserID,
		Email:              m.Email,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		Prefix:             m.Prefix,
		Phone:              m.Phone,
		TotalDonated:       m.TotalDonated,
		TotalTip:           m.TotalTip,
		TransactionCount:   m.TransactionCount,
		FirstTransactionAt: m.FirstTransactionAt,
		LastTransactionAt:  m.LastTransactionAt,
		Timestamps:         pg.Timestamps{CreatedAt: m.CreatedAt, ModifiedAt: m.ModifiedAt},
	}
}

func toDonorModel(e *DonorEntity) *model.Donor {
	if e == nil {
		return nil
	}
	return &model.Donor{
		ID:                 e.ID,
		UserID:             e.UserID,
		Email:              e.Email,
		FirstName:          e.FirstName,
		LastName:           e.LastName,
		Prefix:             e.Prefix,
		Phone:              e.Phone,
		TotalDonated:       e.TotalDonated,
		TotalTip:           e.TotalTip,
		TransactionCount:   e.TransactionCount,
		FirstTransactionAt: utcPtr(e.FirstTransactionAt),
		LastTransactionAt:  utcPtr(e.LastTransactionAt),
		CreatedAt:          e.CreatedAt.UTC(),
		ModifiedAt:         e.ModifiedAt.UTC(),
	}
}

func toDonorModels(entities []*DonorEntity) []*model.Donor {
	models := make([]*model.Donor, len(entities))
	for i, e := range entities {
		models[i] = toDonorModel(e)
	}
	return models
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
