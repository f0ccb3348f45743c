package model

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusFailed    SubscriptionStatus = "failed"
)

var SubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusPaused,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
	SubscriptionStatusFailed,
}

func (s SubscriptionStatus) Valid() bool {
	for _, v := range SubscriptionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type Subscription struct {
	ID                    int64              `json:"id"`
	Status                SubscriptionStatus `json:"status"`
	DonorID               int64              `json:"donor_id"`
	SourceID              int64              `json:"source_id"`
	CampaignID            *int64             `json:"campaign_id"`
	InitialTransactionID  *int64             `json:"initial_transaction_id"`
	Amount                int64              `json:"amount"`
	FeeAmount             int64              `json:"fee_amount"`
	TipAmount             int64              `json:"tip_amount"`
	TotalAmount           int64              `json:"total_amount"`
	Currency              string             `json:"currency"`
	Frequency             DonationType       `json:"frequency"`
	PaymentGateway        string             `json:"payment_gateway"`
	GatewaySubscriptionID *string            `json:"gateway_subscription_id"`
	GatewayCustomerID     *string            `json:"gateway_customer_id"`
	RenewalCount          int64              `json:"renewal_count"`
	TotalRenewed          int64              `json:"total_renewed"`
	CreatedAt             time.Time          `json:"created_at"`
	DateNextRenewal       *time.Time         `json:"date_next_renewal"`
	DateCancelled         *time.Time         `json:"date_cancelled"`
	DateExpired           *time.Time         `json:"date_expired"`
	ModifiedAt            time.Time          `json:"modified_at"`
}

func NewSubscription(donorID, amount, fee, tip int64) *Subscription {
	return &Subscription{
		Status:      SubscriptionStatusPending,
		Frequency:   DonationMonthly,
		Currency:    "usd",
		DonorID:     donorID,
		Amount:      amount,
		FeeAmount:   fee,
		TipAmount:   tip,
		TotalAmount: amount + fee + tip,
	}
}

// NextRenewal advances from by one billing period.
func (s *Subscription) NextRenewal(from time.Time) time.Time {
	switch s.Frequency {
	case DonationQuarterly:
		return from.AddDate(0, 3, 0)
	case DonationAnnually:
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func (s *Subscription) Validate() error {
	return invalid(CodeInvalidRequest, validation.ValidateStruct(s,
		validation.Field(&s.Status, validation.Required, validation.By(func(any) error {
			if !s.Status.Valid() {
				return validation.NewError("validation_status", fmt.Sprintf("unknown status %q", s.Status))
			}
			return nil
		})),
		validation.Field(&s.Frequency, validation.Required, validation.By(func(any) error {
			if !s.Frequency.Recurring() || !s.Frequency.Valid() {
				return validation.NewError("validation_frequency", fmt.Sprintf("unknown frequency %q", s.Frequency))
			}
			return nil
		})),
		validation.Field(&s.DonorID, validation.Required),
		validation.Field(&s.Amount, nonNegative),
		validation.Field(&s.FeeAmount, nonNegative),
		validation.Field(&s.TipAmount, nonNegative),
		validation.Field(&s.TotalAmount, validation.By(func(any) error {
			if s.TotalAmount != s.Amount+s.FeeAmount+s.TipAmount {
				return validation.NewError("validation_total", "must equal amount + fee_amount + tip_amount")
			}
			return nil
		})),
		validation.Field(&s.RenewalCount, nonNegative),
		validation.Field(&s.TotalRenewed, nonNegative),
		validation.Field(&s.Currency, currencyRule()...),
	))
}
