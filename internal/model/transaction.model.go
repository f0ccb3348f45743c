package model

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusFailed    TransactionStatus = "failed"
)

var TransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusRefunded,
	TransactionStatusCancelled,
	TransactionStatusFailed,
}

func (s TransactionStatus) Valid() bool {
	for _, v := range TransactionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Reverses reports whether leaving completed for s takes money back out of
// the aggregates.
func (s TransactionStatus) Reverses() bool {
	return s == TransactionStatusRefunded || s == TransactionStatusCancelled || s == TransactionStatusFailed
}

// CanBecome reports whether a stored transaction may move from s to next.
// Statuses only move forward: pending may go anywhere, completed only to a
// reversal, and refunded, cancelled or failed are final.
func (s TransactionStatus) CanBecome(next TransactionStatus) bool {
	switch s {
	case TransactionStatusPending:
		return next.Valid()
	case TransactionStatusCompleted:
		return next.Reverses()
	default:
		return false
	}
}

type DonationType string

const (
	DonationOneTime   DonationType = "one_time"
	DonationMonthly   DonationType = "monthly"
	DonationQuarterly DonationType = "quarterly"
	DonationAnnually  DonationType = "annually"
)

var DonationTypes = []DonationType{DonationOneTime, DonationMonthly, DonationQuarterly, DonationAnnually}

func (t DonationType) Valid() bool {
	for _, v := range DonationTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (t DonationType) Recurring() bool {
	return t != DonationOneTime && t != ""
}

const GatewayStripe = "stripe"

// Transaction is one charge. CompletedAmount and CompletedTip are frozen the
// first time the row reaches completed and are what a later reversal
// subtracts.
type Transaction struct {
	ID                    int64             `json:"id"`
	Status                TransactionStatus `json:"status"`
	Type                  DonationType      `json:"type"`
	DonorID               int64             `json:"donor_id"`
	SubscriptionID        *int64            `json:"subscription_id"`
	ParentID              *int64            `json:"parent_id"`
	CampaignID            *int64            `json:"campaign_id"`
	SourceID              int64             `json:"source_id"`
	Amount                int64             `json:"amount"`
	FeeAmount             int64             `json:"fee_amount"`
	TipAmount             int64             `json:"tip_amount"`
	TotalAmount           int64             `json:"total_amount"`
	CompletedAmount       *int64            `json:"completed_amount"`
	CompletedTip          *int64            `json:"completed_tip"`
	Currency              string            `json:"currency"`
	PaymentGateway        string            `json:"payment_gateway"`
	GatewayTransactionID  *string           `json:"gateway_transaction_id"`
	GatewaySubscriptionID *string           `json:"gateway_subscription_id"`
	IsAnonymous           bool              `json:"is_anonymous"`
	DonorIP               string            `json:"donor_ip"`
	CreatedAt             time.Time         `json:"created_at"`
	CompletedAt           *time.Time        `json:"completed_at"`
	RefundedAt            *time.Time        `json:"refunded_at"`
	ModifiedAt            time.Time         `json:"modified_at"`
}

func NewTransaction(donorID, amount, fee, tip int64) *Transaction {
	return &Transaction{
		Status:      TransactionStatusPending,
		Type:        DonationOneTime,
		Currency:    "usd",
		DonorID:     donorID,
		Amount:      amount,
		FeeAmount:   fee,
		TipAmount:   tip,
		TotalAmount: amount + fee + tip,
	}
}

// AggregateAmounts is what the aggregates were credited with: the snapshot
// when present, the live fields otherwise.
func (t *Transaction) AggregateAmounts() (amount, tip int64) {
	amount, tip = t.Amount, t.TipAmount
	if t.CompletedAmount != nil {
		amount = *t.CompletedAmount
	}
	if t.CompletedTip != nil {
		tip = *t.CompletedTip
	}
	return amount, tip
}

func (t *Transaction) Validate() error {
	return invalid(CodeInvalidRequest, validation.ValidateStruct(t,
		validation.Field(&t.Status, validation.Required, validation.By(func(any) error {
			if !t.Status.Valid() {
				return validation.NewError("validation_status", fmt.Sprintf("unknown status %q", t.Status))
			}
			return nil
		})),
		validation.Field(&t.Type, validation.Required, validation.By(func(any) error {
			if !t.Type.Valid() {
				return validation.NewError("validation_type", fmt.Sprintf("unknown type %q", t.Type))
			}
			return nil
		})),
		validation.Field(&t.DonorID, validation.Required),
		validation.Field(&t.Amount, nonNegative),
		validation.Field(&t.FeeAmount, nonNegative),
		validation.Field(&t.TipAmount, nonNegative),
		validation.Field(&t.TotalAmount, validation.By(func(any) error {
			if t.TotalAmount != t.Amount+t.FeeAmount+t.TipAmount {
				return validation.NewError("validation_total", "must equal amount + fee_amount + tip_amount")
			}
			return nil
		})),
		validation.Field(&t.Currency, currencyRule()...),
	))
}

// NormalizeCurrency lowercases an ISO code, empty becomes usd.
func NormalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "usd"
	}
	return c
}
