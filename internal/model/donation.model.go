package model

import (
	"encoding/json"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type PaymentIntentRequest struct {
	DonationAmount int64 `json:"donation_amount"`
	TipAmount      int64 `json:"tip_amount"`
}

type PaymentIntent struct {
	ClientSecret       string `json:"client_secret"`
	ConnectedAccountID string `json:"connected_account_id"`
}

// PaymentConfig is what the payment widget is initialized from. Connected is
// false while no gateway credential is configured.
type PaymentConfig struct {
	ConnectedAccountID string `json:"connected_account_id"`
	PublishableKey     string `json:"publishable_key"`
	Connected          bool   `json:"connected"`
}

// ConfirmDonationRequest is what the checkout posts once the gateway has
// accepted the payment. The gateway id arrives as gateway_transaction_id or,
// from older forms, as payment_intent_id.
type ConfirmDonationRequest struct {
	GatewayTransactionID string       `json:"gateway_transaction_id,omitempty"`
	PaymentIntentID      string       `json:"payment_intent_id,omitempty"`
	DonorEmail           string       `json:"donor_email"`
	DonorFirstName       string       `json:"donor_first_name"`
	DonorLastName        string       `json:"donor_last_name"`
	DonationAmount       int64        `json:"donation_amount"`
	FeeAmount            int64        `json:"fee_amount"`
	TipAmount            int64        `json:"tip_amount"`
	Currency             string       `json:"currency"`
	Frequency            DonationType `json:"frequency"`
	CampaignID           int64        `json:"campaign_id"`
	SourceID             int64        `json:"source_id"`
	IsAnonymous          bool         `json:"is_anonymous"`
	DonorIP              string       `json:"-"`
}

// Normalize fills the defaults the form may omit.
func (r *ConfirmDonationRequest) Normalize() {
	if strings.TrimSpace(r.PaymentIntentID) == "" {
		r.PaymentIntentID = r.GatewayTransactionID
	}
	r.PaymentIntentID = strings.TrimSpace(r.PaymentIntentID)
	r.GatewayTransactionID = r.PaymentIntentID
	r.DonorEmail = NormalizeEmail(r.DonorEmail)
	r.DonorFirstName = strings.TrimSpace(r.DonorFirstName)
	r.DonorLastName = strings.TrimSpace(r.DonorLastName)
	r.Currency = NormalizeCurrency(r.Currency)
	if r.Frequency == "" {
		r.Frequency = DonationOneTime
	}
}

func (r ConfirmDonationRequest) Validate() error {
	if err := validation.Validate(r.DonorEmail, validation.Required, is.EmailFormat); err != nil {
		return NewValidationError(CodeInvalidEmail, "A valid email address is required.", err)
	}
	return invalid(CodeInvalidRequest, validation.ValidateStruct(&r,
		validation.Field(&r.PaymentIntentID, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.DonationAmount, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.FeeAmount, nonNegative),
		validation.Field(&r.TipAmount, nonNegative),
		validation.Field(&r.Currency, currencyRule()...),
		validation.Field(&r.Frequency, validation.By(func(any) error {
			if !r.Frequency.Valid() {
				return validation.NewError("validation_frequency", "unknown frequency")
			}
			return nil
		})),
	))
}

type ConfirmDonationResult struct {
	Success       bool  `json:"success"`
	TransactionID int64 `json:"transaction_id"`
	// Duplicate is set when the gateway id had already been recorded.
	Duplicate bool `json:"duplicate,omitempty"`
}

type CampaignCreateRequest struct {
	Title       string                     `json:"title"`
	Slug        string                     `json:"slug"`
	Description string                     `json:"excerpt"`
	GoalAmount  int64                      `json:"goal_amount"`
	Currency    string                     `json:"currency"`
	DateStart   *time.Time                 `json:"date_start"`
	DateEnd     *time.Time                 `json:"date_end"`
	Meta        map[string]json.RawMessage `json:"meta"`
}

type CampaignView struct {
	*Campaign
	Status       CampaignStatus             `json:"status"`
	GoalProgress int                        `json:"goal_progress"`
	Meta         map[string]json.RawMessage `json:"meta,omitempty"`
}

func NewCampaignView(c *Campaign, now time.Time) *CampaignView {
	return &CampaignView{Campaign: c, Status: c.StatusAt(now), GoalProgress: c.GoalProgress()}
}

type BatchDeleteResult struct {
	Deleted []int64 `json:"deleted"`
	Errors  []int64 `json:"errors"`
}
