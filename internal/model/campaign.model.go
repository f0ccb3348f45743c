package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type CampaignStatus string

// Draft exists for API compatibility, the computed status never yields it.
const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusEnded     CampaignStatus = "ended"
)

// Keys of the donation form options a campaign can be created with. They
// live in campaign meta rather than columns.
const (
	MetaAmounts              = "amounts"
	MetaCustomAmount         = "custom_amount"
	MetaMinimumAmount        = "minimum_amount"
	MetaRecurringEnabled     = "recurring_enabled"
	MetaRecurringFrequencies = "recurring_frequencies"
	MetaRecurringDefault     = "recurring_default"
	MetaFeeRecovery          = "fee_recovery"
	MetaTipEnabled           = "tip_enabled"
	MetaTipPercentages       = "tip_percentages"
	MetaAnonymousEnabled     = "anonymous_enabled"
	MetaTributeEnabled       = "tribute_enabled"
	MetaConfirmationMessage  = "confirmation_message"
)

var CreatableCampaignMeta = []string{
	MetaAmounts,
	MetaCustomAmount,
	MetaMinimumAmount,
	MetaRecurringEnabled,
	MetaRecurringFrequencies,
	MetaRecurringDefault,
	MetaFeeRecovery,
}

// AllCampaignMeta is what a single campaign view returns; the form editor
// owns the keys that cannot be set at creation.
var AllCampaignMeta = append(append([]string{}, CreatableCampaignMeta...),
	MetaTipEnabled,
	MetaTipPercentages,
	MetaAnonymousEnabled,
	MetaTributeEnabled,
	MetaConfirmationMessage,
)

type Campaign struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Description      string     `json:"description"`
	GoalAmount       int64      `json:"goal_amount"`
	TotalRaised      int64      `json:"total_raised"`
	TransactionCount int64      `json:"transaction_count"`
	Currency         string     `json:"currency"`
	DateStart        *time.Time `json:"date_start"`
	DateEnd          *time.Time `json:"date_end"`
	CreatedAt        time.Time  `json:"created_at"`
	ModifiedAt       time.Time  `json:"modified_at"`
}

func NewCampaign(title string) *Campaign {
	return &Campaign{Title: title, Currency: "usd"}
}

// StatusAt derives the status from the date window at day granularity:
// ended once the end day is before today, scheduled while the start day is
// after today, active otherwise.
func (c *Campaign) StatusAt(now time.Time) CampaignStatus {
	today := Day(now)
	if c.DateEnd != nil && Day(*c.DateEnd).Before(today) {
		return CampaignStatusEnded
	}
	if c.DateStart != nil && Day(*c.DateStart).After(today) {
		return CampaignStatusScheduled
	}
	return CampaignStatusActive
}

func (c *Campaign) Status() CampaignStatus {
	return c.StatusAt(time.Now())
}

// GoalProgress is the raised share of the goal in percent, capped at 100.
func (c *Campaign) GoalProgress() int {
	if c.GoalAmount <= 0 {
		return 0
	}
	p := c.TotalRaised * 100 / c.GoalAmount
	if p > 100 {
		p = 100
	}
	return int(p)
}

func (c *Campaign) Validate() error {
	return invalid(CodeInvalidRequest, validation.ValidateStruct(c,
		validation.Field(&c.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.GoalAmount, nonNegative),
		validation.Field(&c.TotalRaised, nonNegative),
		validation.Field(&c.TransactionCount, nonNegative),
		validation.Field(&c.Currency, currencyRule()...),
		validation.Field(&c.DateEnd, validation.By(func(any) error {
			if c.DateStart != nil && c.DateEnd != nil && Day(*c.DateEnd).Before(Day(*c.DateStart)) {
				return validation.NewError("validation_date_order", "must not be before date_start")
			}
			return nil
		})),
	))
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
