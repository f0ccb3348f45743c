package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Donor is identified by email and carries lifetime aggregates that only the
// ledger engine moves.
type Donor struct {
	ID                 int64      `json:"id"`
	UserID             *int64     `json:"user_id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Prefix             string     `json:"prefix"`
	Phone              string     `json:"phone"`
	TotalDonated       int64      `json:"total_donated"`
	TotalTip           int64      `json:"total_tip"`
	TransactionCount   int64      `json:"transaction_count"`
	FirstTransactionAt *time.Time `json:"first_transaction_at"`
	LastTransactionAt  *time.Time `json:"last_transaction_at"`
	CreatedAt          time.Time  `json:"created_at"`
	ModifiedAt         time.Time  `json:"modified_at"`
}

func NewDonor(email, firstName, lastName string) *Donor {
	return &Donor{
		Email:     NormalizeEmail(email),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *Donor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

func (d *Donor) Validate() error {
	return invalid(CodeInvalidDonor, validation.ValidateStruct(d,
		validation.Field(&d.Email, validation.Required, is.EmailFormat, validation.Length(0, 255)),
		validation.Field(&d.FirstName, validation.Length(0, 255)),
		validation.Field(&d.LastName, validation.Length(0, 255)),
		validation.Field(&d.TotalDonated, nonNegative),
		validation.Field(&d.TotalTip, nonNegative),
		validation.Field(&d.TransactionCount, nonNegative),
	))
}
