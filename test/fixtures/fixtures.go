package fixtures

import (
	"github.com/nimasrn/donation-ledger/internal/checkout"
	"github.com/nimasrn/donation-ledger/internal/model"
)

const (
	SiteToken      = "site_tok_test"
	PublishableKey = "pk_test_123"
	AccountID      = "acct_test_1"
	AdminToken     = "admin-test-token"
)

var (
	Ada = checkout.Donation{
		Email:     "Ada@Example.org",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Amount:    5000,
		FeeAmount: 180,
		TipAmount: 500,
		Currency:  "usd",
		Frequency: model.DonationOneTime,
	}

	Grace = checkout.Donation{
		Email:     "grace@example.org",
		FirstName: "Grace",
		LastName:  "Hopper",
		Amount:    2500,
		Currency:  "usd",
		Frequency: model.DonationOneTime,
	}
)

// ForCampaign returns d earmarked for a campaign.
func ForCampaign(d checkout.Donation, campaignID int64) checkout.Donation {
	d.CampaignID = campaignID
	return d
}

func NewConfirmRequest(paymentIntentID, email string, amount int64) model.ConfirmDonationRequest {
	return model.ConfirmDonationRequest{
		PaymentIntentID: paymentIntentID,
		DonorEmail:      email,
		DonorFirstName:  "Test",
		DonorLastName:   "Donor",
		DonationAmount:  amount,
		Currency:        "usd",
		Frequency:       model.DonationOneTime,
	}
}

var InvalidEmails = []string{
	"",
	"plainaddress",
	"@missing-local.org",
	"ada@",
}
