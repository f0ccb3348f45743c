package services

import (
	"context"
	"strconv"
	"time"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/fees"
	gateway "github.com/nimasrn/donation-ledger/internal/gateways"
	"github.com/nimasrn/donation-ledger/internal/idempotency"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/settings"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/prom"
	"github.com/pkg/errors"
)

type DonorRepository interface {
	FirstOrCreate(ctx context.Context, d *model.Donor) (*model.Donor, bool, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, t *model.Transaction) (int64, error)
	Read(ctx context.Context, id int64) (*model.Transaction, error)
	FindByGatewayID(ctx context.Context, gatewayID string) (*model.Transaction, error)
	Update(ctx context.Context, t *model.Transaction) error
}

type SettingsStore interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, p settings.Patch) (settings.Settings, error)
}

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, siteToken string, req gateway.IntentRequest) (*gateway.IntentResponse, error)
}

// ConfirmLocker serializes confirms for one gateway id across processes.
type ConfirmLocker interface {
	Acquire(ctx context.Context, id string) (*idempotency.Attempt, error)
	MarkSuccess(ctx context.Context, a *idempotency.Attempt, result []byte) error
	MarkFailure(ctx context.Context, a *idempotency.Attempt, reason error) error
}

type DonationService struct {
	donors       DonorRepository
	transactions TransactionRepository
	settings     SettingsStore
	gateway      PaymentGateway
	locker       ConfirmLocker
	calc         fees.Calculator
	notifier     events.Notifier
	now          func() time.Time
}

func NewDonationService(donors DonorRepository, transactions TransactionRepository, settings SettingsStore, gw PaymentGateway, locker ConfirmLocker, calc fees.Calculator, notifier events.Notifier) *DonationService {
	return &DonationService{
		donors:       donors,
		transactions: transactions,
		settings:     settings,
		gateway:      gw,
		locker:       locker,
		calc:         calc,
		notifier:     events.OrNop(notifier),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreatePaymentIntent moves the processor fee caused by the tip from the tip
// to the donation, so the charge total is unchanged and the nonprofit never
// pays for the tip.
func (s *DonationService) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	if req.TipAmount < 0 {
		return nil, model.NewValidationError(model.CodeInvalidAmount, "Tip amount must not be negative.", nil)
	}
	amount, tip := s.calc.AbsorbTipFee(req.DonationAmount, req.TipAmount)
	if amount < 1 {
		return nil, model.NewValidationError(model.CodeInvalidAmount, "Donation amount must be at least 1 cent.", nil)
	}

	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Connected() {
		return nil, model.NewConfigurationError(model.CodeStripeNotConnected, "Stripe is not connected. Please connect Stripe in the plugin settings.")
	}

	resp, err := s.gateway.CreatePaymentIntent(ctx, st.StripeSiteToken, gateway.IntentRequest{DonationAmount: amount, TipAmount: tip})
	if err != nil {
		return nil, err
	}

	if st.StripeAccountID == "" {
		if _, err := s.settings.Update(ctx, settings.Patch{StripeAccountID: &resp.ConnectedAccountID}); err != nil {
			// the intent exists remotely, failing here would strand the donor
			logger.Warn("could not persist connected account id", "account", resp.ConnectedAccountID, "error", err)
		}
	}

	return &model.PaymentIntent{ClientSecret: resp.ClientSecret, ConnectedAccountID: resp.ConnectedAccountID}, nil
}

func (s *DonationService) PaymentConfig(ctx context.Context) (*model.PaymentConfig, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &model.PaymentConfig{
		ConnectedAccountID: st.StripeAccountID,
		PublishableKey:     st.StripePublishableKey,
		Connected:          st.Connected(),
	}, nil
}

// ConfirmDonation records a payment the gateway already accepted. A gateway
// id that was recorded before returns the existing transaction.
func (s *DonationService) ConfirmDonation(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var attempt *idempotency.Attempt
	if s.locker != nil {
		a, err := s.locker.Acquire(ctx, req.PaymentIntentID)
		switch {
		case errors.Is(err, idempotency.ErrAlreadyProcessed):
			return s.existing(ctx, req.PaymentIntentID)
		case errors.Is(err, idempotency.ErrLockAcquireFailed):
			return nil, model.NewConflictError(model.CodeConfirmInProgress, "This payment is already being recorded.")
		case err != nil:
			return nil, model.NewPersistenceError("confirm lock", err)
		}
		attempt = a
	}

	result, err := s.record(ctx, req)
	if attempt != nil {
		if err != nil {
			if mErr := s.locker.MarkFailure(ctx, attempt, err); mErr != nil && !errors.Is(mErr, idempotency.ErrMaxRetriesExceeded) {
				logger.Warn("confirm lock release failed", "payment_intent_id", req.PaymentIntentID, "error", mErr)
			}
		} else if mErr := s.locker.MarkSuccess(ctx, attempt, []byte(strconv.FormatInt(result.TransactionID, 10))); mErr != nil {
			logger.Warn("confirm processed marker failed", "payment_intent_id", req.PaymentIntentID, "error", mErr)
		}
	}
	return result, err
}

func (s *DonationService) existing(ctx context.Context, gatewayID string) (*model.ConfirmDonationResult, error) {
	t, err := s.transactions.FindByGatewayID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	return &model.ConfirmDonationResult{Success: true, TransactionID: t.ID, Duplicate: true}, nil
}

func (s *DonationService) record(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error) {
	if t, err := s.transactions.FindByGatewayID(ctx, req.PaymentIntentID); err == nil {
		if t.Status == model.TransactionStatusPending {
			// an earlier confirm created the row but failed to complete it
			logger.Warn("completing pending transaction", "payment_intent_id", req.PaymentIntentID, "transaction_id", t.ID)
			return s.complete(ctx, t, false)
		}
		logger.Info("donation already recorded", "payment_intent_id", req.PaymentIntentID, "transaction_id", t.ID)
		return &model.ConfirmDonationResult{Success: true, TransactionID: t.ID, Duplicate: true}, nil
	} else if !model.IsNotFound(err) {
		return nil, err
	}

	donor, created, err := s.donors.FirstOrCreate(ctx, model.NewDonor(req.DonorEmail, req.DonorFirstName, req.DonorLastName))
	if err != nil {
		return nil, persistence("upsert donor", err)
	}

	t := model.NewTransaction(donor.ID, req.DonationAmount, req.FeeAmount, req.TipAmount)
	t.Type = req.Frequency
	t.Currency = req.Currency
	t.SourceID = req.SourceID
	if req.CampaignID > 0 {
		id := req.CampaignID
		t.CampaignID = &id
	}
	t.PaymentGateway = model.GatewayStripe
	gatewayID := req.PaymentIntentID
	t.GatewayTransactionID = &gatewayID
	t.IsAnonymous = req.IsAnonymous
	t.DonorIP = req.DonorIP

	id, err := s.transactions.Create(ctx, t)
	if err != nil {
		if model.IsKind(err, model.KindValidation) {
			return nil, err
		}
		// lost a race on the unique gateway id
		if dup, findErr := s.existing(ctx, req.PaymentIntentID); findErr == nil {
			return dup, nil
		}
		return nil, persistence("create transaction", err)
	}
	t.ID = id
	return s.complete(ctx, t, created)
}

// complete moves a pending transaction to completed. Going through Update is
// what runs the aggregation.
func (s *DonationService) complete(ctx context.Context, t *model.Transaction, newDonor bool) (*model.ConfirmDonationResult, error) {
	completedAt := s.now()
	t.Status = model.TransactionStatusCompleted
	t.CompletedAt = &completedAt
	if err := s.transactions.Update(ctx, t); err != nil {
		return nil, persistence("complete transaction", err)
	}

	prom.AddDonationConfirmed(t.Currency, string(t.Type), t.Amount)
	s.notifier.Notify(ctx, events.New(events.DonationConfirmed, "transaction", t.ID, ConfirmedEvent{
		TransactionID: t.ID,
		DonorID:       t.DonorID,
		NewDonor:      newDonor,
		CampaignID:    t.CampaignID,
		Amount:        t.Amount,
		TipAmount:     t.TipAmount,
		TotalAmount:   t.TotalAmount,
		Currency:      t.Currency,
		Frequency:     t.Type,
	}))
	logger.Info("donation confirmed", "transaction_id", t.ID, "donor_id", t.DonorID, "amount", t.Amount, "currency", t.Currency)

	return &model.ConfirmDonationResult{Success: true, TransactionID: t.ID}, nil
}

// ConfirmedEvent is the donation.confirmed payload receipts are built from.
type ConfirmedEvent struct {
	TransactionID int64              `json:"transaction_id"`
	DonorID       int64              `json:"donor_id"`
	NewDonor      bool               `json:"new_donor"`
	CampaignID    *int64             `json:"campaign_id,omitempty"`
	Amount        int64              `json:"amount"`
	TipAmount     int64              `json:"tip_amount"`
	TotalAmount   int64              `json:"total_amount"`
	Currency      string             `json:"currency"`
	Frequency     model.DonationType `json:"frequency"`
}

// UpdateTransactionStatus is the admin path for refunds and cancellations.
func (s *DonationService) UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) (*model.Transaction, error) {
	if !status.Valid() {
		return nil, model.NewValidationError(model.CodeInvalidRequest, "unknown status "+strconv.Quote(string(status)), nil)
	}
	t, err := s.transactions.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return t, nil
	}
	if !t.Status.CanBecome(status) {
		return nil, model.NewValidationError(model.CodeInvalidRequest,
			"A "+string(t.Status)+" transaction cannot be changed to "+string(status)+".", nil)
	}

	t.Status = status
	now := s.now()
	if status == model.TransactionStatusRefunded && t.RefundedAt == nil {
		t.RefundedAt = &now
	}
	if status == model.TransactionStatusCompleted && t.CompletedAt == nil {
		t.CompletedAt = &now
	}
	if err := s.transactions.Update(ctx, t); err != nil {
		return nil, persistence("update transaction status", err)
	}
	return t, nil
}

// persistence keeps errors that already carry a kind and wraps the rest.
func persistence(op string, err error) error {
	if _, ok := model.AsError(err); ok {
		return err
	}
	return model.NewPersistenceError(op, err)
}
