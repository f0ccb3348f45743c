// Package checkout drives one donation attempt from the donor's side: create
// an intent, let the gateway confirm the payment, then record it. Each
// attempt runs its steps strictly in order and a second submission while one
// is in flight is refused.
package checkout

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/pkg/errors"
)

type State string

const (
	StateIdle                        State = "idle"
	StateCreatingIntent              State = "creating_intent"
	StateAwaitingGatewayConfirmation State = "awaiting_gateway_confirmation"
	StateRecording                   State = "recording"
	StateSuccess                     State = "success"
	StateError                       State = "error"
)

var (
	ErrSubmissionInFlight = model.NewConflictError(model.CodeSubmissionInFlight, "A donation is already being processed.")
	ErrWidgetNotReady     = model.NewValidationError(model.CodeInvalidRequest, "The payment form is still loading. Please try again in a moment.", nil)
)

type IntentAPI interface {
	PaymentConfig(ctx context.Context) (*model.PaymentConfig, error)
	CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
}

type RecordAPI interface {
	ConfirmDonation(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error)
}

// GatewayConfirmer is the payment widget. ConfirmPayment returns the
// gateway's transaction id, or an error whose message is shown to the donor
// as is.
type GatewayConfirmer interface {
	Ready() bool
	ConfirmPayment(ctx context.Context, clientSecret string, billing BillingDetails) (string, error)
}

type BillingDetails struct {
	Name  string
	Email string
}

type Donation struct {
	Email       string
	FirstName   string
	LastName    string
	Amount      int64
	FeeAmount   int64
	TipAmount   int64
	Currency    string
	Frequency   model.DonationType
	CampaignID  int64
	SourceID    int64
	IsAnonymous bool
}

func (d Donation) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Email, validation.Required, is.EmailFormat),
		validation.Field(&d.FirstName, validation.Required),
		validation.Field(&d.LastName, validation.Required),
		validation.Field(&d.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&d.FeeAmount, validation.Min(int64(0))),
		validation.Field(&d.TipAmount, validation.Min(int64(0))),
	)
	if err != nil {
		return model.NewValidationError(model.CodeInvalidDonor, err.Error(), err)
	}
	return nil
}

// Attempt is the outcome of one submission. Transitions lists every state
// the attempt went through, starting at idle.
type Attempt struct {
	ID              string
	State           State
	Transitions     []State
	PaymentIntentID string
	TransactionID   int64
	// RecordingFailed is set when the payment went through but the
	// bookkeeping write did not; the donor still sees success.
	RecordingFailed bool
	RecordErr       error
	Err             error
	// Message is what the donor is shown on error.
	Message string
}

type Checkout struct {
	intents  IntentAPI
	records  RecordAPI
	gateway  GatewayConfirmer
	inFlight atomic.Bool

	mu       sync.RWMutex
	state    State
	observer func(State)
}

type Option func(*Checkout)

// WithObserver is called on every state change, a UI hooks in here.
func WithObserver(fn func(State)) Option {
	return func(c *Checkout) { c.observer = fn }
}

func New(intents IntentAPI, records RecordAPI, gateway GatewayConfirmer, opts ...Option) *Checkout {
	c := &Checkout{intents: intents, records: records, gateway: gateway, state: StateIdle}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Checkout) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Checkout) InFlight() bool {
	return c.inFlight.Load()
}

// Submit runs one attempt to success or error. Nothing is retried: a failed
// attempt is retried by the donor submitting again.
func (c *Checkout) Submit(ctx context.Context, d Donation) (*Attempt, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	a := &Attempt{ID: uuid.NewString(), State: StateIdle, Transitions: []State{StateIdle}}
	c.set(a, StateIdle)
	started := time.Now()

	if err := d.Validate(); err != nil {
		return c.fail(a, err), nil
	}
	if c.gateway == nil || !c.gateway.Ready() {
		return c.fail(a, ErrWidgetNotReady), nil
	}

	cfg, err := c.intents.PaymentConfig(ctx)
	if err != nil {
		return c.fail(a, err), nil
	}
	if !cfg.Connected {
		return c.fail(a, model.NewConfigurationError(model.CodeStripeNotConnected,
			"Online payments are not set up yet. An administrator needs to connect Stripe in the settings.")), nil
	}

	c.set(a, StateCreatingIntent)
	intent, err := c.intents.CreatePaymentIntent(ctx, model.PaymentIntentRequest{DonationAmount: d.Amount + d.FeeAmount, TipAmount: d.TipAmount})
	if err != nil {
		return c.fail(a, err), nil
	}

	c.set(a, StateAwaitingGatewayConfirmation)
	gatewayID, err := c.gateway.ConfirmPayment(ctx, intent.ClientSecret, BillingDetails{
		Name:  strings.TrimSpace(d.FirstName + " " + d.LastName),
		Email: d.Email,
	})
	if err != nil {
		// gateway messages go to the donor verbatim and nothing is recorded
		a.Err = err
		a.Message = err.Error()
		c.set(a, StateError)
		logger.Info("gateway declined payment", "attempt", a.ID, "error", err)
		return a, nil
	}
	a.PaymentIntentID = gatewayID

	c.set(a, StateRecording)
	res, err := c.records.ConfirmDonation(ctx, model.ConfirmDonationRequest{
		PaymentIntentID: gatewayID,
		DonorEmail:      d.Email,
		DonorFirstName:  d.FirstName,
		DonorLastName:   d.LastName,
		DonationAmount:  d.Amount,
		FeeAmount:       d.FeeAmount,
		TipAmount:       d.TipAmount,
		Currency:        d.Currency,
		Frequency:       d.Frequency,
		CampaignID:      d.CampaignID,
		SourceID:        d.SourceID,
		IsAnonymous:     d.IsAnonymous,
	})
	if err != nil {
		a.RecordingFailed = true
		a.RecordErr = err
		logger.Error("donation charged but not recorded", "attempt", a.ID, "payment_intent_id", gatewayID, "error", err)
	} else {
		a.TransactionID = res.TransactionID
	}

	c.set(a, StateSuccess)
	logger.Info("checkout finished", "attempt", a.ID, "payment_intent_id", gatewayID, "recorded", !a.RecordingFailed, "elapsed", time.Since(started).String())
	return a, nil
}

func (c *Checkout) fail(a *Attempt, err error) *Attempt {
	a.Err = err
	a.Message = donorMessage(err)
	c.set(a, StateError)
	return a
}

func (c *Checkout) set(a *Attempt, s State) {
	if a.State != s {
		a.State = s
		a.Transitions = append(a.Transitions, s)
	}
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(s)
	}
}

func donorMessage(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong. Please try again."
}
