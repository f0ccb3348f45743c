package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) PaymentConfig(ctx context.Context) (*model.PaymentConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentConfig), args.Error(1)
}

func (m *MockAPI) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockAPI) ConfirmDonation(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmDonationResult), args.Error(1)
}

type fakeGateway struct {
	ready   bool
	id      string
	err     error
	block   chan struct{}
	entered chan struct{}
	secrets []string
}

func (g *fakeGateway) Ready() bool { return g.ready }

func (g *fakeGateway) ConfirmPayment(_ context.Context, secret string, _ BillingDetails) (string, error) {
	g.secrets = append(g.secrets, secret)
	if g.entered != nil {
		close(g.entered)
	}
	if g.block != nil {
		<-g.block
	}
	return g.id, g.err
}

func donation() Donation {
	return Donation{Email: "ada@example.org", FirstName: "Ada", LastName: "Lovelace", Amount: 5000, TipAmount: 1000, Currency: "usd"}
}

var connectedConfig = &model.PaymentConfig{ConnectedAccountID: "acct_1", Connected: true}

func TestCheckout_HappyPath(t *testing.T) {
	api := new(MockAPI)
	gw := &fakeGateway{ready: true, id: "pi_1"}
	var seen []State
	c := New(api, api, gw, WithObserver(func(s State) { seen = append(seen, s) }))

	api.On("PaymentConfig", mock.Anything).Return(connectedConfig, nil)
	api.On("CreatePaymentIntent", mock.Anything, model.PaymentIntentRequest{DonationAmount: 5000, TipAmount: 1000}).
		Return(&model.PaymentIntent{ClientSecret: "cs_1", ConnectedAccountID: "acct_1"}, nil)
	api.On("ConfirmDonation", mock.Anything, mock.MatchedBy(func(r model.ConfirmDonationRequest) bool {
		return r.PaymentIntentID == "pi_1" && r.DonorEmail == "ada@example.org" && r.DonationAmount == 5000 && r.TipAmount == 1000
	})).Return(&model.ConfirmDonationResult{Success: true, TransactionID: 42}, nil)

	a, err := c.Submit(context.Background(), donation())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, a.State)
	assert.Equal(t, []State{StateIdle, StateCreatingIntent, StateAwaitingGatewayConfirmation, StateRecording, StateSuccess}, a.Transitions)
	assert.Equal(t, int64(42), a.TransactionID)
	assert.Equal(t, "pi_1", a.PaymentIntentID)
	assert.False(t, a.RecordingFailed)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, []string{"cs_1"}, gw.secrets)
	assert.Equal(t, StateSuccess, c.State())
	assert.Equal(t, a.Transitions, seen)
	assert.False(t, c.InFlight())
	api.AssertExpectations(t)
}

func TestCheckout_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Donation)
		gw     *fakeGateway
	}{
		{"missing email", func(d *Donation) { d.Email = "" }, &fakeGateway{ready: true}},
		{"bad email", func(d *Donation) { d.Email = "ada" }, &fakeGateway{ready: true}},
		{"missing last name", func(d *Donation) { d.LastName = "" }, &fakeGateway{ready: true}},
		{"zero amount", func(d *Donation) { d.Amount = 0 }, &fakeGateway{ready: true}},
		{"widget not ready", func(*Donation) {}, &fakeGateway{ready: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockAPI)
			c := New(api, api, tt.gw)
			d := donation()
			tt.mutate(&d)

			a, err := c.Submit(context.Background(), d)
			require.NoError(t, err)
			assert.Equal(t, StateError, a.State)
			assert.True(t, model.IsKind(a.Err, model.KindValidation))
			assert.NotEmpty(t, a.Message)
			api.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_EmailOnUnresolvableDomain(t *testing.T) {
	api := new(MockAPI)
	c := New(api, api, &fakeGateway{ready: true, id: "pi_1"})
	api.On("PaymentConfig", mock.Anything).Return(connectedConfig, nil)
	api.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(&model.PaymentIntent{ClientSecret: "cs_1"}, nil)
	api.On("ConfirmDonation", mock.Anything, mock.MatchedBy(func(r model.ConfirmDonationRequest) bool {
		return r.DonorEmail == "ada@no-such-host.invalid"
	})).Return(&model.ConfirmDonationResult{Success: true, TransactionID: 7}, nil)

	d := donation()
	d.Email = "ada@no-such-host.invalid"
	a, err := c.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, a.State, a.Message)
	assert.Equal(t, int64(7), a.TransactionID)
}

func TestCheckout_NotConnectedBlocksBeforeIntent(t *testing.T) {
	api := new(MockAPI)
	c := New(api, api, &fakeGateway{ready: true})
	api.On("PaymentConfig", mock.Anything).Return(&model.PaymentConfig{}, nil)

	a, err := c.Submit(context.Background(), donation())
	require.NoError(t, err)
	assert.Equal(t, StateError, a.State)
	assert.True(t, model.IsKind(a.Err, model.KindConfiguration))
	assert.Contains(t, a.Message, "connect Stripe")
	assert.Equal(t, []State{StateIdle, StateError}, a.Transitions)
	api.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
}

func TestCheckout_IntentFailure(t *testing.T) {
	api := new(MockAPI)
	c := New(api, api, &fakeGateway{ready: true})
	api.On("PaymentConfig", mock.Anything).Return(connectedConfig, nil)
	api.On("CreatePaymentIntent", mock.Anything, mock.Anything).
		Return(nil, model.NewGatewayError(model.CodeMissionAPIError, "Could not reach the payment API.", http.StatusBadGateway, nil))

	a, err := c.Submit(context.Background(), donation())
	require.NoError(t, err)
	assert.Equal(t, StateError, a.State)
	assert.Equal(t, "Could not reach the payment API.", a.Message)
	assert.Equal(t, []State{StateIdle, StateCreatingIntent, StateError}, a.Transitions)
}

func TestCheckout_GatewayDeclineNeverRecords(t *testing.T) {
	api := new(MockAPI)
	c := New(api, api, &fakeGateway{ready: true, err: errors.New("Your card was declined.")})
	api.On("PaymentConfig", mock.Anything).Return(connectedConfig, nil)
	api.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(&model.PaymentIntent{ClientSecret: "cs_1"}, nil)

	a, err := c.Submit(context.Background(), donation())
	require.NoError(t, err)
	assert.Equal(t, StateError, a.State)
	assert.Equal(t, "Your card was declined.", a.Message)
	api.AssertNotCalled(t, "ConfirmDonation", mock.Anything, mock.Anything)
}

func TestCheckout_RecordingFailureStillSucceeds(t *testing.T) {
	api := new(MockAPI)
	c := New(api, api, &fakeGateway{ready: true, id: "pi_1"})
	api.On("PaymentConfig", mock.Anything).Return(connectedConfig, nil)
	api.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(&model.PaymentIntent{ClientSecret: "cs_1"}, nil)
	api.On("ConfirmDonation", mock.Anything, mock.Anything).Return(nil, model.NewPersistenceError("create transaction", errors.New("db down")))

	a, err := c.Submit(context.Background(), donation())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, a.State)
	assert.True(t, a.RecordingFailed)
	assert.Error(t, a.RecordErr)
	assert.Nil(t, a.Err)
	// exactly one record call, the donor is not asked to pay again
	api.AssertNumberOfCalls(t, "ConfirmDonation", 1)
}

func TestCheckout_SingleFlight(t *testing.T) {
	api := new(MockAPI)
	gw := &fakeGateway{ready: true, id: "pi_1", block: make(chan struct{}), entered: make(chan struct{})}
	c := New(api, api, gw)
	api.On("PaymentConfig", mock.Anything).Return(connectedConfig, nil)
	api.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(&model.PaymentIntent{ClientSecret: "cs_1"}, nil).Once()
	api.On("ConfirmDonation", mock.Anything, mock.Anything).Return(&model.ConfirmDonationResult{Success: true, TransactionID: 1}, nil).Once()

	var wg sync.WaitGroup
	var first *Attempt
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = c.Submit(context.Background(), donation())
	}()

	<-gw.entered
	assert.True(t, c.InFlight())
	assert.Equal(t, StateAwaitingGatewayConfirmation, c.State())

	second, err := c.Submit(context.Background(), donation())
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(gw.block)
	wg.Wait()
	require.NotNil(t, first)
	assert.Equal(t, StateSuccess, first.State)
	assert.False(t, c.InFlight())
	api.AssertNumberOfCalls(t, "CreatePaymentIntent", 1)
}
