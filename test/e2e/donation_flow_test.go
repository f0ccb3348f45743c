package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/donation-ledger/internal/checkout"
	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/fees"
	gateway "github.com/nimasrn/donation-ledger/internal/gateways"
	"github.com/nimasrn/donation-ledger/internal/handlers"
	"github.com/nimasrn/donation-ledger/internal/idempotency"
	"github.com/nimasrn/donation-ledger/internal/ledger"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/processor"
	"github.com/nimasrn/donation-ledger/internal/queue"
	"github.com/nimasrn/donation-ledger/internal/repository"
	"github.com/nimasrn/donation-ledger/internal/services"
	"github.com/nimasrn/donation-ledger/internal/settings"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/nimasrn/donation-ledger/pkg/redis"
	"github.com/nimasrn/donation-ledger/test/fixtures"
	"github.com/nimasrn/donation-ledger/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

// widget confirms every client secret and derives the gateway id from it.
type widget struct {
	mu      sync.Mutex
	decline error
	seen    []checkout.BillingDetails
}

func (w *widget) Ready() bool { return true }

func (w *widget) ConfirmPayment(_ context.Context, secret string, billing checkout.BillingDetails) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, billing)
	if w.decline != nil {
		return "", w.decline
	}
	id, _, _ := strings.Cut(secret, "_secret_")
	return id, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type TestEnvironment struct {
	DB           *pg.DB
	Redis        *miniredis.Miniredis
	RedisAdapter redis.RedisAdapter
	Queue        *queue.Queue
	Processor    *processor.ProcessorService
	Recorded     *recorder

	Donors       *repository.DonorRepository
	Campaigns    *repository.CampaignRepository
	Transactions *repository.TransactionRepository
	Settings     *settings.Store

	PaymentAPI *helpers.FakePaymentAPI
	Widget     *widget
	Checkout   *checkout.Checkout
	API        *checkout.HTTPClient
	Dial       fasthttp.DialFunc
}

type envOption func(*settings.Settings)

func disconnected(s *settings.Settings) {
	s.StripeSiteToken = ""
	s.StripeConnectionStatus = settings.ConnectionDisconnected
}

func setupE2EEnvironment(t *testing.T, opts ...envOption) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	mr, redisAdapter := helpers.SetupTestRedis(t)

	queueConfig := queue.QueueConfig{
		Name:              "test:ledger-events",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
	q, err := queue.NewQueue(redisAdapter, queueConfig)
	require.NoError(t, err)
	notifier := events.NewQueuePublisher(q)

	donors := repository.NewDonorRepository(db, notifier)
	campaigns := repository.NewCampaignRepository(db, notifier)
	transactions := repository.NewTransactionRepository(db, ledger.NewAggregator(donors, campaigns), notifier)

	defaults := settings.Settings{
		Currency:               "USD",
		TipEnabled:             true,
		TipDefaultPercentage:   15,
		StripePublishableKey:   fixtures.PublishableKey,
		StripeSiteToken:        fixtures.SiteToken,
		StripeConnectionStatus: settings.ConnectionConnected,
	}
	for _, o := range opts {
		o(&defaults)
	}
	store := settings.NewStore(redisAdapter, defaults, notifier)

	paymentAPI := &helpers.FakePaymentAPI{AccountID: fixtures.AccountID}
	client, err := gateway.NewClient(gateway.Config{
		BaseURL:          "http://payments.local",
		Timeout:          time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Second,
		Dial:             helpers.ServeInMemory(t, paymentAPI.Handler),
	})
	require.NoError(t, err)

	donationService := services.NewDonationService(donors, transactions, store, client,
		idempotency.NewService(redisAdapter, idempotency.DefaultConfig("confirm")), fees.Default(), notifier)
	campaignService := services.NewCampaignService(campaigns)

	engine := xhttp.NewServer(xhttp.DefaultServerOption)
	engine.Use(xhttp.RecoverMiddleware)
	engine.Use(xhttp.RequestIDMiddleware)
	admin := handlers.NewAdmin(fixtures.AdminToken)
	g := engine.Router.Group("/api/v1")
	handlers.RegisterDonationRoutes(g, handlers.NewDonationHandler(donationService), admin)
	handlers.RegisterCampaignRoutes(g, handlers.NewCampaignHandler(campaignService), admin)
	handlers.RegisterSettingsRoutes(g, handlers.NewSettingsHandler(store), admin)
	dial := helpers.ServeInMemory(t, engine.Handler())

	api := checkout.NewHTTPClient("http://ledger.local", 2*time.Second, dial)
	w := &widget{}

	rec := &recorder{}
	bus := events.NewBus()
	bus.SubscribeAll(rec)
	bus.SubscribeAll(processor.AuditHandler())
	proc := processor.NewProcessorService(redisAdapter, processor.Options{Queue: queueConfig, Consumers: 1, Workers: 2})
	proc.RegisterProcessor(processor.NewEventProcessor(bus, idempotency.NewService(redisAdapter, idempotency.DefaultConfig("event"))))
	require.NoError(t, proc.Start())

	env := &TestEnvironment{
		DB:           db,
		Redis:        mr,
		RedisAdapter: redisAdapter,
		Queue:        q,
		Processor:    proc,
		Recorded:     rec,
		Donors:       donors,
		Campaigns:    campaigns,
		Transactions: transactions,
		Settings:     store,
		PaymentAPI:   paymentAPI,
		Widget:       w,
		Checkout:     checkout.New(api, api, w),
		API:          api,
		Dial:         dial,
	}
	t.Cleanup(env.Cleanup)
	return env
}

func (env *TestEnvironment) Cleanup() {
	env.Processor.Stop()
	_ = env.Queue.Stop(time.Second)
}

// call sends a raw request to the ledger API.
func (env *TestEnvironment) call(t *testing.T, method, path, body string, admin bool) (int, []byte) {
	t.Helper()
	c := &fasthttp.Client{Dial: env.Dial}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://ledger.local" + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if admin {
		req.Header.Set(handlers.HeaderAdminToken, fixtures.AdminToken)
	}
	if body != "" {
		req.SetBodyString(body)
	}
	require.NoError(t, c.DoTimeout(req, resp, 2*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func TestDonationFlow_CheckoutRecordsAndAggregates(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()
	campaign := helpers.CreateTestCampaign(t, env.Campaigns, "Clean Water", 100000)

	attempt, err := env.Checkout.Submit(ctx, fixtures.ForCampaign(fixtures.Ada, campaign.ID))
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, attempt.State, attempt.Message)
	assert.False(t, attempt.RecordingFailed)
	assert.Equal(t, []checkout.State{
		checkout.StateIdle,
		checkout.StateCreatingIntent,
		checkout.StateAwaitingGatewayConfirmation,
		checkout.StateRecording,
		checkout.StateSuccess,
	}, attempt.Transitions)

	// the intent carries the donation with fee recovery and the tip, less the
	// processor fee the tip causes
	req := env.PaymentAPI.LastRequest()
	assert.Equal(t, int64(5180+500), req.DonationAmount+req.TipAmount)
	assert.Greater(t, req.DonationAmount, int64(5180))

	tx, err := env.Transactions.Read(ctx, attempt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, int64(5680), tx.TotalAmount)
	require.NotNil(t, tx.CompletedAmount)
	assert.Equal(t, int64(5000), *tx.CompletedAmount)
	assert.NotNil(t, tx.CompletedAt)
	assert.Equal(t, attempt.PaymentIntentID, *tx.GatewayTransactionID)

	donor, err := env.Donors.FindByEmail(ctx, "ada@example.org")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), donor.TotalDonated)
	assert.Equal(t, int64(500), donor.TotalTip)
	assert.Equal(t, int64(1), donor.TransactionCount)

	c, err := env.Campaigns.Read(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), c.TotalRaised)
	assert.Equal(t, int64(1), c.TransactionCount)

	// the connected account seen on the first intent is kept
	st, err := env.Settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixtures.AccountID, st.StripeAccountID)

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return env.Recorded.count(events.DonationConfirmed) == 1 &&
			env.Recorded.count(events.TransactionTransition("pending", "completed")) == 1
	}, "expected the confirmed and completed events to reach the processor")
}

func TestDonationFlow_DuplicateConfirmDoesNotDoubleCount(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	req := fixtures.NewConfirmRequest("pi_dup", "grace@example.org", 2500)
	first, err := env.API.ConfirmDonation(ctx, req)
	require.NoError(t, err)
	second, err := env.API.ConfirmDonation(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, second.Duplicate)

	donor, err := env.Donors.FindByEmail(ctx, "grace@example.org")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), donor.TotalDonated)
	assert.Equal(t, int64(1), donor.TransactionCount)
}

func TestDonationFlow_ConfirmAcceptsGatewayTransactionID(t *testing.T) {
	env := setupE2EEnvironment(t)

	status, body := env.call(t, "POST", "/api/v1/donations/confirm",
		`{"gateway_transaction_id":"pi_gw","donor_email":"lin@example.org","donor_first_name":"Lin","donor_last_name":"Wei","donation_amount":1500}`, false)
	require.Equal(t, http.StatusOK, status, string(body))

	tx, err := env.Transactions.FindByGatewayID(context.Background(), "pi_gw")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, int64(1500), tx.Amount)
}

func TestDonationFlow_ConcurrentConfirmsRecordOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()
	req := fixtures.NewConfirmRequest("pi_race", "race@example.org", 1000)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.API.ConfirmDonation(ctx, req)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		// losers either saw the lock or the recorded transaction
		assert.True(t, model.IsKind(err, model.KindConflict), err)
	}
	assert.GreaterOrEqual(t, ok, 1)

	tx, err := env.Transactions.FindByGatewayID(ctx, "pi_race")
	require.NoError(t, err)
	donor, err := env.Donors.Read(ctx, tx.DonorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), donor.TotalDonated)
	assert.Equal(t, int64(1), donor.TransactionCount)
}

func TestDonationFlow_RefundDebitsTotals(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()
	campaign := helpers.CreateTestCampaign(t, env.Campaigns, "Books", 10000)

	attempt, err := env.Checkout.Submit(ctx, fixtures.ForCampaign(fixtures.Ada, campaign.ID))
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, attempt.State)

	// a fee change after completion must not change what is debited
	tx, err := env.Transactions.Read(ctx, attempt.TransactionID)
	require.NoError(t, err)
	tx.Amount, tx.TotalAmount = 9999, 9999+tx.FeeAmount+tx.TipAmount
	require.NoError(t, env.Transactions.Update(ctx, tx))

	status, body := env.call(t, "PATCH", fmt.Sprintf("/api/v1/transactions/%d/status", attempt.TransactionID), `{"status":"refunded"}`, true)
	require.Equal(t, http.StatusOK, status, string(body))

	var refunded model.Transaction
	require.NoError(t, json.Unmarshal(body, &refunded))
	assert.Equal(t, model.TransactionStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)

	donor, err := env.Donors.FindByEmail(ctx, "ada@example.org")
	require.NoError(t, err)
	assert.Equal(t, int64(0), donor.TotalDonated)
	assert.Equal(t, int64(0), donor.TotalTip)
	assert.Equal(t, int64(0), donor.TransactionCount)

	c, err := env.Campaigns.Read(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.TotalRaised)

	status, _ = env.call(t, "PATCH", fmt.Sprintf("/api/v1/transactions/%d/status", attempt.TransactionID), `{"status":"refunded"}`, false)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestDonationFlow_NotConnectedBlocksBeforeIntent(t *testing.T) {
	env := setupE2EEnvironment(t, disconnected)

	attempt, err := env.Checkout.Submit(context.Background(), fixtures.Grace)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateError, attempt.State)
	assert.True(t, model.IsKind(attempt.Err, model.KindConfiguration))
	assert.Zero(t, env.PaymentAPI.Calls.Load())

	// the server refuses on its own as well
	status, body := env.call(t, "POST", "/api/v1/payment-intents", `{"donation_amount":1000,"tip_amount":0}`, false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), model.CodeStripeNotConnected)
}

func TestDonationFlow_GatewayDeclineRecordsNothing(t *testing.T) {
	env := setupE2EEnvironment(t)
	env.Widget.decline = errors.New("Your card was declined.")

	attempt, err := env.Checkout.Submit(context.Background(), fixtures.Grace)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateError, attempt.State)
	assert.Equal(t, "Your card was declined.", attempt.Message)

	_, err = env.Donors.FindByEmail(context.Background(), "grace@example.org")
	assert.True(t, model.IsNotFound(err))
}

func TestDonationFlow_PaymentAPIDecline(t *testing.T) {
	env := setupE2EEnvironment(t)
	env.PaymentAPI.Decline.Store(true)

	attempt, err := env.Checkout.Submit(context.Background(), fixtures.Grace)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateError, attempt.State)
	assert.Equal(t, "The payment could not be started.", attempt.Message)
	assert.Equal(t, []checkout.State{checkout.StateIdle, checkout.StateCreatingIntent, checkout.StateError}, attempt.Transitions)
}

func TestDonationFlow_InvalidEmailsRejected(t *testing.T) {
	env := setupE2EEnvironment(t)
	for _, email := range fixtures.InvalidEmails {
		_, err := env.API.ConfirmDonation(context.Background(), fixtures.NewConfirmRequest("pi_bad", email, 1000))
		assert.True(t, model.IsKind(err, model.KindValidation), email)
	}
	_, err := env.Transactions.FindByGatewayID(context.Background(), "pi_bad")
	assert.True(t, model.IsNotFound(err))
}

func TestDonationFlow_CampaignAdmin(t *testing.T) {
	env := setupE2EEnvironment(t)

	status, body := env.call(t, "POST", "/api/v1/campaigns",
		`{"title":"Winter Coats","goal_amount":50000,"date_start":"2020-01-01","meta":{"amounts":[1000,2500],"not_a_key":1}}`, true)
	require.Equal(t, http.StatusCreated, status, string(body))
	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "winter-coats", created["slug"])
	assert.Equal(t, string(model.CampaignStatusActive), created["status"])
	meta, _ := created["meta"].(map[string]any)
	assert.Contains(t, meta, model.MetaAmounts)
	assert.NotContains(t, meta, "not_a_key")

	status, _ = env.call(t, "POST", "/api/v1/campaigns", `{"title":"Winter Coats"}`, true)
	require.Equal(t, http.StatusCreated, status)

	status, body = env.call(t, "GET", "/api/v1/campaigns?search=winter&per_page=1", "", true)
	require.Equal(t, http.StatusOK, status)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(body, &items))
	assert.Len(t, items, 1)

	id := int64(created["id"].(float64))
	status, body = env.call(t, "POST", "/api/v1/campaigns/batch-delete", fmt.Sprintf(`{"ids":[%d,424242]}`, id), true)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{"deleted":[%d],"errors":[424242]}`, id), string(body))

	status, _ = env.call(t, "GET", fmt.Sprintf("/api/v1/campaigns/%d", id), "", true)
	assert.Equal(t, http.StatusNotFound, status)
}
