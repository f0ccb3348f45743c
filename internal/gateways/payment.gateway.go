package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/prom"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	PathCreatePaymentIntent = "/create-payment-intent"

	endpointCreateIntent = "create_payment_intent"
)

var ErrCircuitOpen = errors.New("payment api circuit is open")

type IntentRequest struct {
	DonationAmount int64 `json:"donation_amount"`
	TipAmount      int64 `json:"tip_amount"`
}

type IntentResponse struct {
	ClientSecret       string `json:"client_secret"`
	ConnectedAccountID string `json:"connected_account_id"`
	Error              string `json:"error,omitempty"`
}

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int

	// The breaker opens after BreakerThreshold consecutive transport or 5xx
	// failures and stays open for BreakerTimeout.
	BreakerThreshold int
	BreakerTimeout   time.Duration

	// Dial overrides the TCP dialer, tests plug an in-memory listener here.
	Dial fasthttp.DialFunc
}

type Metrics struct {
	TotalRequests    atomic.Int64
	FailedRequests   atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32
}

func (m *Metrics) recordSuccess(latency time.Duration) {
	m.TotalRequests.Add(1)
	m.TotalLatencyMs.Add(latency.Milliseconds())
	m.ConsecutiveFails.Store(0)
}

func (m *Metrics) recordFailure(latency time.Duration) int32 {
	m.TotalRequests.Add(1)
	m.FailedRequests.Add(1)
	m.TotalLatencyMs.Add(latency.Milliseconds())
	return m.ConsecutiveFails.Add(1)
}

func (m *Metrics) AvgLatencyMs() int64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / total
}

type Stats struct {
	BaseURL          string
	CircuitOpen      bool
	TotalRequests    int64
	FailedRequests   int64
	AvgLatencyMs     int64
	ConsecutiveFails int32
}

// Client talks to the hosted payment API that owns the gateway credentials.
// Intent creation is a write on the remote side, so it is never retried.
type Client struct {
	config    Config
	http      *fasthttp.Client
	metrics   *Metrics
	openUntil atomic.Int64
}

func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("payment api base url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 64
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		config: config,
		http: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
			Dial:                config.Dial,
		},
		metrics: &Metrics{},
	}
	logger.Info("payment api client initialized", "url", config.BaseURL, "timeout", config.Timeout)
	return c, nil
}

// CreatePaymentIntent asks the payment API for a client secret. Transport
// failures come back as mission_api_error (502); a non-200 answer or a
// response missing the secret or account id as payment_intent_failed with
// the remote message when one was sent.
func (c *Client) CreatePaymentIntent(ctx context.Context, siteToken string, req IntentRequest) (*IntentResponse, error) {
	if c.circuitOpen() {
		return nil, unreachable(ErrCircuitOpen)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal intent request")
	}

	start := time.Now()
	status, respBody, err := c.doRequest(ctx, fasthttp.MethodPost, PathCreatePaymentIntent, siteToken, body)
	latency := time.Since(start)

	if err != nil {
		c.recordFailure(latency)
		prom.AddGatewayDuration(endpointCreateIntent, "unreachable", latency.Seconds())
		logger.Warn("payment api unreachable", "error", err, "latency_ms", latency.Milliseconds())
		return nil, unreachable(err)
	}

	if status >= fasthttp.StatusInternalServerError {
		c.recordFailure(latency)
	} else {
		c.metrics.recordSuccess(latency)
	}

	var resp IntentResponse
	decodeErr := json.Unmarshal(respBody, &resp)

	if status != fasthttp.StatusOK || decodeErr != nil || resp.ClientSecret == "" || resp.ConnectedAccountID == "" {
		prom.AddGatewayDuration(endpointCreateIntent, "rejected", latency.Seconds())
		message := resp.Error
		if message == "" {
			message = "Failed to create payment intent."
		}
		// a 200 without the expected fields is still a bad gateway answer
		code := status
		if code == fasthttp.StatusOK || code == 0 {
			code = http.StatusBadGateway
		}
		logger.Warn("payment intent rejected", "status", status, "message", message)
		return nil, model.NewGatewayError(model.CodePaymentIntentFailed, message, code, decodeErr)
	}

	prom.AddGatewayDuration(endpointCreateIntent, "ok", latency.Seconds())
	logger.Info("payment intent created", "connected_account_id", resp.ConnectedAccountID, "latency_ms", latency.Milliseconds())
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, token string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, errors.Wrap(err, "request failed")
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return resp.StatusCode(), result, nil
}

func (c *Client) recordFailure(latency time.Duration) {
	fails := c.metrics.recordFailure(latency)
	if fails >= int32(c.config.BreakerThreshold) {
		c.openUntil.Store(time.Now().Add(c.config.BreakerTimeout).UnixNano())
		logger.Warn("payment api circuit opened", "consecutive_fails", fails, "timeout", c.config.BreakerTimeout)
	}
}

// circuitOpen closes the breaker again once its timeout passed; the next
// call is the trial request.
func (c *Client) circuitOpen() bool {
	until := c.openUntil.Load()
	if until == 0 {
		return false
	}
	if time.Now().UnixNano() > until {
		c.openUntil.CompareAndSwap(until, 0)
		c.metrics.ConsecutiveFails.Store(0)
		return false
	}
	return true
}

func (c *Client) Stats() Stats {
	return Stats{
		BaseURL:          c.config.BaseURL,
		CircuitOpen:      c.circuitOpen(),
		TotalRequests:    c.metrics.TotalRequests.Load(),
		FailedRequests:   c.metrics.FailedRequests.Load(),
		AvgLatencyMs:     c.metrics.AvgLatencyMs(),
		ConsecutiveFails: c.metrics.ConsecutiveFails.Load(),
	}
}

func unreachable(err error) error {
	return model.NewGatewayError(model.CodeMissionAPIError, "Could not reach the payment API.", http.StatusBadGateway, err)
}
