package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	PathPaymentConfig  = "/api/v1/payment-config"
	PathPaymentIntents = "/api/v1/payment-intents"
	PathConfirm        = "/api/v1/donations/confirm"
)

// HTTPClient is the IntentAPI and RecordAPI of a running ledger API.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration, dial fasthttp.DialFunc) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		timeout: timeout,
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                dial,
		},
	}
}

func (c *HTTPClient) PaymentConfig(ctx context.Context) (*model.PaymentConfig, error) {
	var out model.PaymentConfig
	if err := c.do(ctx, fasthttp.MethodGet, PathPaymentConfig, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	var out model.PaymentIntent
	if err := c.do(ctx, fasthttp.MethodPost, PathPaymentIntents, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ConfirmDonation(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error) {
	var out model.ConfirmDonationResult
	if err := c.do(ctx, fasthttp.MethodPost, PathConfirm, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		req.SetBody(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return model.NewGatewayError(model.CodeMissionAPIError, "Could not reach the donation service.", http.StatusBadGateway, err)
	}

	status := resp.StatusCode()
	if status >= 300 {
		var body errorBody
		_ = json.Unmarshal(resp.Body(), &body)
		return apiError(status, body)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// apiError rebuilds the typed error the handler encoded.
func apiError(status int, body errorBody) error {
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	e := &model.Error{Code: body.Code, Message: body.Message, Status: status}
	switch {
	case body.Code == model.CodeStripeNotConnected:
		e.Kind = model.KindConfiguration
	case status == http.StatusNotFound:
		e.Kind = model.KindNotFound
	case status == http.StatusForbidden:
		e.Kind = model.KindPermission
	case status == http.StatusConflict:
		e.Kind = model.KindConflict
	case body.Code == model.CodePaymentIntentFailed || body.Code == model.CodeMissionAPIError,
		status == http.StatusBadGateway:
		e.Kind = model.KindGateway
	case status >= 500:
		e.Kind = model.KindPersistence
	default:
		e.Kind = model.KindValidation
	}
	return e
}
