package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, body []byte) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestDonationHandler_CreatePaymentIntent(t *testing.T) {
	t.Run("returns the client secret", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)
		svc.On("CreatePaymentIntent", mock.Anything, model.PaymentIntentRequest{DonationAmount: 5000, TipAmount: 1000}).
			Return(&model.PaymentIntent{ClientSecret: "cs_1", ConnectedAccountID: "acct_1"}, nil)

		ctx := setupTestContext("POST", "/api/v1/payment-intents", []byte(`{"donation_amount":5000,"tip_amount":1000}`))
		h.CreatePaymentIntent(ctx)

		assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
		var out model.PaymentIntent
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
		assert.Equal(t, "cs_1", out.ClientSecret)
		assert.Equal(t, "acct_1", out.ConnectedAccountID)
		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)

		ctx := setupTestContext("POST", "/api/v1/payment-intents", []byte(`{`))
		h.CreatePaymentIntent(ctx)

		assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, model.CodeInvalidRequest, decodeError(t, ctx.Response.Body()).Code)
		svc.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"not connected", model.NewConfigurationError(model.CodeStripeNotConnected, "Stripe is not connected."), 400, model.CodeStripeNotConnected},
			{"invalid amount", model.NewValidationError(model.CodeInvalidAmount, "too small", nil), 400, model.CodeInvalidAmount},
			{"gateway relay", model.NewGatewayError(model.CodePaymentIntentFailed, "declined", 402, nil), 402, model.CodePaymentIntentFailed},
			{"gateway unreachable", model.NewGatewayError(model.CodeMissionAPIError, "down", 502, errors.New("dial")), 502, model.CodeMissionAPIError},
			{"untyped", errors.New("boom"), 500, model.CodePersistence},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := new(MockDonationService)
				h := NewDonationHandler(svc)
				svc.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(nil, tt.err)

				ctx := setupTestContext("POST", "/api/v1/payment-intents", []byte(`{"donation_amount":100}`))
				h.CreatePaymentIntent(ctx)

				assert.Equal(t, tt.status, ctx.Response.StatusCode())
				assert.Equal(t, tt.code, decodeError(t, ctx.Response.Body()).Code)
			})
		}
	})
}

func TestDonationHandler_PaymentConfig(t *testing.T) {
	svc := new(MockDonationService)
	h := NewDonationHandler(svc)
	svc.On("PaymentConfig", mock.Anything).Return(&model.PaymentConfig{ConnectedAccountID: "acct_1", PublishableKey: "pk_1", Connected: true}, nil)

	ctx := setupTestContext("GET", "/api/v1/payment-config", nil)
	h.GetPaymentConfig(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"connected_account_id":"acct_1","publishable_key":"pk_1","connected":true}`, string(ctx.Response.Body()))
}

func TestDonationHandler_ConfirmDonation(t *testing.T) {
	t.Run("records with the caller ip", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)
		svc.On("ConfirmDonation", mock.Anything, mock.MatchedBy(func(r model.ConfirmDonationRequest) bool {
			return r.PaymentIntentID == "pi_1" && r.DonationAmount == 5000 && r.DonorIP != ""
		})).Return(&model.ConfirmDonationResult{Success: true, TransactionID: 9}, nil)

		body := []byte(`{"payment_intent_id":"pi_1","donor_email":"ada@example.org","donation_amount":5000,"currency":"usd","donor_ip":"6.6.6.6"}`)
		ctx := setupTestContext("POST", "/api/v1/donations/confirm", body)
		h.ConfirmDonation(ctx)

		assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"success":true,"transaction_id":9}`, string(ctx.Response.Body()))
		svc.AssertExpectations(t)
	})

	t.Run("persistence failures hide the cause", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)
		svc.On("ConfirmDonation", mock.Anything, mock.Anything).
			Return(nil, model.NewPersistenceError("create transaction", errors.New("pq: connection refused")))

		ctx := setupTestContext("POST", "/api/v1/donations/confirm", []byte(`{"payment_intent_id":"pi_1"}`))
		h.ConfirmDonation(ctx)

		assert.Equal(t, http.StatusInternalServerError, ctx.Response.StatusCode())
		e := decodeError(t, ctx.Response.Body())
		assert.Equal(t, model.CodePersistence, e.Code)
		assert.NotContains(t, e.Error, "pq:")
	})

	t.Run("confirm in progress", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)
		svc.On("ConfirmDonation", mock.Anything, mock.Anything).
			Return(nil, model.NewConflictError(model.CodeConfirmInProgress, "busy"))

		ctx := setupTestContext("POST", "/api/v1/donations/confirm", []byte(`{"payment_intent_id":"pi_1"}`))
		h.ConfirmDonation(ctx)

		assert.Equal(t, http.StatusConflict, ctx.Response.StatusCode())
	})
}

func TestDonationHandler_UpdateTransactionStatus(t *testing.T) {
	t.Run("requires the admin token", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := newTestRouter(svc, nil, nil)

		ctx := setupTestContext("PATCH", "/api/v1/transactions/5/status", []byte(`{"status":"refunded"}`))
		handler(ctx)

		assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "UpdateTransactionStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("refunds through the router", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := newTestRouter(svc, nil, nil)
		svc.On("UpdateTransactionStatus", mock.Anything, int64(5), model.TransactionStatusRefunded).
			Return(&model.Transaction{ID: 5, Status: model.TransactionStatusRefunded}, nil)

		ctx := adminContext("PATCH", "/api/v1/transactions/5/status", []byte(`{"status":"refunded"}`))
		handler(ctx)

		assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
		var out model.Transaction
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
		assert.Equal(t, model.TransactionStatusRefunded, out.Status)
	})

	t.Run("bad id", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)

		ctx := setupTestContext("PATCH", "/api/v1/transactions/x/status", []byte(`{"status":"refunded"}`))
		ctx.SetUserValue("id", "x")
		h.UpdateTransactionStatus(ctx)

		assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("missing transaction", func(t *testing.T) {
		svc := new(MockDonationService)
		h := NewDonationHandler(svc)
		svc.On("UpdateTransactionStatus", mock.Anything, int64(77), model.TransactionStatusCancelled).
			Return(nil, model.NewNotFoundError("transaction", 77))

		ctx := setupTestContext("PATCH", "/api/v1/transactions/77/status", []byte(`{"status":"cancelled"}`))
		ctx.SetUserValue("id", "77")
		h.UpdateTransactionStatus(ctx)

		assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())
	})
}
