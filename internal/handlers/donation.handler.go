package handlers

import (
	"context"

	"github.com/nimasrn/donation-ledger/internal/model"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
)

type DonationService interface {
	CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
	PaymentConfig(ctx context.Context) (*model.PaymentConfig, error)
	ConfirmDonation(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) (*model.Transaction, error)
}

type DonationHandler struct {
	svc DonationService
}

// RegisterDonationRoutes mounts the public checkout routes and the admin
// status route.
func RegisterDonationRoutes(e *xhttp.Group, h *DonationHandler, admin *Admin) {
	e.POST("/payment-intents", h.CreatePaymentIntent)
	e.GET("/payment-config", h.GetPaymentConfig)
	e.POST("/donations/confirm", h.ConfirmDonation)
	e.PATCH("/transactions/{id}/status", admin.Require(h.UpdateTransactionStatus))
}

func NewDonationHandler(svc DonationService) *DonationHandler {
	return &DonationHandler{svc: svc}
}

func (h *DonationHandler) CreatePaymentIntent(ctx *xhttp.RequestCtx) {
	var req model.PaymentIntentRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	intent, err := h.svc.CreatePaymentIntent(ctx, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, intent)
}

func (h *DonationHandler) GetPaymentConfig(ctx *xhttp.RequestCtx) {
	cfg, err := h.svc.PaymentConfig(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cfg)
}

func (h *DonationHandler) ConfirmDonation(ctx *xhttp.RequestCtx) {
	var req model.ConfirmDonationRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	req.DonorIP = ctx.RemoteIP().String()

	res, err := h.svc.ConfirmDonation(ctx, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

type statusRequest struct {
	Status model.TransactionStatus `json:"status"`
}

func (h *DonationHandler) UpdateTransactionStatus(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, err)
		return
	}
	var req statusRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	t, err := h.svc.UpdateTransactionStatus(ctx, id, req.Status)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, t)
}
