package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/services"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
)

type CampaignService interface {
	List(ctx context.Context, f model.CampaignFilter) (*services.CampaignList, error)
	Get(ctx context.Context, id int64) (*model.CampaignView, error)
	Create(ctx context.Context, req model.CampaignCreateRequest) (*model.CampaignView, error)
	Delete(ctx context.Context, id int64) error
	BatchDelete(ctx context.Context, ids []int64) *model.BatchDeleteResult
}

type CampaignHandler struct {
	svc CampaignService
}

// RegisterCampaignRoutes mounts the campaign routes, all of them admin only.
func RegisterCampaignRoutes(e *xhttp.Group, h *CampaignHandler, admin *Admin) {
	e.GET("/campaigns", admin.Require(h.ListCampaigns))
	e.POST("/campaigns", admin.Require(h.CreateCampaign))
	e.POST("/campaigns/batch-delete", admin.Require(h.BatchDeleteCampaigns))
	e.GET("/campaigns/{id}", admin.Require(h.GetCampaign))
	e.DELETE("/campaigns/{id}", admin.Require(h.DeleteCampaign))
}

func NewCampaignHandler(svc CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc}
}

func (h *CampaignHandler) ListCampaigns(ctx *xhttp.RequestCtx) {
	f := model.CampaignFilter{
		Page: model.Page{
			Page:    queryInt(ctx, "page"),
			PerPage: queryInt(ctx, "per_page"),
			OrderBy: query(ctx, "orderby"),
			Order:   query(ctx, "order"),
		},
		Search: strings.TrimSpace(query(ctx, "search")),
		Status: model.CampaignStatus(query(ctx, "status")),
	}
	if v := query(ctx, "after"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "before"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}

	list, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, err)
		return
	}
	setTotals(ctx, list.Total, list.TotalPages)
	writeJSON(ctx, xhttp.StatusOK, list.Items)
}

func (h *CampaignHandler) GetCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, err)
		return
	}
	view, err := h.svc.Get(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, view)
}

type createCampaignRequest struct {
	Title      string                     `json:"title"`
	Slug       string                     `json:"slug"`
	Excerpt    string                     `json:"excerpt"`
	GoalAmount int64                      `json:"goal_amount"`
	Currency   string                     `json:"currency"`
	DateStart  string                     `json:"date_start"`
	DateEnd    string                     `json:"date_end"`
	Meta       map[string]json.RawMessage `json:"meta"`
}

func (h *CampaignHandler) CreateCampaign(ctx *xhttp.RequestCtx) {
	var req createCampaignRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	p := model.CampaignCreateRequest{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Excerpt,
		GoalAmount:  req.GoalAmount,
		Currency:    req.Currency,
		Meta:        req.Meta,
	}
	var err error
	if p.DateStart, err = optionalDate("date_start", req.DateStart); err != nil {
		writeError(ctx, err)
		return
	}
	if p.DateEnd, err = optionalDate("date_end", req.DateEnd); err != nil {
		writeError(ctx, err)
		return
	}

	view, err := h.svc.Create(ctx, p)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, view)
}

func (h *CampaignHandler) DeleteCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"deleted": true, "id": id})
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *CampaignHandler) BatchDeleteCampaigns(ctx *xhttp.RequestCtx) {
	var req batchDeleteRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(ctx, model.NewValidationError(model.CodeInvalidRequest, "ids must not be empty", nil))
		return
	}
	writeJSON(ctx, xhttp.StatusOK, h.svc.BatchDelete(ctx, req.IDs))
}

func optionalDate(field, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, model.NewValidationError(model.CodeInvalidRequest, field+" must be YYYY-MM-DD or RFC3339", err)
	}
	t = t.UTC()
	return &t, nil
}
