package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
	"github.com/nimasrn/donation-ledger/pkg/logger"
)

const (
	HeaderTotal      = "X-Total"
	HeaderTotalPages = "X-TotalPages"
	HeaderAdminToken = "X-Admin-Token"
)

type errorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

// writeError maps err onto its HTTP status. Untyped errors are treated as
// internal and never leak their text.
func writeError(ctx *xhttp.RequestCtx, err error) {
	e, ok := model.AsError(err)
	if !ok {
		e = model.NewPersistenceError("internal error", err)
	}
	if e.Kind == model.KindPersistence {
		logger.Error("request failed", "path", string(ctx.Path()), "request_id", xhttp.RequestID(ctx), "error", err)
		writeJSON(ctx, e.HTTPStatus(), errorResponse{Code: e.Code, Error: "Could not save the donation data. Please try again."})
		return
	}
	writeJSON(ctx, e.HTTPStatus(), errorResponse{Code: e.Code, Error: e.Message})
}

func badJSON(ctx *xhttp.RequestCtx, err error) {
	writeError(ctx, model.NewValidationError(model.CodeInvalidRequest, "invalid JSON: "+err.Error(), err))
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, model.NewValidationError(model.CodeInvalidRequest, "invalid "+name, err)
	}
	return id, nil
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, _ := strconv.Atoi(query(ctx, key))
	return n
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func setTotals(ctx *xhttp.RequestCtx, total, pages int64) {
	ctx.Response.Header.Set(HeaderTotal, strconv.FormatInt(total, 10))
	ctx.Response.Header.Set(HeaderTotalPages, strconv.FormatInt(pages, 10))
}
