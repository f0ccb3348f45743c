package handlers

import (
	"crypto/subtle"

	"github.com/nimasrn/donation-ledger/internal/model"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
)

// Admin guards management routes with a shared token. An empty token
// disables them entirely.
type Admin struct {
	token []byte
}

func NewAdmin(token string) *Admin {
	return &Admin{token: []byte(token)}
}

func (a *Admin) Require(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		got := ctx.Request.Header.Peek(HeaderAdminToken)
		if len(a.token) == 0 || subtle.ConstantTimeCompare(got, a.token) != 1 {
			writeError(ctx, model.NewPermissionError("This action requires administrator access."))
			return
		}
		next(ctx)
	}
}
