package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/settings"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSettingsHandler_GetHidesToken(t *testing.T) {
	store := new(MockSettings)
	handler := newTestRouter(nil, nil, store)
	store.On("Get", mock.Anything).Return(settings.Settings{Currency: "USD", StripeSiteToken: "tok_secret", StripeAccountID: "acct_1"}, nil)

	ctx := adminContext("GET", "/api/v1/settings", nil)
	handler(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.NotContains(t, string(ctx.Response.Body()), "tok_secret")
	var out settings.Settings
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	assert.Equal(t, "acct_1", out.StripeAccountID)
}

func TestSettingsHandler_Update(t *testing.T) {
	t.Run("applies the patch", func(t *testing.T) {
		store := new(MockSettings)
		handler := newTestRouter(nil, nil, store)
		store.On("Update", mock.Anything, mock.MatchedBy(func(p settings.Patch) bool {
			return p.TipDefaultPercentage != nil && *p.TipDefaultPercentage == 20 && p.Currency == nil
		})).Return(settings.Settings{Currency: "USD", TipDefaultPercentage: 20}, nil)

		ctx := adminContext("PATCH", "/api/v1/settings", []byte(`{"tip_default_percentage":20}`))
		handler(ctx)

		assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
		store.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		store := new(MockSettings)
		handler := newTestRouter(nil, nil, store)
		store.On("Update", mock.Anything, mock.Anything).
			Return(settings.Settings{}, model.NewValidationError(model.CodeInvalidRequest, "currency: the length must be exactly 3.", nil))

		ctx := adminContext("PATCH", "/api/v1/settings", []byte(`{"currency":"EURO"}`))
		handler(ctx)

		assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("not admin", func(t *testing.T) {
		store := new(MockSettings)
		handler := newTestRouter(nil, nil, store)

		ctx := setupTestContext("PATCH", "/api/v1/settings", []byte(`{"currency":"EUR"}`))
		handler(ctx)

		assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())
		assert.Empty(t, store.Calls)
	})
}

func TestAdmin_EmptyTokenDisablesRoutes(t *testing.T) {
	called := false
	h := NewAdmin("").Require(func(*xhttp.RequestCtx) { called = true })

	ctx := setupTestContext("GET", "/api/v1/campaigns", nil)
	ctx.Request.Header.Set(HeaderAdminToken, "")
	h(ctx)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())
}
