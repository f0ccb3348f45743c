package handlers

import (
	"context"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/services"
	"github.com/nimasrn/donation-ledger/internal/settings"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
	"github.com/stretchr/testify/mock"
	"github.com/valyala/fasthttp"
)

type MockDonationService struct {
	mock.Mock
}

func (m *MockDonationService) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockDonationService) PaymentConfig(ctx context.Context) (*model.PaymentConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentConfig), args.Error(1)
}

func (m *MockDonationService) ConfirmDonation(ctx context.Context, req model.ConfirmDonationRequest) (*model.ConfirmDonationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmDonationResult), args.Error(1)
}

func (m *MockDonationService) UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) (*model.Transaction, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

type MockCampaignService struct {
	mock.Mock
}

func (m *MockCampaignService) List(ctx context.Context, f model.CampaignFilter) (*services.CampaignList, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CampaignList), args.Error(1)
}

func (m *MockCampaignService) Get(ctx context.Context, id int64) (*model.CampaignView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampaignView), args.Error(1)
}

func (m *MockCampaignService) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.CampaignView, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampaignView), args.Error(1)
}

func (m *MockCampaignService) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCampaignService) BatchDelete(ctx context.Context, ids []int64) *model.BatchDeleteResult {
	return m.Called(ctx, ids).Get(0).(*model.BatchDeleteResult)
}

type MockSettings struct {
	mock.Mock
}

func (m *MockSettings) Get(ctx context.Context) (settings.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(settings.Settings), args.Error(1)
}

func (m *MockSettings) Update(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(settings.Settings), args.Error(1)
}

const testAdminToken = "s3cret"

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func adminContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := setupTestContext(method, path, body)
	ctx.Request.Header.Set(HeaderAdminToken, testAdminToken)
	return ctx
}

// newTestRouter mounts every route the way the API binary does.
func newTestRouter(d DonationService, c CampaignService, s SettingsService) xhttp.RequestHandler {
	r := xhttp.CreateDefaultRouter()
	v1 := r.Group("/api/v1")
	admin := NewAdmin(testAdminToken)
	if d != nil {
		RegisterDonationRoutes(v1, NewDonationHandler(d), admin)
	}
	if c != nil {
		RegisterCampaignRoutes(v1, NewCampaignHandler(c), admin)
	}
	if s != nil {
		RegisterSettingsRoutes(v1, NewSettingsHandler(s), admin)
	}
	return r.Handler
}
