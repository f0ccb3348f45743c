package services

import (
	"context"
	"encoding/json"

	gateway "github.com/nimasrn/donation-ledger/internal/gateways"
	"github.com/nimasrn/donation-ledger/internal/idempotency"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/settings"
	"github.com/stretchr/testify/mock"
)

type MockDonorRepository struct {
	mock.Mock
}

func (m *MockDonorRepository) FirstOrCreate(ctx context.Context, d *model.Donor) (*model.Donor, bool, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Donor), args.Bool(1), args.Error(2)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *model.Transaction) (int64, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepository) Read(ctx context.Context, id int64) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByGatewayID(ctx context.Context, gatewayID string) (*model.Transaction, error) {
	args := m.Called(ctx, gatewayID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Update(ctx context.Context, t *model.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) Get(ctx context.Context) (settings.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(settings.Settings), args.Error(1)
}

func (m *MockSettingsStore) Update(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(settings.Settings), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreatePaymentIntent(ctx context.Context, siteToken string, req gateway.IntentRequest) (*gateway.IntentResponse, error) {
	args := m.Called(ctx, siteToken, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.IntentResponse), args.Error(1)
}

type MockConfirmLocker struct {
	mock.Mock
}

func (m *MockConfirmLocker) Acquire(ctx context.Context, id string) (*idempotency.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idempotency.Attempt), args.Error(1)
}

func (m *MockConfirmLocker) MarkSuccess(ctx context.Context, a *idempotency.Attempt, result []byte) error {
	args := m.Called(ctx, a, result)
	return args.Error(0)
}

func (m *MockConfirmLocker) MarkFailure(ctx context.Context, a *idempotency.Attempt, reason error) error {
	args := m.Called(ctx, a, reason)
	return args.Error(0)
}

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) Create(ctx context.Context, c *model.Campaign) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCampaignRepository) Read(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCampaignRepository) BatchDelete(ctx context.Context, ids []int64) ([]int64, map[int64]error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]int64), args.Get(1).(map[int64]error)
}

func (m *MockCampaignRepository) Query(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) Count(ctx context.Context, f model.CampaignFilter) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCampaignRepository) UpdateMeta(ctx context.Context, ownerID int64, key string, value any) error {
	return m.Called(ctx, ownerID, key, value).Error(0)
}

func (m *MockCampaignRepository) AllMeta(ctx context.Context, ownerID int64) (map[string][]json.RawMessage, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]json.RawMessage), args.Error(1)
}
