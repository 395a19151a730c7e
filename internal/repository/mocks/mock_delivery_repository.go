package mocks

import (
	"context"
	"time"

	"cardapi/internal/model"
	"cardapi/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockDeliveryRepository struct {
	mock.Mock
}

func (m *MockDeliveryRepository) Create(ctx context.Context, rec *model.DeliveryRecord) (*model.DeliveryRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRepository) FindByID(ctx context.Context, id string) (*model.DeliveryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRepository) FindByToken(ctx context.Context, token string) (*model.DeliveryRecord, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.DeliveryRecord], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.DeliveryRecord]), args.Error(1)
}

func (m *MockDeliveryRepository) Update(ctx context.Context, rec *model.DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDeliveryRepository) ConsumeDownload(ctx context.Context, token string, now time.Time) (bool, error) {
	args := m.Called(ctx, token, now)
	return args.Bool(0), args.Error(1)
}

type MockCardRepository struct {
	mock.Mock
}

func (m *MockCardRepository) FindByID(ctx context.Context, id string) (*model.Card, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Card), args.Error(1)
}
