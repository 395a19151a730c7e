package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cardapi/internal/model"
	"cardapi/internal/render"
	"cardapi/internal/service"
)

type MockDeliveryService struct {
	mock.Mock
}

func (m *MockDeliveryService) CreateDelivery(ctx context.Context, in service.CreateDeliveryInput) (*model.DeliveryRecord, error) {
	args := m.Called(ctx, in)
	var rec *model.DeliveryRecord
	if args.Get(0) != nil {
		rec = args.Get(0).(*model.DeliveryRecord)
	}
	return rec, args.Error(1)
}

func (m *MockDeliveryService) Get(ctx context.Context, id string) (*model.DeliveryRecord, error) {
	args := m.Called(ctx, id)
	var rec *model.DeliveryRecord
	if args.Get(0) != nil {
		rec = args.Get(0).(*model.DeliveryRecord)
	}
	return rec, args.Error(1)
}

func (m *MockDeliveryService) List(ctx context.Context, limit, offset int) (*service.DeliveryListResult, error) {
	args := m.Called(ctx, limit, offset)
	var res *service.DeliveryListResult
	if args.Get(0) != nil {
		res = args.Get(0).(*service.DeliveryListResult)
	}
	return res, args.Error(1)
}

type MockDownloadService struct {
	mock.Mock
}

func (m *MockDownloadService) Redeem(ctx context.Context, tok string) (*render.Artifact, error) {
	args := m.Called(ctx, tok)
	var artifact *render.Artifact
	if args.Get(0) != nil {
		artifact = args.Get(0).(*render.Artifact)
	}
	return artifact, args.Error(1)
}
