package mocks

import (
	"context"

	"github.com/oggyb/outreach-campaigns/internal/provider"
	"github.com/stretchr/testify/mock"
)

type ProviderClient struct {
	mock.Mock
}

func (p *ProviderClient) Send(ctx context.Context, phone, body string) provider.SendResponse {
	args := p.Called(ctx, phone, body)
	return args.Get(0).(provider.SendResponse)
}

func (p *ProviderClient) Status(ctx context.Context, messageID string) (provider.Status, error) {
	args := p.Called(ctx, messageID)
	return args.Get(0).(provider.Status), args.Error(1)
}

func (p *ProviderClient) Reply(ctx context.Context, messageID string) (provider.ReplyResponse, error) {
	args := p.Called(ctx, messageID)
	return args.Get(0).(provider.ReplyResponse), args.Error(1)
}

func (p *ProviderClient) Health(ctx context.Context) error {
	args := p.Called(ctx)
	return args.Error(0)
}

var _ provider.Client = (*ProviderClient)(nil)
