package handler

import (
	"context"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/campaign"
	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/oggyb/outreach-campaigns/internal/provider"
	"github.com/oggyb/outreach-campaigns/internal/scheduler"
	"github.com/oggyb/outreach-campaigns/internal/service"
	"github.com/stretchr/testify/mock"
)

// Test doubles for the handler's collaborators.

type MessageService struct {
	mock.Mock
}

func (m *MessageService) List(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.Message, int, error) {
	args := m.Called(ctx, status, limit, offset)
	items, _ := args.Get(0).([]*domain.Message)
	return items, args.Int(1), args.Error(2)
}

func (m *MessageService) GetByProviderID(ctx context.Context, providerID string) (*domain.Message, error) {
	args := m.Called(ctx, providerID)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *MessageService) Stats(ctx context.Context) (service.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.Stats), args.Error(1)
}

func (m *MessageService) RunCampaign(ctx context.Context, leads []campaign.Lead) (int, int, error) {
	args := m.Called(ctx, leads)
	return args.Int(0), args.Int(1), args.Error(2)
}

type ReconcileService struct {
	mock.Mock
}

func (r *ReconcileService) Ingest(ctx context.Context, results []provider.SendResult) (int, error) {
	args := r.Called(ctx, results)
	return args.Int(0), args.Error(1)
}

func (r *ReconcileService) PollStatus(ctx context.Context) (int, error) {
	args := r.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (r *ReconcileService) PollReplies(ctx context.Context, now time.Time) (int, error) {
	args := r.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (r *ReconcileService) RetryFailed(ctx context.Context, now time.Time) (int, error) {
	args := r.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (r *ReconcileService) SendFollowups(ctx context.Context, now time.Time) (int, error) {
	args := r.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (r *ReconcileService) RunCycle(ctx context.Context) error {
	return r.Called(ctx).Error(0)
}

func (r *ReconcileService) ProcessBatch(ctx context.Context) error {
	return r.Called(ctx).Error(0)
}

func (r *ReconcileService) Refresh(ctx context.Context) error {
	return r.Called(ctx).Error(0)
}

type SchedulerService struct {
	mock.Mock
}

func (s *SchedulerService) Start() error    { return s.Called().Error(0) }
func (s *SchedulerService) Stop() error     { return s.Called().Error(0) }
func (s *SchedulerService) IsRunning() bool { return s.Called().Bool(0) }
func (s *SchedulerService) Close() error    { return s.Called().Error(0) }

var (
	_ service.MessageService     = (*MessageService)(nil)
	_ service.ReconcileService   = (*ReconcileService)(nil)
	_ scheduler.SchedulerService = (*SchedulerService)(nil)
)
