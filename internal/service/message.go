package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/cache"
	"github.com/oggyb/outreach-campaigns/internal/campaign"
	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/oggyb/outreach-campaigns/internal/provider"
	"go.uber.org/zap"
)

// ErrNoLeads is returned when a campaign is launched without recipients.
var ErrNoLeads = errors.New("campaign has no leads")

// Stats are the dashboard counters over the whole table.
type Stats struct {
	Total         int   `json:"total"`
	Delivered     int   `json:"delivered"`
	Failed        int   `json:"failed"`
	Queued        int   `json:"queued"`
	Replies       int   `json:"replies"`
	FollowupsSent int   `json:"followups_sent"`
	SendAttempts  int64 `json:"send_attempts"`
}

// Dispatcher sends one message per lead.
type Dispatcher interface {
	Dispatch(ctx context.Context, leads []campaign.Lead) []provider.SendResult
}

// MessageService serves read access to the records and launches campaigns.
type MessageService interface {
	List(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.Message, int, error)
	GetByProviderID(ctx context.Context, providerID string) (*domain.Message, error)
	Stats(ctx context.Context) (Stats, error)
	RunCampaign(ctx context.Context, leads []campaign.Lead) (queued, total int, err error)
}

type messageService struct {
	repo       domain.Repository
	dispatcher Dispatcher
	engine     ReconcileService
	cache      cache.Cache
	statsTTL   time.Duration
	logger     *zap.Logger
}

// NewMessageService creates a message service. A nil cache disables caching.
func NewMessageService(
	repo domain.Repository,
	dispatcher Dispatcher,
	engine ReconcileService,
	c cache.Cache,
	statsTTL time.Duration,
	logger *zap.Logger,
) MessageService {
	if c == nil {
		c = cache.Noop{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &messageService{
		repo:       repo,
		dispatcher: dispatcher,
		engine:     engine,
		cache:      c,
		statsTTL:   statsTTL,
		logger:     logger,
	}
}

// List returns one page of records, optionally filtered by status, plus the
// number of matching records.
func (s *messageService) List(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.Message, int, error) {
	rows, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}

	if status != "" {
		filtered := rows[:0]
		for _, m := range rows {
			if m.Status == status {
				filtered = append(filtered, m)
			}
		}
		rows = filtered
	}

	total := len(rows)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*domain.Message{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return rows[offset:end], total, nil
}

func (s *messageService) GetByProviderID(ctx context.Context, providerID string) (*domain.Message, error) {
	return s.repo.FindByProviderID(ctx, providerID)
}

// Stats serves counters from the cache when present, computing and caching
// them otherwise.
func (s *messageService) Stats(ctx context.Context) (Stats, error) {
	if raw, err := s.cache.Get(ctx, cache.StatsKey); err == nil {
		var st Stats
		if json.Unmarshal([]byte(raw), &st) == nil {
			return st, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Debug("stats cache read failed", zap.Error(err))
	}

	rows, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Total: len(rows)}
	for _, m := range rows {
		switch m.Status {
		case domain.StatusSent:
			st.Delivered++
		case domain.StatusFailed:
			st.Failed++
		case domain.StatusQueued:
			st.Queued++
		}
		st.Replies += len(m.Replies)
		if m.FollowupStatus == domain.FollowupSent {
			st.FollowupsSent++
		}
	}

	if raw, err := s.cache.Get(ctx, cache.SendAttemptsKey); err == nil {
		st.SendAttempts, _ = strconv.ParseInt(raw, 10, 64)
	}

	if raw, err := json.Marshal(st); err == nil {
		if err := s.cache.Set(ctx, cache.StatsKey, string(raw), s.statsTTL); err != nil {
			s.logger.Debug("stats cache write failed", zap.Error(err))
		}
	}
	return st, nil
}

// RunCampaign sends to every lead and ingests the results. It reports how many
// sends the provider accepted out of the total.
func (s *messageService) RunCampaign(ctx context.Context, leads []campaign.Lead) (int, int, error) {
	if len(leads) == 0 {
		return 0, 0, ErrNoLeads
	}

	results := s.dispatcher.Dispatch(ctx, leads)

	// Record results even if the caller went away mid-dispatch; the sends happened.
	if _, err := s.engine.Ingest(context.WithoutCancel(ctx), results); err != nil {
		return 0, len(results), fmt.Errorf("run campaign: %w", err)
	}

	queued := 0
	for _, r := range results {
		if r.Status == provider.StatusQueued || r.Status == provider.StatusSent {
			queued++
		}
	}
	return queued, len(results), nil
}
