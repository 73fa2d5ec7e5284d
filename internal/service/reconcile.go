package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/cache"
	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/oggyb/outreach-campaigns/internal/metrics"
	"github.com/oggyb/outreach-campaigns/internal/provider"
	"go.uber.org/zap"
)

// ReconcileService keeps message records in step with the provider and drives
// retries and follow-ups. Every operation runs as one store transaction, so
// concurrent callers never interleave on the same records.
type ReconcileService interface {
	// Ingest records one new message per send result.
	Ingest(ctx context.Context, results []provider.SendResult) (int, error)
	// PollStatus refreshes queued records from the provider.
	PollStatus(ctx context.Context) (int, error)
	// PollReplies records replies to recently sent messages.
	PollReplies(ctx context.Context, now time.Time) (int, error)
	// RetryFailed re-sends failed records that are due.
	RetryFailed(ctx context.Context, now time.Time) (int, error)
	// SendFollowups sends the single follow-up to silent recipients.
	SendFollowups(ctx context.Context, now time.Time) (int, error)
	// RunCycle runs one monitor cycle.
	RunCycle(ctx context.Context) error
	// ProcessBatch is RunCycle, for the scheduler.
	ProcessBatch(ctx context.Context) error
	// Refresh polls statuses and then replies.
	Refresh(ctx context.Context) error
}

// Options carries the optional collaborators of the engine.
type Options struct {
	Policy Policy
	// Cache receives sent-message notes and has its stats key invalidated
	// after mutations. Nil disables it.
	Cache    cache.Cache
	CacheTTL time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type reconcileService struct {
	repo     domain.Repository
	client   provider.Client
	cache    cache.Cache
	cacheTTL time.Duration
	policy   Policy
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewReconcileService wires the engine. Zero Options fields use defaults.
func NewReconcileService(repo domain.Repository, client provider.Client, opts Options, logger *zap.Logger) ReconcileService {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reconcileService{
		repo:     repo,
		client:   client,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		policy:   opts.Policy.withDefaults(),
		metrics:  opts.Metrics,
		now:      opts.Now,
		logger:   logger,
	}
}

// sentNote is the cached side-index entry for one provider send.
type sentNote struct {
	Phone  string    `json:"phone"`
	Status string    `json:"status"`
	SentAt time.Time `json:"sent_at"`
}

func (s *reconcileService) Ingest(ctx context.Context, results []provider.SendResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	now := domain.Timestamp(s.now())

	msgs := make([]*domain.Message, 0, len(results))
	for _, r := range results {
		status := domain.Status(r.Status)
		if status == "" {
			status = domain.StatusQueued
		}
		msgs = append(msgs, domain.NewMessage(
			r.Name,
			provider.NormalizePhone(r.Phone),
			r.Message,
			status,
			r.MessageID,
			r.Timestamp,
			now,
		))
	}

	err := s.repo.Transact(ctx, func(t *domain.Table) error {
		t.Append(msgs...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}

	for _, m := range msgs {
		s.metrics.RecordSend(metrics.KindInitial, m.Status == domain.StatusQueued || m.Status == domain.StatusSent)
		s.noteSent(ctx, m.ProviderID, m.Phone, m.Status, m.SentAt, true)
	}
	s.invalidateStats(ctx)

	s.logger.Info("ingested send results", zap.Int("records", len(msgs)))
	return len(msgs), nil
}

func (s *reconcileService) PollStatus(ctx context.Context) (int, error) {
	return s.pollStatus(ctx, s.now())
}

func (s *reconcileService) pollStatus(ctx context.Context, now time.Time) (int, error) {
	return s.transact(ctx, "poll status", func(t *domain.Table) (int, error) {
		var n int
		for _, m := range t.Where((*domain.Message).AwaitingStatus) {
			if ctx.Err() != nil {
				break
			}

			status, err := s.client.Status(ctx, m.ProviderID)
			if err != nil {
				s.logger.Warn("status poll failed",
					zap.String("providerID", m.ProviderID),
					zap.Error(err))
				continue
			}

			next, ok := reconcilable(status)
			if !ok || next == m.Status {
				continue
			}

			s.logger.Info("delivery status changed",
				zap.String("providerID", m.ProviderID),
				zap.String("from", string(m.Status)),
				zap.String("to", string(next)))
			m.Status = next
			t.Touch(m, now)
			s.metrics.RecordStatusTransition(string(next))
			n++
		}
		return n, nil
	})
}

func (s *reconcileService) PollReplies(ctx context.Context, now time.Time) (int, error) {
	return s.transact(ctx, "poll replies", func(t *domain.Table) (int, error) {
		var n int
		eligible := t.Where(func(m *domain.Message) bool {
			return m.InReplyWindow(now, s.policy.ReplyWindow)
		})
		for _, m := range eligible {
			if ctx.Err() != nil {
				break
			}

			reply, err := s.client.Reply(ctx, m.ProviderID)
			if err != nil {
				s.logger.Warn("reply poll failed",
					zap.String("providerID", m.ProviderID),
					zap.Error(err))
				continue
			}
			if strings.TrimSpace(reply.Reply) == "" {
				continue
			}

			s.logger.Info("reply received", zap.String("providerID", m.ProviderID))
			m.RecordReply(reply.Reply, reply.Timestamp)
			t.Touch(m, now)
			s.metrics.RecordReply()
			n++
		}
		return n, nil
	})
}

func (s *reconcileService) RetryFailed(ctx context.Context, now time.Time) (int, error) {
	var notes []*domain.Message

	n, err := s.transact(ctx, "retry failed", func(t *domain.Table) (int, error) {
		var n int
		eligible := t.Where(func(m *domain.Message) bool {
			return m.CanRetry(now, s.policy.MaxRetries)
		})
		for _, m := range eligible {
			if ctx.Err() != nil {
				break
			}

			resp := s.client.Send(ctx, m.Phone, m.Body)
			m.ApplyRetry(domain.Status(resp.Status), resp.MessageID, now, s.policy.RetryBackoff)
			t.Touch(m, now)
			s.metrics.RecordSend(metrics.KindRetry, resp.Accepted())
			n++

			s.logger.Info("retried failed message",
				zap.String("phone", m.Phone),
				zap.Int("retryCount", m.RetryCount),
				zap.String("status", string(m.Status)),
				zap.String("error", resp.Error))
			notes = append(notes, m.Clone())
		}
		return n, nil
	})

	for _, m := range notes {
		s.noteSent(ctx, m.ProviderID, m.Phone, m.Status, now, true)
	}
	return n, err
}

func (s *reconcileService) SendFollowups(ctx context.Context, now time.Time) (int, error) {
	type followupNote struct {
		providerID string
		phone      string
		status     domain.Status
	}
	var notes []followupNote

	n, err := s.transact(ctx, "send followups", func(t *domain.Table) (int, error) {
		var n int
		eligible := t.Where(func(m *domain.Message) bool {
			return m.NeedsFollowup(now, s.policy.FollowupDelay)
		})
		for _, m := range eligible {
			if ctx.Err() != nil {
				break
			}

			body := strings.ReplaceAll(s.policy.FollowupTemplate, "{name}", m.Name)
			resp := s.client.Send(ctx, m.Phone, body)
			m.ApplyFollowup(body, resp.Accepted(), now)
			t.Touch(m, now)
			s.metrics.RecordSend(metrics.KindFollowup, resp.Accepted())
			n++
			notes = append(notes, followupNote{resp.MessageID, m.Phone, domain.Status(resp.Status)})

			s.logger.Info("follow-up attempted",
				zap.String("phone", m.Phone),
				zap.String("followupStatus", string(m.FollowupStatus)),
				zap.String("error", resp.Error))
		}
		return n, nil
	})

	for _, fn := range notes {
		s.noteSent(ctx, fn.providerID, fn.phone, fn.status, now, true)
	}
	return n, err
}

func (s *reconcileService) RunCycle(ctx context.Context) (err error) {
	now := s.now()
	start := time.Now()
	defer func() { s.metrics.RecordCycle(time.Since(start), err) }()

	steps := []struct {
		name string
		run  func() (int, error)
	}{
		{"poll status", func() (int, error) { return s.pollStatus(ctx, now) }},
		{"retry failed", func() (int, error) { return s.RetryFailed(ctx, now) }},
		{"poll replies", func() (int, error) { return s.PollReplies(ctx, now) }},
		{"send followups", func() (int, error) { return s.SendFollowups(ctx, now) }},
	}

	var errs []error
	for _, step := range steps {
		n, err := step.run()
		if err != nil {
			s.logger.Error("monitor step failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			s.logger.Info("monitor step", zap.String("step", step.name), zap.Int("changed", n))
		}
	}
	return errors.Join(errs...)
}

func (s *reconcileService) ProcessBatch(ctx context.Context) error {
	return s.RunCycle(ctx)
}

func (s *reconcileService) Refresh(ctx context.Context) error {
	now := s.now()
	if _, err := s.pollStatus(ctx, now); err != nil {
		return err
	}
	_, err := s.PollReplies(ctx, now)
	return err
}

// transact runs fn in one store transaction, invalidates cached stats when
// something changed and reports a cancelled context after persisting the
// work done so far.
func (s *reconcileService) transact(ctx context.Context, op string, fn func(t *domain.Table) (int, error)) (int, error) {
	var changed int
	err := s.repo.Transact(ctx, func(t *domain.Table) error {
		n, err := fn(t)
		changed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if changed > 0 {
		s.invalidateStats(ctx)
	}
	if err := ctx.Err(); err != nil {
		return changed, fmt.Errorf("%s interrupted: %w", op, err)
	}
	return changed, nil
}

// reconcilable maps a polled provider status to a record status. Unknown and
// unexpected answers are not applied.
func reconcilable(s provider.Status) (domain.Status, bool) {
	switch s {
	case provider.StatusQueued:
		return domain.StatusQueued, true
	case provider.StatusSent:
		return domain.StatusSent, true
	case provider.StatusFailed:
		return domain.StatusFailed, true
	default:
		return "", false
	}
}

// noteSent indexes a provider send in the cache. Cache failures are logged only.
func (s *reconcileService) noteSent(ctx context.Context, providerID, phone string, status domain.Status, sentAt time.Time, attempt bool) {
	if attempt {
		s.countSend(ctx)
	}
	if providerID == "" {
		return
	}

	raw, err := json.Marshal(sentNote{Phone: phone, Status: string(status), SentAt: sentAt.UTC()})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.SentMessages.Key(providerID), string(raw), s.cacheTTL); err != nil {
		s.logger.Debug("cache sent message failed", zap.String("providerID", providerID), zap.Error(err))
	}
}

func (s *reconcileService) countSend(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, cache.SendAttemptsKey); err != nil {
		s.logger.Debug("cache send counter failed", zap.Error(err))
	}
}

func (s *reconcileService) invalidateStats(ctx context.Context) {
	if err := s.cache.Del(ctx, cache.StatsKey); err != nil {
		s.logger.Debug("cache stats invalidation failed", zap.Error(err))
	}
}
