package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oggyb/outreach-campaigns/internal/cache"
	cacheredis "github.com/oggyb/outreach-campaigns/internal/cache/redis"
	"github.com/oggyb/outreach-campaigns/internal/campaign"
	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/oggyb/outreach-campaigns/internal/metrics"
	"github.com/oggyb/outreach-campaigns/internal/mocks"
	"github.com/oggyb/outreach-campaigns/internal/provider"
	"github.com/oggyb/outreach-campaigns/internal/repository/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const followupBody = "Hi Asha, just a quick follow-up - any questions about our program?"

type fixture struct {
	store   *table.Store
	client  *mocks.ProviderClient
	metrics *metrics.Metrics
	svc     ReconcileService
}

func newFixture(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	store, err := table.Open(filepath.Join(t.TempDir(), "delivery_log.csv"),
		table.Options{ReadRetryDelay: time.Millisecond, Now: func() time.Time { return now }}, zap.NewNop())
	require.NoError(t, err)

	client := &mocks.ProviderClient{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewReconcileService(store, client, Options{
		Cache:   c,
		Metrics: m,
		Now:     func() time.Time { return now },
	}, zap.NewNop())

	return &fixture{store: store, client: client, metrics: m, svc: svc}
}

func (f *fixture) seed(t *testing.T, msgs ...*domain.Message) {
	t.Helper()
	require.NoError(t, f.store.Append(context.Background(), msgs...))
}

func (f *fixture) get(t *testing.T, id string) *domain.Message {
	t.Helper()
	rows, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	for _, m := range rows {
		if m.ID.String() == id {
			return m
		}
	}
	t.Fatalf("record %s not found", id)
	return nil
}

func record(status domain.Status, providerID string, sentAgo time.Duration) *domain.Message {
	return domain.NewMessage("Asha", "+911234567890", "Hi Asha", status, providerID, now.Add(-sentAgo), now.Add(-sentAgo))
}

func TestIngest_CreatesOneRecordPerResult(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	n, err := f.svc.Ingest(ctx, []provider.SendResult{
		{Name: "Asha", Phone: "911234567890", Message: "Hi Asha", Status: provider.StatusQueued, MessageID: "M1", Timestamp: now.Add(-time.Second)},
		{Name: "Asha", Phone: "+911234567890", Message: "Hi again", Status: provider.StatusQueued, MessageID: "M2", Timestamp: now},
		{Name: "Ravi", Phone: "+15550001111", Status: provider.StatusFailed, Error: "timeout"},
		{Name: "Meera", Phone: "+15550002222", Message: "Hi Meera"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rows, err := f.store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "+911234567890", rows[0].Phone)
	assert.Equal(t, rows[0].Phone, rows[1].Phone)
	assert.NotEqual(t, rows[0].ID, rows[1].ID, "same phone yields independent records")
	assert.Equal(t, now.Add(-time.Second), rows[0].SentAt)
	assert.Equal(t, now, rows[0].LastUpdated)

	assert.Equal(t, domain.StatusFailed, rows[2].Status)
	assert.Empty(t, rows[2].Body)
	assert.Empty(t, rows[2].ProviderID)
	assert.Equal(t, now, rows[2].SentAt)

	assert.Equal(t, domain.StatusQueued, rows[3].Status)

	for _, m := range rows {
		assert.Zero(t, m.RetryCount)
		assert.Equal(t, domain.FollowupPending, m.FollowupStatus)
		assert.Empty(t, m.Replies)
	}
}

func TestPollStatus_AppliesReconcilableStatuses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	delivered := record(domain.StatusQueued, "M1", time.Hour)
	unknown := record(domain.StatusQueued, "M2", time.Hour)
	broken := record(domain.StatusQueued, "M3", time.Hour)
	noID := record(domain.StatusQueued, "", time.Hour)
	sent := record(domain.StatusSent, "M4", time.Hour)
	f.seed(t, delivered, unknown, broken, noID, sent)

	f.client.On("Status", mock.Anything, "M1").Return(provider.StatusSent, nil)
	f.client.On("Status", mock.Anything, "M2").Return(provider.StatusUnknown, nil)
	f.client.On("Status", mock.Anything, "M3").Return(provider.StatusUnknown, errors.New("connection refused"))

	n, err := f.svc.PollStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.StatusSent, f.get(t, delivered.ID.String()).Status)
	assert.Equal(t, now, f.get(t, delivered.ID.String()).LastUpdated)

	for _, m := range []*domain.Message{unknown, broken, noID} {
		got := f.get(t, m.ID.String())
		assert.Equal(t, domain.StatusQueued, got.Status)
		assert.Equal(t, m.LastUpdated, got.LastUpdated)
	}
	f.client.AssertNumberOfCalls(t, "Status", 3)
}

func TestPollStatus_IsIdempotentWhenProviderUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusQueued, "M1", time.Hour)
	f.seed(t, m)
	f.client.On("Status", mock.Anything, "M1").Return(provider.StatusQueued, nil)

	for i := 0; i < 2; i++ {
		n, err := f.svc.PollStatus(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	got := f.get(t, m.ID.String())
	assert.Equal(t, m.LastUpdated, got.LastUpdated)
	assert.Equal(t, domain.StatusQueued, got.Status)
}

func TestPollReplies_WindowIsInclusive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	edge := record(domain.StatusSent, "EDGE", time.Hour)
	late := record(domain.StatusSent, "LATE", time.Hour+time.Second)
	future := record(domain.StatusSent, "FUT", -time.Minute)
	queued := record(domain.StatusQueued, "Q", time.Minute)
	f.seed(t, edge, late, future, queued)

	f.client.On("Reply", mock.Anything, "EDGE").
		Return(provider.ReplyResponse{Reply: "Interested!", Timestamp: "2026-03-14 09:29:00"}, nil)

	n, err := f.svc.PollReplies(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.get(t, edge.ID.String())
	assert.Equal(t, domain.StatusReplied, got.Status)
	assert.Equal(t, domain.FollowupNotRequired, got.FollowupStatus)
	assert.Equal(t, []domain.Reply{{Text: "Interested!", Timestamp: "2026-03-14 09:29:00"}}, got.Replies)
	assert.Equal(t, now, got.LastUpdated)

	f.client.AssertNumberOfCalls(t, "Reply", 1)
}

func TestPollReplies_EmptyReplyAndErrorsLeaveRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	silent := record(domain.StatusSent, "S1", time.Minute)
	broken := record(domain.StatusSent, "S2", time.Minute)
	f.seed(t, silent, broken)

	f.client.On("Reply", mock.Anything, "S1").Return(provider.ReplyResponse{}, nil)
	f.client.On("Reply", mock.Anything, "S2").Return(provider.ReplyResponse{}, provider.ErrUnknownMessage)

	n, err := f.svc.PollReplies(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, m := range []*domain.Message{silent, broken} {
		got := f.get(t, m.ID.String())
		assert.Equal(t, domain.StatusSent, got.Status)
		assert.Empty(t, got.Replies)
	}
}

func TestRetryFailed_DueRecordIsResent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusFailed, "OLD", time.Hour)
	m.RetryCount = 2
	due := now.Add(-time.Second)
	m.NextRetryAt = &due
	f.seed(t, m)

	f.client.On("Send", mock.Anything, "+911234567890", "Hi Asha").
		Return(provider.SendResponse{Status: provider.StatusQueued, MessageID: "NEW"}).Once()

	n, err := f.svc.RetryFailed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.get(t, m.ID.String())
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, now.Add(60*time.Second), *got.NextRetryAt)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, "NEW", got.ProviderID)
	assert.Equal(t, now, got.LastUpdated)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues(metrics.KindRetry, "accepted")))

	// Not due again until the backoff has passed.
	n, err = f.svc.RetryFailed(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.client.AssertNumberOfCalls(t, "Send", 1)
}

func TestRetryFailed_FailureKeepsCountingUntilCap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusFailed, "", time.Hour)
	f.seed(t, m)

	f.client.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(provider.SendResponse{Status: provider.StatusFailed, Error: "503"})

	at := now
	for i := 0; i < 8; i++ {
		_, err := f.svc.RetryFailed(ctx, at)
		require.NoError(t, err)
		at = at.Add(time.Minute)
	}

	got := f.get(t, m.ID.String())
	assert.Equal(t, 5, got.RetryCount)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Empty(t, got.ProviderID)
	f.client.AssertNumberOfCalls(t, "Send", 5)
}

func TestRetryFailed_SkipsNotYetDueAndInvalidPayload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	early := record(domain.StatusFailed, "", time.Hour)
	later := now.Add(time.Second)
	early.NextRetryAt = &later
	invalid := record(domain.StatusInvalidPayload, "", time.Hour)
	f.seed(t, early, invalid)

	n, err := f.svc.RetryFailed(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryFailed_InvalidPayloadIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusFailed, "", time.Hour)
	f.seed(t, m)
	f.client.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(provider.SendResponse{Status: provider.StatusInvalidPayload, Error: "malformed"}).Once()

	_, err := f.svc.RetryFailed(ctx, now)
	require.NoError(t, err)
	_, err = f.svc.RetryFailed(ctx, now.Add(time.Hour))
	require.NoError(t, err)

	got := f.get(t, m.ID.String())
	assert.Equal(t, domain.StatusInvalidPayload, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	f.client.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendFollowups_ExactlyOncePerRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusSent, "M1", 11*time.Minute)
	young := record(domain.StatusSent, "M2", 9*time.Minute)
	f.seed(t, m, young)

	f.client.On("Send", mock.Anything, "+911234567890", followupBody).
		Return(provider.SendResponse{Status: provider.StatusQueued, MessageID: "F1"}).Once()

	n, err := f.svc.SendFollowups(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.get(t, m.ID.String())
	assert.Equal(t, domain.FollowupSent, got.FollowupStatus)
	require.NotNil(t, got.FollowupSentAt)
	assert.Equal(t, now, *got.FollowupSentAt)
	assert.Equal(t, followupBody, got.FollowupBody)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Equal(t, "M1", got.ProviderID)

	n, err = f.svc.SendFollowups(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n, "no second follow-up")
	f.client.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendFollowups_FailedAttemptIsNotRepeated(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusSent, "M1", 10*time.Minute)
	f.seed(t, m)
	f.client.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(provider.SendResponse{Status: provider.StatusFailed, Error: "timeout"})

	_, err := f.svc.SendFollowups(ctx, now)
	require.NoError(t, err)
	_, err = f.svc.SendFollowups(ctx, now.Add(time.Hour))
	require.NoError(t, err)

	got := f.get(t, m.ID.String())
	assert.Equal(t, domain.FollowupFailed, got.FollowupStatus)
	f.client.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendFollowups_NeverAfterReply(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusSent, "M1", 30*time.Minute)
	f.seed(t, m)
	f.client.On("Reply", mock.Anything, "M1").
		Return(provider.ReplyResponse{Reply: "Yes", Timestamp: "2026-03-14 09:10:00"}, nil)

	_, err := f.svc.PollReplies(ctx, now)
	require.NoError(t, err)

	n, err := f.svc.SendFollowups(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	got := f.get(t, m.ID.String())
	assert.Equal(t, domain.FollowupNotRequired, got.FollowupStatus)
	f.client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StatusTransitions.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RepliesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues("ok")))
}

func TestRunCycle_StepsRunInOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Delivered during this cycle, then its reply is picked up by the same cycle.
	m := record(domain.StatusQueued, "M1", 20*time.Minute)
	f.seed(t, m)

	f.client.On("Status", mock.Anything, "M1").Return(provider.StatusSent, nil)
	f.client.On("Reply", mock.Anything, "M1").
		Return(provider.ReplyResponse{Reply: "Tell me more", Timestamp: "2026-03-14 09:20:00"}, nil)

	require.NoError(t, f.svc.RunCycle(ctx))

	got := f.get(t, m.ID.String())
	assert.Equal(t, domain.StatusReplied, got.Status)
	assert.Equal(t, domain.FollowupNotRequired, got.FollowupStatus)
	f.client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_PollsStatusThenReplies(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	m := record(domain.StatusQueued, "M1", time.Minute)
	f.seed(t, m)
	f.client.On("Status", mock.Anything, "M1").Return(provider.StatusSent, nil)
	f.client.On("Reply", mock.Anything, "M1").Return(provider.ReplyResponse{}, nil)

	require.NoError(t, f.svc.Refresh(ctx))

	assert.Equal(t, domain.StatusSent, f.get(t, m.ID.String()).Status)
	f.client.AssertNumberOfCalls(t, "Reply", 1)
}

func TestRunCycle_StoreUnavailableSkipsWork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.Mkdir(path, 0o755))
	store, err := table.Open(path, table.Options{ReadRetries: 2, ReadRetryDelay: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	client := &mocks.ProviderClient{}
	svc := NewReconcileService(store, client, Options{Now: func() time.Time { return now }}, zap.NewNop())

	err = svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	client.AssertNotCalled(t, "Status", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_CancelledContextStopsProviderCalls(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, record(domain.StatusFailed, "", time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	f.client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestCache_NotesSendsAndInvalidatesStats(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cacheredis.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })

	f := newFixture(t, c)
	ctx := context.Background()
	require.NoError(t, mr.Set(cache.StatsKey, `{"total":99}`))

	_, err := f.svc.Ingest(ctx, []provider.SendResult{
		{Name: "Asha", Phone: "+1", Message: "hi", Status: provider.StatusQueued, MessageID: "M1", Timestamp: now},
		{Name: "Ravi", Phone: "+2", Message: "hi", Status: provider.StatusFailed, Timestamp: now},
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists(cache.SentMessages.Key("M1")))
	assert.False(t, mr.Exists(cache.StatsKey))
	attempts, err := mr.Get(cache.SendAttemptsKey)
	require.NoError(t, err)
	assert.Equal(t, "2", attempts)
}

func TestCache_NotesFollowupSends(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cacheredis.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })

	f := newFixture(t, c)
	f.seed(t, record(domain.StatusSent, "M1", 11*time.Minute))

	f.client.On("Send", mock.Anything, "+911234567890", followupBody).
		Return(provider.SendResponse{Status: provider.StatusQueued, MessageID: "FU1"}).Once()

	n, err := f.svc.SendFollowups(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, mr.Exists(cache.SentMessages.Key("FU1")))
	attempts, err := mr.Get(cache.SendAttemptsKey)
	require.NoError(t, err)
	assert.Equal(t, "1", attempts)
}

func TestRetryFailed_ResendsBodyOfLeadSkippedByCancelledCampaign(t *testing.T) {
	f := newFixture(t, nil)

	d := campaign.NewDispatcher(f.client, campaign.Templates{campaign.DefaultArea: {"Hi {name}"}}, campaign.FirstPicker{},
		campaign.Options{Now: func() time.Time { return now }}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := d.Dispatch(ctx, []campaign.Lead{{Name: "Asha", Phone: "911234567890"}})

	_, err := f.svc.Ingest(context.Background(), results)
	require.NoError(t, err)

	f.client.On("Send", mock.Anything, "+911234567890", "Hi Asha").
		Return(provider.SendResponse{Status: provider.StatusQueued, MessageID: "NEW"}).Once()

	n, err := f.svc.RetryFailed(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.client.AssertExpectations(t)
}

func TestConcurrentRetryAndFollowupSendOncePerRecord(t *testing.T) {
	f := newFixture(t, nil)

	failed := record(domain.StatusFailed, "OLD", time.Hour)
	silent := record(domain.StatusSent, "M1", 11*time.Minute)
	f.seed(t, failed, silent)

	f.client.On("Send", mock.Anything, "+911234567890", "Hi Asha").
		Return(provider.SendResponse{Status: provider.StatusQueued, MessageID: "NEW"})
	f.client.On("Send", mock.Anything, "+911234567890", followupBody).
		Return(provider.SendResponse{Status: provider.StatusQueued, MessageID: "FU1"})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.RetryFailed(ctx, now)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.SendFollowups(ctx, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f.client.AssertNumberOfCalls(t, "Send", 2)

	got := f.get(t, failed.ID.String())
	assert.Equal(t, 1, got.RetryCount)
	got = f.get(t, silent.ID.String())
	assert.Equal(t, domain.FollowupSent, got.FollowupStatus)
}
