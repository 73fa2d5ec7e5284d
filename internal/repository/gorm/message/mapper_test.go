package messagegorm

import (
	"testing"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestMapper_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	next := now.Add(time.Minute)

	m := message.NewMessage("Asha", "+1", "hi", message.StatusFailed, "M1", now, now)
	m.RetryCount = 2
	m.NextRetryAt = &next
	m.RecordReply("yes", "2026-03-14 09:31:00")

	model, err := fromDomain(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"text":"yes","timestamp":"2026-03-14 09:31:00"}]`, string(model.ReplyHistory))
	assert.Equal(t, "replied", model.Status)

	back, err := toDomain(model)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestMapper_NormalizesLegacyAndEmptyValues(t *testing.T) {
	local := time.FixedZone("IST", 5*3600+1800)
	sent := time.Date(2026, 3, 14, 15, 0, 0, 500, local)

	got, err := toDomain(&MessageModel{
		SentAt:         sent,
		LastUpdated:    sent,
		Status:         "success",
		FollowupStatus: "not_required",
	})
	require.NoError(t, err)

	assert.Equal(t, message.StatusReplied, got.Status)
	assert.Equal(t, time.UTC, got.SentAt.Location())
	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), got.SentAt)
	assert.NotNil(t, got.Replies)
	assert.Empty(t, got.Replies)

	_, err = toDomain(&MessageModel{ReplyHistory: datatypes.JSON(`{broken`)})
	assert.Error(t, err)
}
