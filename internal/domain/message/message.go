// Package message holds the domain model and invariants for tracked campaign messages.
package message

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery status of a tracked message.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusSent           Status = "sent"
	StatusFailed         Status = "failed"
	StatusInvalidPayload Status = "invalid_payload"
	StatusUnknown        Status = "unknown"
	// StatusReplied is terminal: the recipient answered.
	StatusReplied Status = "replied"
)

// FollowupStatus tracks the single follow-up a record may receive.
type FollowupStatus string

const (
	FollowupPending     FollowupStatus = "pending"
	FollowupSent        FollowupStatus = "sent"
	FollowupFailed      FollowupStatus = "failed"
	FollowupNotRequired FollowupStatus = "not_required"
)

// TimeLayout is the fixed format used when timestamps are persisted as text.
const TimeLayout = "2006-01-02 15:04:05"

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("message record not found")
	// ErrStoreUnavailable is returned when the storage medium could not be read
	// after the configured number of attempts.
	ErrStoreUnavailable = errors.New("message store unavailable")
)

// Reply is one inbound answer from the recipient, as reported by the provider.
type Reply struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Message is one tracked send attempt and its lifecycle state.
type Message struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	Body           string
	SentAt         time.Time
	Status         Status
	ProviderID     string
	LastUpdated    time.Time
	RetryCount     int
	NextRetryAt    *time.Time
	FollowupStatus FollowupStatus
	FollowupSentAt *time.Time
	FollowupBody   string
	Replies        []Reply
}

// Timestamp normalizes t to the precision the store persists: UTC, whole seconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// NewMessage builds a freshly dispatched record. An empty status defaults to queued.
func NewMessage(name, phone, body string, status Status, providerID string, sentAt, now time.Time) *Message {
	if status == "" {
		status = StatusQueued
	}
	if sentAt.IsZero() {
		sentAt = now
	}

	return &Message{
		ID:             uuid.New(),
		Name:           name,
		Phone:          phone,
		Body:           body,
		SentAt:         Timestamp(sentAt),
		Status:         status,
		ProviderID:     providerID,
		LastUpdated:    Timestamp(now),
		FollowupStatus: FollowupPending,
		Replies:        []Reply{},
	}
}

// HasReplies reports whether the recipient has answered at least once.
func (m *Message) HasReplies() bool {
	return len(m.Replies) > 0
}

// AwaitingStatus reports whether the provider should be asked for a fresher status.
func (m *Message) AwaitingStatus() bool {
	return m.Status == StatusQueued && m.ProviderID != ""
}

// InReplyWindow reports whether a delivered, unanswered message is still young
// enough to be checked for a reply. The window bound is inclusive.
func (m *Message) InReplyWindow(now time.Time, window time.Duration) bool {
	if m.Status != StatusSent || m.HasReplies() || m.ProviderID == "" {
		return false
	}
	elapsed := now.Sub(m.SentAt)
	return elapsed >= 0 && elapsed <= window
}

// CanRetry reports whether a failed record is due for another send attempt.
func (m *Message) CanRetry(now time.Time, maxRetries int) bool {
	if m.Status != StatusFailed || m.RetryCount >= maxRetries {
		return false
	}
	return m.NextRetryAt == nil || !m.NextRetryAt.After(now)
}

// NeedsFollowup reports whether a delivered record has stayed silent long enough
// to receive its one follow-up.
func (m *Message) NeedsFollowup(now time.Time, delay time.Duration) bool {
	if m.Status != StatusSent || m.HasReplies() || m.FollowupStatus != FollowupPending {
		return false
	}
	return now.Sub(m.SentAt) >= delay
}

// RecordReply appends a reply and moves the record to its terminal replied state.
// The status is overwritten whatever it was before.
func (m *Message) RecordReply(text, timestamp string) {
	m.Replies = append(m.Replies, Reply{Text: text, Timestamp: timestamp})
	m.Status = StatusReplied
	m.FollowupStatus = FollowupNotRequired
}

// ApplyRetry records the outcome of a retry send and schedules the next window.
func (m *Message) ApplyRetry(status Status, providerID string, now time.Time, backoff time.Duration) {
	if status == "" {
		status = StatusFailed
	}
	next := Timestamp(now.Add(backoff))
	m.Status = status
	m.ProviderID = providerID
	m.RetryCount++
	m.NextRetryAt = &next
}

// ApplyFollowup records the one follow-up attempt. A follow-up never moves back
// to pending.
func (m *Message) ApplyFollowup(body string, delivered bool, now time.Time) {
	sentAt := Timestamp(now)
	m.FollowupBody = body
	m.FollowupSentAt = &sentAt
	if delivered {
		m.FollowupStatus = FollowupSent
	} else {
		m.FollowupStatus = FollowupFailed
	}
}

// Clone returns a deep copy that shares no memory with m.
func (m *Message) Clone() *Message {
	c := *m
	if m.NextRetryAt != nil {
		t := *m.NextRetryAt
		c.NextRetryAt = &t
	}
	if m.FollowupSentAt != nil {
		t := *m.FollowupSentAt
		c.FollowupSentAt = &t
	}
	c.Replies = make([]Reply, len(m.Replies))
	copy(c.Replies, m.Replies)
	return &c
}

// CloneAll deep-copies a slice of records.
func CloneAll(msgs []*Message) []*Message {
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ParseStatus maps a persisted status string to a Status. The legacy value
// "success" is read as replied.
func ParseStatus(s string) Status {
	if s == "success" {
		return StatusReplied
	}
	return Status(s)
}
