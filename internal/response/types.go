package response

import (
	"time"

	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
)

type WelcomePayload struct {
	Message string `json:"message"`
}

type HealthPayload struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

type WelcomeResponse struct {
	Success   bool           `json:"success"`
	Data      WelcomePayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type HealthResponse struct {
	Success   bool          `json:"success"`
	Data      HealthPayload `json:"data"`
	Timestamp string        `json:"timestamp"`
}

type SchedulerControlPayload struct {
	Message string `json:"message"`
	Running bool   `json:"running"`
}

type SchedulerControlResponse struct {
	Success   bool                    `json:"success"`
	Data      SchedulerControlPayload `json:"data"`
	Timestamp string                  `json:"timestamp"`
}

// OperationPayload is the generic completion signal of manual operations.
// Per-record outcomes are only visible through the message list.
type OperationPayload struct {
	Message string `json:"message"`
}

type OperationResponse struct {
	Success   bool             `json:"success"`
	Data      OperationPayload `json:"data"`
	Timestamp string           `json:"timestamp"`
}

type CampaignPayload struct {
	Queued int `json:"queued"`
	Total  int `json:"total"`
}

type CampaignResponse struct {
	Success   bool            `json:"success"`
	Data      CampaignPayload `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// ReplyDTO is one recipient reply.
type ReplyDTO struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// MessageDTO is a public-facing representation of a tracked message
// used in API responses. It decouples the wire format from
// the domain entity and plays nicely with Swagger.
type MessageDTO struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Message         string     `json:"message"`
	SentAt          time.Time  `json:"sentAt"`
	Status          string     `json:"status"`
	MessageID       string     `json:"messageId,omitempty"`
	LastUpdated     time.Time  `json:"lastUpdated"`
	RetryCount      int        `json:"retryCount"`
	NextRetryAt     *time.Time `json:"nextRetryAt,omitempty"`
	FollowupStatus  string     `json:"followupStatus"`
	FollowupSentAt  *time.Time `json:"followupSentAt,omitempty"`
	FollowupMessage string     `json:"followupMessage,omitempty"`
	Replies         []ReplyDTO `json:"replies"`
}

type MessagePayload struct {
	Item MessageDTO `json:"item"`
}

type MessageResponse struct {
	Success   bool           `json:"success"`
	Data      MessagePayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type MessagesPayload struct {
	Items  []MessageDTO `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type MessagesResponse struct {
	Success   bool            `json:"success"`
	Data      MessagesPayload `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// StatsPayload mirrors the campaign dashboard counters.
type StatsPayload struct {
	Total         int   `json:"total"`
	Delivered     int   `json:"delivered"`
	Failed        int   `json:"failed"`
	Queued        int   `json:"queued"`
	Replies       int   `json:"replies"`
	FollowupsSent int   `json:"followupsSent"`
	SendAttempts  int64 `json:"sendAttempts"`
}

type StatsResponse struct {
	Success   bool         `json:"success"`
	Data      StatsPayload `json:"data"`
	Timestamp string       `json:"timestamp"`
}

// FromDomainMessage converts a domain record into its DTO.
func FromDomainMessage(m *domain.Message) MessageDTO {
	replies := make([]ReplyDTO, len(m.Replies))
	for i, r := range m.Replies {
		replies[i] = ReplyDTO{Text: r.Text, Timestamp: r.Timestamp}
	}

	return MessageDTO{
		ID:              m.ID.String(),
		Name:            m.Name,
		Phone:           m.Phone,
		Message:         m.Body,
		SentAt:          m.SentAt,
		Status:          string(m.Status),
		MessageID:       m.ProviderID,
		LastUpdated:     m.LastUpdated,
		RetryCount:      m.RetryCount,
		NextRetryAt:     m.NextRetryAt,
		FollowupStatus:  string(m.FollowupStatus),
		FollowupSentAt:  m.FollowupSentAt,
		FollowupMessage: m.FollowupBody,
		Replies:         replies,
	}
}

// FromDomainMessages converts domain messages into DTOs
// for use in HTTP responses.
func FromDomainMessages(msgs []*domain.Message) []MessageDTO {
	out := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = FromDomainMessage(m)
	}
	return out
}

// ProviderSendResponse is the provider's answer to POST /send.
type ProviderSendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ProviderStatusResponse is the provider's answer to GET /status/{id}.
type ProviderStatusResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ProviderReplyResponse is the provider's answer to GET /reply/{id}.
type ProviderReplyResponse struct {
	MessageID string  `json:"message_id"`
	Reply     *string `json:"reply,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
}
