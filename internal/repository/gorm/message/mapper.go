package messagegorm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/domain/message"
	"gorm.io/datatypes"
)

// toDomain maps a GORM MessageModel to a domain-level Message.
func toDomain(m *MessageModel) (*message.Message, error) {
	replies := []message.Reply{}
	if len(m.ReplyHistory) > 0 {
		if err := json.Unmarshal(m.ReplyHistory, &replies); err != nil {
			return nil, fmt.Errorf("decode reply history for %s: %w", m.ID, err)
		}
		if replies == nil {
			replies = []message.Reply{}
		}
	}

	return &message.Message{
		ID:             m.ID,
		Name:           m.Name,
		Phone:          m.Phone,
		Body:           m.Body,
		SentAt:         message.Timestamp(m.SentAt),
		Status:         message.ParseStatus(m.Status),
		ProviderID:     m.ProviderID,
		LastUpdated:    message.Timestamp(m.LastUpdated),
		RetryCount:     m.RetryCount,
		NextRetryAt:    utcPtr(m.NextRetryAt),
		FollowupStatus: message.FollowupStatus(m.FollowupStatus),
		FollowupSentAt: utcPtr(m.FollowupSentAt),
		FollowupBody:   m.FollowupBody,
		Replies:        replies,
	}, nil
}

// toDomainMany maps a slice of MessageModel to a slice of domain Messages.
func toDomainMany(models []MessageModel) ([]*message.Message, error) {
	out := make([]*message.Message, len(models))
	for i := range models {
		m, err := toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// fromDomain maps a domain-level Message to a GORM MessageModel.
func fromDomain(d *message.Message) (*MessageModel, error) {
	replies := d.Replies
	if replies == nil {
		replies = []message.Reply{}
	}
	history, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("encode reply history for %s: %w", d.ID, err)
	}

	return &MessageModel{
		ID:             d.ID,
		Name:           d.Name,
		Phone:          d.Phone,
		Body:           d.Body,
		SentAt:         d.SentAt,
		Status:         string(d.Status),
		ProviderID:     d.ProviderID,
		LastUpdated:    d.LastUpdated,
		RetryCount:     d.RetryCount,
		NextRetryAt:    d.NextRetryAt,
		FollowupStatus: string(d.FollowupStatus),
		FollowupSentAt: d.FollowupSentAt,
		FollowupBody:   d.FollowupBody,
		ReplyHistory:   datatypes.JSON(history),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := message.Timestamp(*t)
	return &v
}
