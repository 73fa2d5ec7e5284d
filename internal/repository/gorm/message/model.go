package messagegorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageModel is the GORM persistence model for tracked campaign messages.
// It maps directly to the "campaign_messages" table in Postgres.
type MessageModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Seq            int64          `gorm:"autoIncrement;uniqueIndex;not null"`
	Name           string         `gorm:"size:255"`
	Phone          string         `gorm:"size:32;not null;index"`
	Body           string         `gorm:"type:text"`
	SentAt         time.Time      `gorm:"not null"`
	Status         string         `gorm:"size:20;not null;index"`
	ProviderID     string         `gorm:"size:100;index"`
	LastUpdated    time.Time      `gorm:"not null"`
	RetryCount     int            `gorm:"not null;default:0"`
	NextRetryAt    *time.Time
	FollowupStatus string         `gorm:"size:20;not null"`
	FollowupSentAt *time.Time
	FollowupBody   string         `gorm:"type:text"`
	ReplyHistory   datatypes.JSON `gorm:"type:jsonb;not null"`
}

// TableName overrides the default table name used by GORM.
func (MessageModel) TableName() string {
	return "campaign_messages"
}

// BeforeCreate ensures a UUID is set before inserting a new record.
func (m *MessageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if len(m.ReplyHistory) == 0 {
		m.ReplyHistory = datatypes.JSON("[]")
	}
	return nil
}
