package leadstore

import (
	"time"

	"github.com/google/uuid"
)

// ConversationRecord mirrors the conversation table the intake dashboard
// reads from.
type ConversationRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID  string    `gorm:"index"`
	AIIntentSummary string
	IsQualified     bool
	Source          string
	Status          string
	StartTime       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ConversationRecord) TableName() string {
	return "conversation"
}

// UnansweredQuestion tracks knowledge gaps: visitor questions the agent could
// not answer, recorded when a fallback fires.
type UnansweredQuestion struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID string    `gorm:"index"`
	Question       string
	Source         string
	CreatedAt      time.Time
}

func (UnansweredQuestion) TableName() string {
	return "unanswered_question"
}
