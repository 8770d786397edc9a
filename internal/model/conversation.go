package model

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation lifecycle status values
const (
	ConversationActive = "ACTIVE"
	ConversationClosed = "CLOSED"
)

// Attendance type values: the party currently responsible for the conversation.
const (
	AttendanceAI          = "ai"
	AttendancePending     = "pending_handoff"
	AttendanceTransferred = "transferred"
)

// Conversation represents an ongoing exchange with a single contact.
// At most one ACTIVE conversation exists per (company_id, contact_id); the
// partial unique index enforcing that is created alongside the schema because
// creation races between concurrent webhook deliveries must be tolerated and
// recovered, not assumed away.
type Conversation struct {
	ID               string         `json:"id" gorm:"primaryKey;type:text"`
	CompanyID        string         `json:"company_id" gorm:"column:company_id;index;type:text" validate:"required"`
	ContactID        string         `json:"contact_id" gorm:"column:contact_id;index;type:text" validate:"required"`
	Status           string         `json:"status,omitempty" gorm:"type:text;default:ACTIVE"`
	Attendance       string         `json:"attendance,omitempty" gorm:"type:text;default:ai"`
	LastMessageText  string         `json:"last_message_text,omitempty" gorm:"column:last_message_text;type:text"` // Denormalized for listing
	LastMessageAt    time.Time      `json:"last_message_at,omitempty" gorm:"column:last_message_at"`
	SessionExpiresAt time.Time      `json:"session_expires_at,omitempty" gorm:"column:session_expires_at"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata     datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// SessionOpen reports whether the customer-initiated session window is still
// open at the given instant. Pure read; renewal happens on inbound ingestion.
func (c *Conversation) SessionOpen(now time.Time) bool {
	return now.Before(c.SessionExpiresAt)
}
