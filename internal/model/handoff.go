package model

import "time"

// Handoff request states
const (
	HandoffWaiting   = "WAITING"
	HandoffConfirmed = "CONFIRMED"
	HandoffDeclined  = "DECLINED"
)

// Button reply ids used by the handoff confirmation protocol.
const (
	ButtonConfirmHandoff = "confirm_handoff"
	ButtonCancelHandoff  = "cancel_handoff"
)

// HandoffRequest tracks one AI-to-human escalation. At most one WAITING
// request is live per conversation at a time.
type HandoffRequest struct {
	ID             string     `json:"id" gorm:"primaryKey;type:text"`
	CompanyID      string     `json:"company_id" gorm:"column:company_id;index;type:text" validate:"required"`
	ConversationID string     `json:"conversation_id" gorm:"column:conversation_id;index;type:text" validate:"required"`
	Status         string     `json:"status,omitempty" gorm:"type:text;default:WAITING"`
	Reason         string     `json:"reason,omitempty" gorm:"type:text"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	CreatedAt      time.Time  `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the HandoffRequest model.
func (HandoffRequest) TableName() string {
	return "handoff_requests"
}
