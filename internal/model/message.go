package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message flow direction
const (
	MessageFlowIncoming = "IN"
	MessageFlowOutgoing = "OUT"
)

// Sender class values
const (
	SenderContact = "contact"
	SenderSystem  = "system"
	SenderAI      = "ai"
)

// Delivery status values. Only sent/delivered/read participate in the
// forward-only reconciliation order.
const (
	StatusReceived  = "received"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// statusRank orders the reconcilable delivery statuses. Statuses outside the
// map (received, failed) never advance through reconciliation.
var statusRank = map[string]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// StatusRank returns the position of a delivery status in the forward-only
// order, or 0 for statuses that do not reconcile.
func StatusRank(status string) int {
	return statusRank[status]
}

// StatusesBelow returns every reconcilable status strictly below the given
// one. Used to build the conditional UPDATE that makes reconciliation
// idempotent under duplicate delivery.
func StatusesBelow(status string) []string {
	rank := StatusRank(status)
	if rank == 0 {
		return nil
	}
	below := make([]string, 0, rank)
	for s, r := range statusRank {
		if r < rank {
			below = append(below, s)
		}
	}
	// received messages never had a sent ack yet but may still advance
	below = append(below, StatusReceived)
	return below
}

// Message is one entry in the append-only conversation ledger. Content is
// immutable once persisted; only the delivery status moves, and only forward.
type Message struct {
	ID                int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID         string         `json:"id" gorm:"column:message_id;index;type:text"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" gorm:"column:provider_message_id;index;type:text"` // Idempotency key; unique per company when present
	ConversationID    string         `json:"conversation_id" gorm:"column:conversation_id;index;type:text"`
	CompanyID         string         `json:"company_id,omitempty" gorm:"column:company_id;type:text"`
	Flow              string         `json:"flow,omitempty" gorm:"column:flow;type:text"`
	Sender            string         `json:"sender,omitempty" gorm:"column:sender;type:text"`
	MessageType       string         `json:"message_type,omitempty" gorm:"column:message_type;type:text"`
	MessageText       string         `json:"message_text,omitempty" gorm:"column:message_text;type:text"`
	MessageURL        string         `json:"message_url,omitempty" gorm:"column:message_url;type:text"` // Media locator when present
	Status            string         `json:"status,omitempty" gorm:"column:status;type:text"`
	MessageObj        datatypes.JSON `json:"message_obj,omitempty" gorm:"type:jsonb;column:message_obj"` // Raw envelope snapshot
	MessageTimestamp  int64          `json:"message_timestamp,omitempty" gorm:"column:message_timestamp"`
	CreatedAt         time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}
