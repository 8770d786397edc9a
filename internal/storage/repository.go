package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
)

// ContactRepo defines contact storage operations
type ContactRepo interface {
	Save(ctx context.Context, contact model.Contact) error
	Update(ctx context.Context, contact model.Contact) error
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByPhone(ctx context.Context, phone string) (*model.Contact, error)
	SetOptOut(ctx context.Context, contactID string, optedOut bool) error
	UpdateQualification(ctx context.Context, contactID string, qualification string) error
	Close(ctx context.Context) error
}

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	Create(ctx context.Context, conversation model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindActiveByContact(ctx context.Context, contactID string) (*model.Conversation, error)
	RenewSession(ctx context.Context, conversationID string, expiresAt time.Time) error
	UpdateAttendance(ctx context.Context, conversationID string, attendance string) error
	UpdateLastMessage(ctx context.Context, conversationID string, text string, at time.Time) error
	CloseConversation(ctx context.Context, conversationID string) error
	Close(ctx context.Context) error
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	Save(ctx context.Context, message model.Message) error
	FindByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error)
	// AdvanceStatus moves a message's delivery status forward. Returns false
	// when the stored status already equals or outranks the new one.
	AdvanceStatus(ctx context.Context, providerMessageID string, status string) (bool, error)
	ListRecentByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	Close(ctx context.Context) error
}

// HandoffRepo defines handoff request storage operations
type HandoffRepo interface {
	Save(ctx context.Context, request model.HandoffRequest) error
	FindWaitingByConversation(ctx context.Context, conversationID string) (*model.HandoffRequest, error)
	Resolve(ctx context.Context, requestID string, status string) error
	Close(ctx context.Context) error
}
