package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
)

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

// Save saves a contact
func (a *ContactRepoAdapter) Save(ctx context.Context, contact model.Contact) error {
	return a.postgres.SaveContact(ctx, contact)
}

// Update updates a contact
func (a *ContactRepoAdapter) Update(ctx context.Context, contact model.Contact) error {
	return a.postgres.UpdateContact(ctx, contact)
}

// FindByID finds a contact by ID
func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

// FindByPhone finds a contact by phone number
func (a *ContactRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	return a.postgres.FindContactByPhone(ctx, phone)
}

// SetOptOut flips the contact's opt-out flag
func (a *ContactRepoAdapter) SetOptOut(ctx context.Context, contactID string, optedOut bool) error {
	return a.postgres.SetContactOptOut(ctx, contactID, optedOut)
}

// UpdateQualification stores the AI-assigned qualification tag
func (a *ContactRepoAdapter) UpdateQualification(ctx context.Context, contactID string, qualification string) error {
	return a.postgres.UpdateContactQualification(ctx, contactID, qualification)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

// Create creates a conversation
func (a *ConversationRepoAdapter) Create(ctx context.Context, conversation model.Conversation) error {
	return a.postgres.CreateConversation(ctx, conversation)
}

// FindByID finds a conversation by ID
func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

// FindActiveByContact finds the ACTIVE conversation for a contact
func (a *ConversationRepoAdapter) FindActiveByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	return a.postgres.FindActiveConversationByContact(ctx, contactID)
}

// RenewSession extends the session window deadline
func (a *ConversationRepoAdapter) RenewSession(ctx context.Context, conversationID string, expiresAt time.Time) error {
	return a.postgres.RenewConversationSession(ctx, conversationID, expiresAt)
}

// UpdateAttendance changes the attendance state
func (a *ConversationRepoAdapter) UpdateAttendance(ctx context.Context, conversationID string, attendance string) error {
	return a.postgres.UpdateConversationAttendance(ctx, conversationID, attendance)
}

// UpdateLastMessage refreshes the denormalized last-message snapshot
func (a *ConversationRepoAdapter) UpdateLastMessage(ctx context.Context, conversationID string, text string, at time.Time) error {
	return a.postgres.UpdateConversationLastMessage(ctx, conversationID, text, at)
}

// CloseConversation marks the conversation CLOSED
func (a *ConversationRepoAdapter) CloseConversation(ctx context.Context, conversationID string) error {
	return a.postgres.CloseConversation(ctx, conversationID)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

// Save appends a message to the ledger
func (a *MessageRepoAdapter) Save(ctx context.Context, message model.Message) error {
	return a.postgres.SaveMessage(ctx, message)
}

// FindByMessageID finds a message by internal ID
func (a *MessageRepoAdapter) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	return a.postgres.FindMessageByMessageID(ctx, messageID)
}

// FindByProviderMessageID finds a message by provider ID
func (a *MessageRepoAdapter) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	return a.postgres.FindMessageByProviderMessageID(ctx, providerMessageID)
}

// AdvanceStatus moves delivery status forward
func (a *MessageRepoAdapter) AdvanceStatus(ctx context.Context, providerMessageID string, status string) (bool, error) {
	return a.postgres.AdvanceMessageStatus(ctx, providerMessageID, status)
}

// ListRecentByConversation lists recent messages chronologically
func (a *MessageRepoAdapter) ListRecentByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return a.postgres.ListRecentMessagesByConversation(ctx, conversationID, limit)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// HandoffRepoAdapter adapts the PostgresRepo to the HandoffRepo interface
type HandoffRepoAdapter struct {
	postgres *PostgresRepo
}

// NewHandoffRepoAdapter creates a new handoff repository adapter
func NewHandoffRepoAdapter(postgres *PostgresRepo) HandoffRepo {
	return &HandoffRepoAdapter{postgres: postgres}
}

// Save creates a handoff request
func (a *HandoffRepoAdapter) Save(ctx context.Context, request model.HandoffRequest) error {
	return a.postgres.SaveHandoffRequest(ctx, request)
}

// FindWaitingByConversation finds the live WAITING request
func (a *HandoffRepoAdapter) FindWaitingByConversation(ctx context.Context, conversationID string) (*model.HandoffRequest, error) {
	return a.postgres.FindWaitingHandoffByConversation(ctx, conversationID)
}

// Resolve finalizes a WAITING request
func (a *HandoffRepoAdapter) Resolve(ctx context.Context, requestID string, status string) error {
	return a.postgres.ResolveHandoffRequest(ctx, requestID, status)
}

func (a *HandoffRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ ContactRepo = (*ContactRepoAdapter)(nil)
var _ ConversationRepo = (*ConversationRepoAdapter)(nil)
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ HandoffRepo = (*HandoffRepoAdapter)(nil)
