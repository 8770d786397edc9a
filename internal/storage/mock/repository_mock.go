package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
)

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ContactRepoMock) Save(ctx context.Context, contact model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

// Update mocks the Update method
func (m *ContactRepoMock) Update(ctx context.Context, contact model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// FindByPhone mocks the FindByPhone method
func (m *ContactRepoMock) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// SetOptOut mocks the SetOptOut method
func (m *ContactRepoMock) SetOptOut(ctx context.Context, contactID string, optedOut bool) error {
	args := m.Called(ctx, contactID, optedOut)
	return args.Error(0)
}

// UpdateQualification mocks the UpdateQualification method
func (m *ContactRepoMock) UpdateQualification(ctx context.Context, contactID string, qualification string) error {
	args := m.Called(ctx, contactID, qualification)
	return args.Error(0)
}

// Close mocks the Close method
func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

// Create mocks the Create method
func (m *ConversationRepoMock) Create(ctx context.Context, conversation model.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// FindActiveByContact mocks the FindActiveByContact method
func (m *ConversationRepoMock) FindActiveByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// RenewSession mocks the RenewSession method
func (m *ConversationRepoMock) RenewSession(ctx context.Context, conversationID string, expiresAt time.Time) error {
	args := m.Called(ctx, conversationID, expiresAt)
	return args.Error(0)
}

// UpdateAttendance mocks the UpdateAttendance method
func (m *ConversationRepoMock) UpdateAttendance(ctx context.Context, conversationID string, attendance string) error {
	args := m.Called(ctx, conversationID, attendance)
	return args.Error(0)
}

// UpdateLastMessage mocks the UpdateLastMessage method
func (m *ConversationRepoMock) UpdateLastMessage(ctx context.Context, conversationID string, text string, at time.Time) error {
	args := m.Called(ctx, conversationID, text, at)
	return args.Error(0)
}

// CloseConversation mocks the CloseConversation method
func (m *ConversationRepoMock) CloseConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// Close mocks the Close method
func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *MessageRepoMock) Save(ctx context.Context, message model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// FindByMessageID mocks the FindByMessageID method
func (m *MessageRepoMock) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// FindByProviderMessageID mocks the FindByProviderMessageID method
func (m *MessageRepoMock) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// AdvanceStatus mocks the AdvanceStatus method
func (m *MessageRepoMock) AdvanceStatus(ctx context.Context, providerMessageID string, status string) (bool, error) {
	args := m.Called(ctx, providerMessageID, status)
	return args.Bool(0), args.Error(1)
}

// ListRecentByConversation mocks the ListRecentByConversation method
func (m *MessageRepoMock) ListRecentByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- HandoffRepo Mock ---

// HandoffRepoMock mocks the HandoffRepo interface
type HandoffRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *HandoffRepoMock) Save(ctx context.Context, request model.HandoffRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

// FindWaitingByConversation mocks the FindWaitingByConversation method
func (m *HandoffRepoMock) FindWaitingByConversation(ctx context.Context, conversationID string) (*model.HandoffRequest, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HandoffRequest), args.Error(1)
}

// Resolve mocks the Resolve method
func (m *HandoffRepoMock) Resolve(ctx context.Context, requestID string, status string) error {
	args := m.Called(ctx, requestID, status)
	return args.Error(0)
}

// Close mocks the Close method
func (m *HandoffRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
