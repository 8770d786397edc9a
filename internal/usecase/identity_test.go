package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	storagemock "gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage/mock"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

func notFoundErr(entity string) error {
	return fmt.Errorf("%w: %s not found", apperrors.ErrNotFound, entity)
}

func duplicateErr(entity string) error {
	return fmt.Errorf("%w: %s already exists", apperrors.ErrDuplicate, entity)
}

func TestResolveContact_Existing(t *testing.T) {
	ctx := newTestContext(t)
	contactRepo := new(storagemock.ContactRepoMock)
	conversationRepo := new(storagemock.ConversationRepoMock)
	resolver := NewIdentityResolver(contactRepo, conversationRepo, 24*time.Hour)

	existing := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000", PushName: "Maria"})
	contactRepo.On("FindByPhone", ctx, "5511999990000").Return(existing, nil).Once()

	contact, err := resolver.ResolveContact(ctx, "5511999990000", "Maria")

	require.NoError(t, err)
	assert.Equal(t, existing.ID, contact.ID)
	contactRepo.AssertExpectations(t)
	contactRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestResolveContact_ExistingRefreshesPushName(t *testing.T) {
	ctx := newTestContext(t)
	contactRepo := new(storagemock.ContactRepoMock)
	resolver := NewIdentityResolver(contactRepo, new(storagemock.ConversationRepoMock), 24*time.Hour)

	existing := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000", PushName: "Old Name"})
	contactRepo.On("FindByPhone", ctx, "5511999990000").Return(existing, nil).Once()
	contactRepo.On("Update", ctx, mock.MatchedBy(func(c model.Contact) bool {
		return c.ID == existing.ID && c.PushName == "New Name"
	})).Return(nil).Once()

	contact, err := resolver.ResolveContact(ctx, "5511999990000", "New Name")

	require.NoError(t, err)
	assert.Equal(t, "New Name", contact.PushName)
	contactRepo.AssertExpectations(t)
}

func TestResolveContact_CreatesOnFirstMessage(t *testing.T) {
	ctx := newTestContext(t)
	contactRepo := new(storagemock.ContactRepoMock)
	resolver := NewIdentityResolver(contactRepo, new(storagemock.ConversationRepoMock), 24*time.Hour)

	contactRepo.On("FindByPhone", ctx, "5511888880000").Return(nil, notFoundErr("contact")).Once()
	contactRepo.On("Save", ctx, mock.MatchedBy(func(c model.Contact) bool {
		return c.CompanyID == testCompanyID && c.PhoneNumber == "5511888880000" && c.PushName == "João" && c.ID != ""
	})).Return(nil).Once()

	contact, err := resolver.ResolveContact(ctx, "5511888880000", "João")

	require.NoError(t, err)
	assert.Equal(t, "5511888880000", contact.PhoneNumber)
	assert.NotEmpty(t, contact.ID)
	contactRepo.AssertExpectations(t)
}

func TestResolveContact_CreateRaceLostReadsWinner(t *testing.T) {
	ctx := newTestContext(t)
	contactRepo := new(storagemock.ContactRepoMock)
	resolver := NewIdentityResolver(contactRepo, new(storagemock.ConversationRepoMock), 24*time.Hour)

	winner := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511888880000"})
	contactRepo.On("FindByPhone", ctx, "5511888880000").Return(nil, notFoundErr("contact")).Once()
	contactRepo.On("Save", ctx, mock.AnythingOfType("model.Contact")).Return(duplicateErr("contact")).Once()
	contactRepo.On("FindByPhone", ctx, "5511888880000").Return(winner, nil).Once()

	contact, err := resolver.ResolveContact(ctx, "5511888880000", "")

	require.NoError(t, err)
	assert.Equal(t, winner.ID, contact.ID)
	contactRepo.AssertExpectations(t)
}

func TestResolveContact_MissingTenant(t *testing.T) {
	resolver := NewIdentityResolver(new(storagemock.ContactRepoMock), new(storagemock.ConversationRepoMock), 24*time.Hour)

	_, err := resolver.ResolveContact(context.Background(), "5511888880000", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestResolveContact_EmptyPhone(t *testing.T) {
	resolver := NewIdentityResolver(new(storagemock.ContactRepoMock), new(storagemock.ConversationRepoMock), 24*time.Hour)

	_, err := resolver.ResolveContact(newTestContext(t), "", "")

	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
}

func TestResolveConversation_Existing(t *testing.T) {
	ctx := newTestContext(t)
	conversationRepo := new(storagemock.ConversationRepoMock)
	resolver := NewIdentityResolver(new(storagemock.ContactRepoMock), conversationRepo, 24*time.Hour)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID})
	existing := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	conversationRepo.On("FindActiveByContact", ctx, contact.ID).Return(existing, nil).Once()

	conversation, err := resolver.ResolveConversation(ctx, contact)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, conversation.ID)
	conversationRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestResolveConversation_OpensWithFreshWindow(t *testing.T) {
	ctx := newTestContext(t)
	conversationRepo := new(storagemock.ConversationRepoMock)
	window := 24 * time.Hour
	resolver := NewIdentityResolver(new(storagemock.ContactRepoMock), conversationRepo, window)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID})
	before := utils.Now()
	conversationRepo.On("FindActiveByContact", ctx, contact.ID).Return(nil, notFoundErr("conversation")).Once()
	conversationRepo.On("Create", ctx, mock.MatchedBy(func(c model.Conversation) bool {
		return c.ContactID == contact.ID &&
			c.Status == model.ConversationActive &&
			c.Attendance == model.AttendanceAI &&
			!c.SessionExpiresAt.Before(before.Add(window))
	})).Return(nil).Once()

	conversation, err := resolver.ResolveConversation(ctx, contact)

	require.NoError(t, err)
	assert.Equal(t, model.AttendanceAI, conversation.Attendance)
	assert.True(t, conversation.SessionOpen(utils.Now()))
	conversationRepo.AssertExpectations(t)
}

func TestResolveConversation_CreateRaceLostReadsWinner(t *testing.T) {
	ctx := newTestContext(t)
	conversationRepo := new(storagemock.ConversationRepoMock)
	resolver := NewIdentityResolver(new(storagemock.ContactRepoMock), conversationRepo, 24*time.Hour)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID})
	winner := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	conversationRepo.On("FindActiveByContact", ctx, contact.ID).Return(nil, notFoundErr("conversation")).Once()
	conversationRepo.On("Create", ctx, mock.AnythingOfType("model.Conversation")).Return(duplicateErr("conversation")).Once()
	conversationRepo.On("FindActiveByContact", ctx, contact.ID).Return(winner, nil).Once()

	conversation, err := resolver.ResolveConversation(ctx, contact)

	require.NoError(t, err)
	assert.Equal(t, winner.ID, conversation.ID)
	conversationRepo.AssertExpectations(t)
}
