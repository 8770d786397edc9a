package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/provider"
	storagemock "gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage/mock"
	streammock "gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/stream/mock"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

type serviceFixture struct {
	service          *InboundService
	contactRepo      *storagemock.ContactRepoMock
	conversationRepo *storagemock.ConversationRepoMock
	messageRepo      *storagemock.MessageRepoMock
	handoffRepo      *storagemock.HandoffRepoMock
	providerClient   *ProviderClientMock
	publisher        *streammock.PublisherMock
	worker           *ReplyWorkerMock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	contactRepo := new(storagemock.ContactRepoMock)
	conversationRepo := new(storagemock.ConversationRepoMock)
	messageRepo := new(storagemock.MessageRepoMock)
	handoffRepo := new(storagemock.HandoffRepoMock)
	providerClient := new(ProviderClientMock)
	publisher := new(streammock.PublisherMock)
	worker := new(ReplyWorkerMock)

	identity := NewIdentityResolver(contactRepo, conversationRepo, 24*time.Hour)
	session := NewSessionTracker(conversationRepo, publisher, 24*time.Hour)
	optOut := NewOptOutRegistry(contactRepo, newTestCache(), publisher, testOptOutKeywords, "Você não receberá mais mensagens.")
	gate := NewOutboundGate(providerClient, messageRepo, conversationRepo, optOut, session)
	handoff := NewHandoffCoordinator(handoffRepo, conversationRepo, gate, publisher)
	service := NewInboundService(identity, session, optOut, handoff, gate, worker, messageRepo, conversationRepo, publisher, zaptest.NewLogger(t))

	return &serviceFixture{
		service:          service,
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		handoffRepo:      handoffRepo,
		providerClient:   providerClient,
		publisher:        publisher,
		worker:           worker,
	}
}

// expectResolve wires the identity and session lookups for an existing
// contact and conversation.
func (f *serviceFixture) expectResolve(ctx interface{}, contact *model.Contact, conversation *model.Conversation) {
	f.contactRepo.On("FindByPhone", ctx, contact.PhoneNumber).Return(contact, nil).Once()
	f.conversationRepo.On("FindActiveByContact", ctx, contact.ID).Return(conversation, nil).Once()
	f.conversationRepo.On("RenewSession", ctx, conversation.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	f.publisher.On("PublishTransition", ctx, mock.MatchedBy(func(e model.TransitionEvent) bool {
		return e.Kind == model.TransitionSessionRenewed
	})).Return(nil).Once()
}

func TestProcessInbound_SubmitsReplyTask(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowIncoming &&
			m.Sender == model.SenderContact &&
			m.Status == model.StatusReceived &&
			m.ProviderMessageID == "wamid.in1" &&
			m.ConversationID == conversation.ID
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "qual o preço?", mock.AnythingOfType("time.Time")).Return(nil).Once()
	f.worker.On("SubmitTask", mock.MatchedBy(func(task ReplyTaskData) bool {
		return task.Conversation.ID == conversation.ID && task.InboundText == "qual o preço?"
	})).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "+55 11 99999-0000",
		PushName:          contact.PushName,
		Text:              "qual o preço?",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.in1",
		Timestamp:         utils.Now().Unix(),
	})

	require.NoError(t, err)
	f.worker.AssertExpectations(t)
	f.messageRepo.AssertExpectations(t)
}

func TestProcessInbound_DuplicateDeliverySkipped(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.AnythingOfType("model.Message")).Return(duplicateErr("message")).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		Text:              "oi",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.dup",
	})

	require.NoError(t, err)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
	f.conversationRepo.AssertNotCalled(t, "UpdateLastMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessInbound_OptOutKeywordAcksBeforeSuppression(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowIncoming
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "STOP", mock.AnythingOfType("time.Time")).Return(nil).Once()

	// The acknowledgement leaves before the flag flips.
	f.providerClient.On("SendText", ctx, testCompanyID, contact.PhoneNumber, "Você não receberá mais mensagens.").
		Return(&provider.SendResult{ProviderMessageID: "wamid.ack"}, nil).Once()
	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowOutgoing && m.Sender == model.SenderSystem
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "Você não receberá mais mensagens.", mock.AnythingOfType("time.Time")).Return(nil).Once()

	f.contactRepo.On("SetOptOut", ctx, contact.ID, true).Return(nil).Once()
	f.publisher.On("PublishTransition", ctx, mock.MatchedBy(func(e model.TransitionEvent) bool {
		return e.Kind == model.TransitionContactOptedOut
	})).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		Text:              "STOP",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.stop",
	})

	require.NoError(t, err)
	assert.True(t, contact.OptOut)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
	f.contactRepo.AssertExpectations(t)
}

func TestProcessInbound_OptedOutContactStoreOnly(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000", OptOut: true})
	conversation := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.AnythingOfType("model.Message")).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "e aí", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		Text:              "e aí",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.optedout",
	})

	require.NoError(t, err)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
	f.providerClient.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessInbound_PendingHandoffRoutesReplyToCoordinator(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{
		CompanyID:  testCompanyID,
		ContactID:  contact.ID,
		Attendance: model.AttendancePending,
	})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowIncoming
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "sim", mock.AnythingOfType("time.Time")).Return(nil).Once()

	request := &model.HandoffRequest{ID: "req-9", CompanyID: testCompanyID, ConversationID: conversation.ID, Status: model.HandoffWaiting}
	f.handoffRepo.On("FindWaitingByConversation", ctx, conversation.ID).Return(request, nil).Once()
	f.handoffRepo.On("Resolve", ctx, "req-9", model.HandoffConfirmed).Return(nil).Once()
	f.conversationRepo.On("UpdateAttendance", ctx, conversation.ID, model.AttendanceTransferred).Return(nil).Once()
	f.providerClient.On("SendText", ctx, testCompanyID, contact.PhoneNumber, mock.AnythingOfType("string")).
		Return(&provider.SendResult{ProviderMessageID: "wamid.ack"}, nil).Once()
	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowOutgoing
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil).Once()
	f.publisher.On("PublishTransition", ctx, mock.MatchedBy(func(e model.TransitionEvent) bool {
		return e.Kind == model.TransitionHandoffConfirmed
	})).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		Text:              "sim",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.sim",
	})

	require.NoError(t, err)
	assert.Equal(t, model.AttendanceTransferred, conversation.Attendance)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestProcessInbound_TransferredConversationStoreOnly(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{
		CompanyID:  testCompanyID,
		ContactID:  contact.ID,
		Attendance: model.AttendanceTransferred,
	})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.AnythingOfType("model.Message")).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "obrigado", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		Text:              "obrigado",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.human",
	})

	require.NoError(t, err)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestProcessInbound_ButtonReplyResolvesHandoff(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{
		CompanyID:  testCompanyID,
		ContactID:  contact.ID,
		Attendance: model.AttendancePending,
	})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowIncoming
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	request := &model.HandoffRequest{ID: "req-10", CompanyID: testCompanyID, ConversationID: conversation.ID, Status: model.HandoffWaiting}
	f.handoffRepo.On("FindWaitingByConversation", ctx, conversation.ID).Return(request, nil).Once()
	f.handoffRepo.On("Resolve", ctx, "req-10", model.HandoffDeclined).Return(nil).Once()
	f.conversationRepo.On("UpdateAttendance", ctx, conversation.ID, model.AttendanceAI).Return(nil).Once()
	f.providerClient.On("SendText", ctx, testCompanyID, contact.PhoneNumber, mock.AnythingOfType("string")).
		Return(&provider.SendResult{ProviderMessageID: "wamid.ack"}, nil).Once()
	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.Flow == model.MessageFlowOutgoing
	})).Return(nil).Once()
	f.publisher.On("PublishTransition", ctx, mock.MatchedBy(func(e model.TransitionEvent) bool {
		return e.Kind == model.TransitionHandoffDeclined
	})).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		Text:              "Não",
		MessageKind:       model.MessageKindText,
		ProviderMessageID: "wamid.btn",
		ButtonReplyID:     model.ButtonCancelHandoff,
	})

	require.NoError(t, err)
	assert.Equal(t, model.AttendanceAI, conversation.Attendance)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestProcessInbound_MediaWithoutTextStoreOnly(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	contact := model.NewContact(&model.Contact{CompanyID: testCompanyID, PhoneNumber: "5511999990000"})
	conversation := model.NewConversation(&model.Conversation{CompanyID: testCompanyID, ContactID: contact.ID})
	f.expectResolve(ctx, contact, conversation)

	f.messageRepo.On("Save", ctx, mock.MatchedBy(func(m model.Message) bool {
		return m.MessageType == model.MessageKindImage && m.MessageURL == "https://cdn.example.com/img.jpg"
	})).Return(nil).Once()
	f.conversationRepo.On("UpdateLastMessage", ctx, conversation.ID, "", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := f.service.ProcessInbound(ctx, &model.InboundMessage{
		From:              "5511999990000",
		MessageKind:       model.MessageKindImage,
		MediaURL:          "https://cdn.example.com/img.jpg",
		ProviderMessageID: "wamid.img",
	})

	require.NoError(t, err)
	f.worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestReconcileStatus_AdvancesAndPublishes(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	f.messageRepo.On("AdvanceStatus", ctx, "wamid.out1", model.StatusDelivered).Return(true, nil).Once()
	f.publisher.On("PublishTransition", ctx, mock.MatchedBy(func(e model.TransitionEvent) bool {
		return e.Kind == model.TransitionMessageStatus &&
			e.Detail["provider_message_id"] == "wamid.out1" &&
			e.Detail["status"] == model.StatusDelivered
	})).Return(nil).Once()

	err := f.service.ReconcileStatus(ctx, &model.StatusUpdate{
		ProviderMessageID: "wamid.out1",
		Status:            model.StatusDelivered,
	})

	require.NoError(t, err)
	f.publisher.AssertExpectations(t)
}

func TestReconcileStatus_UnknownMessageIsNoop(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	f.messageRepo.On("AdvanceStatus", ctx, "wamid.ghost", model.StatusRead).Return(false, nil).Once()
	f.messageRepo.On("FindByProviderMessageID", ctx, "wamid.ghost").Return(nil, notFoundErr("message")).Once()

	err := f.service.ReconcileStatus(ctx, &model.StatusUpdate{
		ProviderMessageID: "wamid.ghost",
		Status:            model.StatusRead,
	})

	require.NoError(t, err)
	f.publisher.AssertNotCalled(t, "PublishTransition", mock.Anything, mock.Anything)
}

func TestReconcileStatus_RegressionIgnored(t *testing.T) {
	ctx := newTestContext(t)
	f := newServiceFixture(t)

	existing := model.NewMessage(&model.Message{ProviderMessageID: "wamid.out2", Status: model.StatusRead})
	f.messageRepo.On("AdvanceStatus", ctx, "wamid.out2", model.StatusDelivered).Return(false, nil).Once()
	f.messageRepo.On("FindByProviderMessageID", ctx, "wamid.out2").Return(existing, nil).Once()
	f.publisher.On("PublishTransition", ctx, mock.MatchedBy(func(ev model.TransitionEvent) bool {
		return ev.Kind == model.TransitionMessageStatus &&
			ev.Detail["status"] == model.StatusRead &&
			ev.Detail["rejected_status"] == model.StatusDelivered
	})).Return(nil).Once()

	err := f.service.ReconcileStatus(ctx, &model.StatusUpdate{
		ProviderMessageID: "wamid.out2",
		Status:            model.StatusDelivered,
	})

	require.NoError(t, err)
	f.publisher.AssertExpectations(t)
}
