package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// OutboundGate is the single choke point for sends. Every outbound message
// passes the session window and opt-out checks here before the provider call,
// and every successful send is appended to the ledger with the provider id so
// later status receipts can find it.
type OutboundGate struct {
	providerClient   provider.Client
	messageRepo      storage.MessageRepo
	conversationRepo storage.ConversationRepo
	optOut           *OptOutRegistry
	session          *SessionTracker
}

// NewOutboundGate creates the outbound gate.
func NewOutboundGate(
	providerClient provider.Client,
	messageRepo storage.MessageRepo,
	conversationRepo storage.ConversationRepo,
	optOut *OptOutRegistry,
	session *SessionTracker,
) *OutboundGate {
	return &OutboundGate{
		providerClient:   providerClient,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		optOut:           optOut,
		session:          session,
	}
}

// SendText sends a plain text message through the gate.
func (g *OutboundGate) SendText(ctx context.Context, conversation *model.Conversation, contact *model.Contact, text, sender string) (*model.Message, error) {
	if err := g.check(ctx, conversation, contact); err != nil {
		observer.IncOutboundSend(conversation.CompanyID, "text", "blocked")
		return nil, err
	}

	result, err := g.providerClient.SendText(ctx, conversation.CompanyID, contact.PhoneNumber, text)
	if err != nil {
		observer.IncOutboundSend(conversation.CompanyID, "text", "error")
		return nil, err
	}
	observer.IncOutboundSend(conversation.CompanyID, "text", "success")

	return g.record(ctx, conversation, sender, model.MessageKindText, text, result.ProviderMessageID, nil)
}

// SendInteractive sends a button message through the gate.
func (g *OutboundGate) SendInteractive(ctx context.Context, conversation *model.Conversation, contact *model.Contact, bodyText string, buttons []provider.Button, sender string) (*model.Message, error) {
	if err := g.check(ctx, conversation, contact); err != nil {
		observer.IncOutboundSend(conversation.CompanyID, "interactive", "blocked")
		return nil, err
	}

	result, err := g.providerClient.SendInteractive(ctx, conversation.CompanyID, contact.PhoneNumber, bodyText, buttons)
	if err != nil {
		observer.IncOutboundSend(conversation.CompanyID, "interactive", "error")
		return nil, err
	}
	observer.IncOutboundSend(conversation.CompanyID, "interactive", "success")

	obj := utils.MustMarshalJSON(map[string]interface{}{"buttons": buttons})
	return g.record(ctx, conversation, sender, "interactive", bodyText, result.ProviderMessageID, obj)
}

// check enforces the outbound invariants. Opt-out is checked before the
// session window so a suppressed contact never leaks a session error.
func (g *OutboundGate) check(ctx context.Context, conversation *model.Conversation, contact *model.Contact) error {
	if g.optOut.IsOptedOut(ctx, contact) {
		return apperrors.NewFatal(
			fmt.Errorf("%w: contact %s", apperrors.ErrOptedOut, contact.ID),
			"send suppressed: contact opted out")
	}
	if !g.session.Open(conversation) {
		return apperrors.NewFatal(
			fmt.Errorf("%w: conversation %s", apperrors.ErrSessionClosed, conversation.ID),
			"send rejected: session window closed")
	}
	return nil
}

func (g *OutboundGate) record(ctx context.Context, conversation *model.Conversation, sender, messageType, text, providerMessageID string, obj []byte) (*model.Message, error) {
	log := logger.FromContext(ctx)
	now := utils.Now()

	message := model.Message{
		MessageID:         uuid.NewString(),
		ProviderMessageID: providerMessageID,
		ConversationID:    conversation.ID,
		CompanyID:         conversation.CompanyID,
		Flow:              model.MessageFlowOutgoing,
		Sender:            sender,
		MessageType:       messageType,
		MessageText:       text,
		Status:            model.StatusSent,
		MessageTimestamp:  now.Unix(),
	}
	if obj != nil {
		message.MessageObj = datatypes.JSON(obj)
	}

	if err := g.messageRepo.Save(ctx, message); err != nil {
		// The provider accepted the send; losing the ledger row is a real
		// inconsistency worth a loud log, but the caller's send succeeded.
		log.Error("Failed to persist outbound message",
			zap.String("provider_message_id", providerMessageID),
			zap.Error(err))
		return nil, err
	}

	if err := g.conversationRepo.UpdateLastMessage(ctx, conversation.ID, text, now); err != nil {
		log.Warn("Failed to refresh last-message snapshot after send",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err))
	}
	return &message, nil
}
