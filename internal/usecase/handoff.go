package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/stream"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
)

// Handoff confirmation copy. Portuguese-first to match the customer base.
const (
	handoffPromptBody      = "Você gostaria de falar com um atendente humano?"
	handoffPromptPlain     = "Você gostaria de falar com um atendente humano? Responda sim ou não."
	handoffConfirmedText   = "Perfeito! Um de nossos atendentes vai continuar essa conversa em breve."
	handoffDeclinedText    = "Sem problemas! Vou continuar te ajudando por aqui."
	handoffUnrecognizedTxt = "Desculpe, não entendi. Você gostaria de falar com um atendente humano? Responda sim ou não."
)

// Confirmation replies accepted while a handoff question is pending. Matching
// is exact on the trimmed, lowercased text.
var (
	handoffAffirmatives = map[string]struct{}{
		"sim": {}, "s": {}, "yes": {}, "y": {}, "1": {}, "confirmar": {},
	}
	handoffNegatives = map[string]struct{}{
		"nao": {}, "não": {}, "n": {}, "no": {}, "2": {}, "cancelar": {},
	}
)

// HandoffCoordinator drives the AI-to-human escalation state machine:
// ai -> pending_handoff on an escalation request, then pending_handoff ->
// transferred on confirmation or back to ai on decline.
type HandoffCoordinator struct {
	handoffRepo      storage.HandoffRepo
	conversationRepo storage.ConversationRepo
	gate             *OutboundGate
	publisher        stream.PublisherInterface
}

// NewHandoffCoordinator creates a handoff coordinator.
func NewHandoffCoordinator(
	handoffRepo storage.HandoffRepo,
	conversationRepo storage.ConversationRepo,
	gate *OutboundGate,
	publisher stream.PublisherInterface,
) *HandoffCoordinator {
	return &HandoffCoordinator{
		handoffRepo:      handoffRepo,
		conversationRepo: conversationRepo,
		gate:             gate,
		publisher:        publisher,
	}
}

// RequestEscalation opens a WAITING handoff request and asks the customer to
// confirm. If the interactive button message cannot be sent, the question
// falls back to plain text so the protocol still works over degraded sends.
func (c *HandoffCoordinator) RequestEscalation(ctx context.Context, conversation *model.Conversation, contact *model.Contact, reason string) error {
	log := logger.FromContext(ctx)

	request := model.HandoffRequest{
		ID:             uuid.NewString(),
		CompanyID:      conversation.CompanyID,
		ConversationID: conversation.ID,
		Status:         model.HandoffWaiting,
		Reason:         reason,
	}
	if err := c.handoffRepo.Save(ctx, request); err != nil {
		// A WAITING request already exists; the question is already out.
		if apperrors.IsDuplicateError(err) {
			log.Debug("Escalation already pending", zap.String("conversation_id", conversation.ID))
			return nil
		}
		return err
	}

	if err := c.conversationRepo.UpdateAttendance(ctx, conversation.ID, model.AttendancePending); err != nil {
		return err
	}
	conversation.Attendance = model.AttendancePending
	observer.IncHandoffTransition(conversation.CompanyID, "requested")

	buttons := []provider.Button{
		{ID: model.ButtonConfirmHandoff, Title: "Sim"},
		{ID: model.ButtonCancelHandoff, Title: "Não"},
	}
	if _, err := c.gate.SendInteractive(ctx, conversation, contact, handoffPromptBody, buttons, model.SenderSystem); err != nil {
		log.Warn("Interactive handoff prompt failed, falling back to plain text",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err))
		if _, txtErr := c.gate.SendText(ctx, conversation, contact, handoffPromptPlain, model.SenderSystem); txtErr != nil {
			return txtErr
		}
	}

	if pubErr := c.publisher.PublishTransition(ctx, model.TransitionEvent{
		Kind:           model.TransitionHandoffRequested,
		CompanyID:      conversation.CompanyID,
		ConversationID: conversation.ID,
		ContactID:      contact.ID,
		Detail:         map[string]interface{}{"reason": reason},
	}); pubErr != nil {
		log.Warn("Failed to publish handoff request transition", zap.Error(pubErr))
	}
	return nil
}

// HandleButtonReply resolves a pending handoff from a quick-reply button. It
// reports whether the button belonged to the handoff protocol.
func (c *HandoffCoordinator) HandleButtonReply(ctx context.Context, conversation *model.Conversation, contact *model.Contact, buttonID string) (bool, error) {
	switch buttonID {
	case model.ButtonConfirmHandoff:
		return true, c.resolve(ctx, conversation, contact, true)
	case model.ButtonCancelHandoff:
		return true, c.resolve(ctx, conversation, contact, false)
	default:
		return false, nil
	}
}

// HandlePlainReply interprets free text while the confirmation question is
// pending. Unrecognized text re-asks the question rather than letting the AI
// answer with a confirmation still open.
func (c *HandoffCoordinator) HandlePlainReply(ctx context.Context, conversation *model.Conversation, contact *model.Contact, text string) error {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if _, ok := handoffAffirmatives[normalized]; ok {
		return c.resolve(ctx, conversation, contact, true)
	}
	if _, ok := handoffNegatives[normalized]; ok {
		return c.resolve(ctx, conversation, contact, false)
	}

	_, err := c.gate.SendText(ctx, conversation, contact, handoffUnrecognizedTxt, model.SenderSystem)
	return err
}

func (c *HandoffCoordinator) resolve(ctx context.Context, conversation *model.Conversation, contact *model.Contact, confirmed bool) error {
	log := logger.FromContext(ctx)

	request, err := c.handoffRepo.FindWaitingByConversation(ctx, conversation.ID)
	if err != nil {
		// No WAITING request: a duplicate delivery or stale button press
		// after the request was already resolved. Nothing to do.
		if apperrors.IsNotFoundError(err) {
			log.Debug("Handoff resolution with no pending request",
				zap.String("conversation_id", conversation.ID),
				zap.Bool("confirmed", confirmed))
			return nil
		}
		return err
	}

	status := model.HandoffDeclined
	attendance := model.AttendanceAI
	transition := model.TransitionHandoffDeclined
	ackText := handoffDeclinedText
	metricLabel := "declined"
	if confirmed {
		status = model.HandoffConfirmed
		attendance = model.AttendanceTransferred
		transition = model.TransitionHandoffConfirmed
		ackText = handoffConfirmedText
		metricLabel = "confirmed"
	}

	if err := c.handoffRepo.Resolve(ctx, request.ID, status); err != nil {
		if apperrors.IsNotFoundError(err) {
			// Lost a resolution race; the other delivery won.
			return nil
		}
		return err
	}
	if err := c.conversationRepo.UpdateAttendance(ctx, conversation.ID, attendance); err != nil {
		return err
	}
	conversation.Attendance = attendance
	observer.IncHandoffTransition(conversation.CompanyID, metricLabel)

	log.Info("Handoff resolved",
		zap.String("conversation_id", conversation.ID),
		zap.String("status", status))

	if _, sendErr := c.gate.SendText(ctx, conversation, contact, ackText, model.SenderSystem); sendErr != nil {
		log.Warn("Failed to send handoff resolution ack", zap.Error(sendErr))
	}

	if pubErr := c.publisher.PublishTransition(ctx, model.TransitionEvent{
		Kind:           transition,
		CompanyID:      conversation.CompanyID,
		ConversationID: conversation.ID,
		ContactID:      contact.ID,
		Detail:         map[string]interface{}{"request_id": request.ID, "reason": request.Reason},
	}); pubErr != nil {
		log.Warn("Failed to publish handoff transition", zap.Error(pubErr))
	}
	return nil
}
