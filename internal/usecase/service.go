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
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/stream"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// InboundService runs the inbound pipeline: identity resolution, session
// renewal, persistence, opt-out handling, handoff routing, and reply
// dispatch. It is the single entry point the webhook layer calls into.
type InboundService struct {
	identity         *IdentityResolver
	session          *SessionTracker
	optOut           *OptOutRegistry
	handoff          *HandoffCoordinator
	gate             *OutboundGate
	worker           IReplyWorker
	messageRepo      storage.MessageRepo
	conversationRepo storage.ConversationRepo
	publisher        stream.PublisherInterface
	baseLogger       *zap.Logger
}

// NewInboundService creates the inbound pipeline service.
func NewInboundService(
	identity *IdentityResolver,
	session *SessionTracker,
	optOut *OptOutRegistry,
	handoff *HandoffCoordinator,
	gate *OutboundGate,
	worker IReplyWorker,
	messageRepo storage.MessageRepo,
	conversationRepo storage.ConversationRepo,
	publisher stream.PublisherInterface,
	baseLogger *zap.Logger,
) *InboundService {
	return &InboundService{
		identity:         identity,
		session:          session,
		optOut:           optOut,
		handoff:          handoff,
		gate:             gate,
		worker:           worker,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		publisher:        publisher,
		baseLogger:       baseLogger,
	}
}

// ProcessInbound handles one contact-originated message end to end. Every
// recognized message is persisted, including ones from opted-out or
// transferred conversations; only the reply side is gated.
func (s *InboundService) ProcessInbound(ctx context.Context, inbound *model.InboundMessage) error {
	log := logger.FromContext(ctx)
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	phone := utils.NormalizePhone(inbound.From)
	if phone == "" {
		return apperrors.NewFatal(fmt.Errorf("%w: empty sender phone", apperrors.ErrBadRequest), "inbound message has no usable sender")
	}

	contact, err := s.identity.ResolveContact(ctx, phone, inbound.PushName)
	if err != nil {
		return err
	}
	conversation, err := s.identity.ResolveConversation(ctx, contact)
	if err != nil {
		return err
	}
	if err := s.session.Renew(ctx, conversation); err != nil {
		return err
	}

	stored, err := s.storeInbound(ctx, conversation, inbound)
	if err != nil {
		if apperrors.IsDuplicateError(err) {
			// Redelivery of an already-persisted message; the first
			// delivery did all the work.
			log.Debug("Skipping duplicate inbound message",
				zap.String("provider_message_id", inbound.ProviderMessageID))
			observer.IncPipelineAction("message", companyID, "duplicate", "")
			return nil
		}
		return err
	}

	if err := s.conversationRepo.UpdateLastMessage(ctx, conversation.ID, stored.MessageText, utils.Now()); err != nil {
		log.Warn("Failed to update conversation last message", zap.Error(err))
	}

	if inbound.MessageKind == model.MessageKindText && s.optOut.IsOptOutMessage(inbound.Text) {
		// Ack goes out before the flag flips so the gate does not block it.
		if _, sendErr := s.gate.SendText(ctx, conversation, contact, s.optOut.AckText(), model.SenderSystem); sendErr != nil {
			log.Warn("Failed to send opt-out acknowledgement", zap.Error(sendErr))
		}
		return s.optOut.RegisterOptOut(ctx, contact, conversation.ID)
	}

	if s.optOut.IsOptedOut(ctx, contact) {
		log.Debug("Contact opted out, storing message without reply",
			zap.String("contact_id", contact.ID))
		observer.IncPipelineAction("message", companyID, "store_only_optout", "")
		return nil
	}

	if inbound.ButtonReplyID != "" {
		handled, btnErr := s.handoff.HandleButtonReply(ctx, conversation, contact, inbound.ButtonReplyID)
		if btnErr != nil {
			return btnErr
		}
		if handled {
			observer.IncPipelineAction("message", companyID, "handoff_button", "")
			return nil
		}
		log.Debug("Unrecognized button reply, treating as plain message",
			zap.String("button_reply_id", inbound.ButtonReplyID))
	}

	if conversation.Attendance == model.AttendancePending {
		observer.IncPipelineAction("message", companyID, "handoff_reply", "")
		return s.handoff.HandlePlainReply(ctx, conversation, contact, inbound.Text)
	}

	if conversation.Attendance == model.AttendanceTransferred {
		// A human owns the conversation. Persist and stay quiet.
		observer.IncPipelineAction("message", companyID, "store_only_transferred", "")
		return nil
	}

	if inbound.Text == "" {
		log.Debug("Inbound message carries no text, skipping reply generation",
			zap.String("message_kind", inbound.MessageKind))
		observer.IncPipelineAction("message", companyID, "store_only_empty", "")
		return nil
	}

	taskCtx := logger.WithLogger(context.Background(), s.baseLogger)
	taskCtx = tenant.WithCompanyID(taskCtx, companyID)
	if err := s.worker.SubmitTask(ReplyTaskData{
		Ctx:          taskCtx,
		Conversation: *conversation,
		Contact:      *contact,
		InboundText:  inbound.Text,
	}); err != nil {
		observer.IncPipelineAction("message", companyID, "reply_submit", "pool")
		return err
	}
	observer.IncPipelineAction("message", companyID, "reply_submit", "")
	return nil
}

// ReconcileStatus applies a delivery receipt to the message ledger. The
// status only ever moves forward; duplicate and out-of-order receipts
// resolve to no-ops.
func (s *InboundService) ReconcileStatus(ctx context.Context, update *model.StatusUpdate) error {
	log := logger.FromContext(ctx)
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	if update.ProviderMessageID == "" {
		return apperrors.NewFatal(fmt.Errorf("%w: missing provider message id", apperrors.ErrBadRequest), "status update not addressable")
	}

	advanced, err := s.messageRepo.AdvanceStatus(ctx, update.ProviderMessageID, update.Status)
	if err != nil {
		return err
	}

	if advanced {
		observer.IncStatusReconciliation(companyID, "advanced")
		if pubErr := s.publisher.PublishTransition(ctx, model.TransitionEvent{
			Kind:      model.TransitionMessageStatus,
			CompanyID: companyID,
			Detail: map[string]interface{}{
				"provider_message_id": update.ProviderMessageID,
				"status":              update.Status,
			},
		}); pubErr != nil {
			log.Warn("Failed to publish message status transition", zap.Error(pubErr))
		}
		return nil
	}

	// Nothing moved. Distinguish an unknown message from a receipt that
	// arrived late or out of order.
	existing, findErr := s.messageRepo.FindByProviderMessageID(ctx, update.ProviderMessageID)
	if findErr != nil {
		if apperrors.IsNotFoundError(findErr) {
			log.Debug("Status update for unknown message",
				zap.String("provider_message_id", update.ProviderMessageID),
				zap.String("status", update.Status))
			observer.IncStatusReconciliation(companyID, "unknown")
			return nil
		}
		return findErr
	}

	if model.StatusRank(existing.Status) > model.StatusRank(update.Status) {
		log.Debug("Ignoring status regression",
			zap.String("provider_message_id", update.ProviderMessageID),
			zap.String("current", existing.Status),
			zap.String("incoming", update.Status))
		observer.IncStatusReconciliation(companyID, "regression")
		if pubErr := s.publisher.PublishTransition(ctx, model.TransitionEvent{
			Kind:      model.TransitionMessageStatus,
			CompanyID: companyID,
			Detail: map[string]interface{}{
				"provider_message_id": update.ProviderMessageID,
				"status":              existing.Status,
				"rejected_status":     update.Status,
			},
		}); pubErr != nil {
			log.Warn("Failed to publish status regression transition", zap.Error(pubErr))
		}
	} else {
		observer.IncStatusReconciliation(companyID, "noop")
	}
	return nil
}

// storeInbound persists the inbound message in the ledger.
func (s *InboundService) storeInbound(ctx context.Context, conversation *model.Conversation, inbound *model.InboundMessage) (*model.Message, error) {
	timestamp := inbound.Timestamp
	if timestamp == 0 {
		timestamp = utils.Now().Unix()
	}
	message := model.Message{
		MessageID:         uuid.NewString(),
		ProviderMessageID: inbound.ProviderMessageID,
		ConversationID:    conversation.ID,
		CompanyID:         conversation.CompanyID,
		Flow:              model.MessageFlowIncoming,
		Sender:            model.SenderContact,
		MessageType:       inbound.MessageKind,
		MessageText:       inbound.Text,
		MessageURL:        inbound.MediaURL,
		Status:            model.StatusReceived,
		MessageTimestamp:  timestamp,
	}
	if len(inbound.Raw) > 0 {
		message.MessageObj = datatypes.JSON(inbound.Raw)
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		return nil, err
	}
	return &message, nil
}
