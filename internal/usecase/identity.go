package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/validator"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// IdentityResolver resolves inbound phone numbers to contact and conversation
// rows, creating them on first message. Webhook delivery is at-least-once and
// concurrent, so create races are expected: the unique indexes make the loser
// fail with ErrDuplicate and the resolver recovers by re-reading the winner.
type IdentityResolver struct {
	contactRepo      storage.ContactRepo
	conversationRepo storage.ConversationRepo
	sessionWindow    time.Duration
}

// NewIdentityResolver creates an identity resolver.
func NewIdentityResolver(contactRepo storage.ContactRepo, conversationRepo storage.ConversationRepo, sessionWindow time.Duration) *IdentityResolver {
	if sessionWindow <= 0 {
		sessionWindow = 24 * time.Hour
	}
	return &IdentityResolver{
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		sessionWindow:    sessionWindow,
	}
}

// ResolveContact finds the contact for a normalized phone or creates it.
// Push name changes on existing contacts are applied opportunistically.
func (r *IdentityResolver) ResolveContact(ctx context.Context, phone, pushName string) (*model.Contact, error) {
	log := logger.FromContext(ctx)

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if phone == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "phone is required to resolve a contact")
	}

	contact, err := r.contactRepo.FindByPhone(ctx, phone)
	if err == nil {
		r.refreshPushName(ctx, contact, pushName)
		return contact, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, err
	}

	newContact := model.Contact{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		PhoneNumber: phone,
		PushName:    pushName,
	}
	if err := validator.Validate(newContact); err != nil {
		return nil, apperrors.NewFatal(fmt.Errorf("%w: %v", apperrors.ErrValidation, err), "invalid contact")
	}
	createErr := r.contactRepo.Save(ctx, newContact)
	if createErr == nil {
		log.Info("Created contact for first inbound message",
			zap.String("contact_id", newContact.ID),
			zap.String("phone", phone))
		return &newContact, nil
	}

	// Lost the create race; the winner's row is committed, read it.
	if apperrors.IsDuplicateError(createErr) {
		log.Debug("Contact create race lost, re-reading winner", zap.String("phone", phone))
		contact, err = r.contactRepo.FindByPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read contact after duplicate: %w", err)
		}
		r.refreshPushName(ctx, contact, pushName)
		return contact, nil
	}
	return nil, createErr
}

// ResolveConversation finds the contact's ACTIVE conversation or opens one
// with a fresh session window.
func (r *IdentityResolver) ResolveConversation(ctx context.Context, contact *model.Contact) (*model.Conversation, error) {
	log := logger.FromContext(ctx)

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	conversation, err := r.conversationRepo.FindActiveByContact(ctx, contact.ID)
	if err == nil {
		return conversation, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, err
	}

	now := utils.Now()
	newConversation := model.Conversation{
		ID:               uuid.NewString(),
		CompanyID:        companyID,
		ContactID:        contact.ID,
		Status:           model.ConversationActive,
		Attendance:       model.AttendanceAI,
		SessionExpiresAt: now.Add(r.sessionWindow),
	}
	if err := validator.Validate(newConversation); err != nil {
		return nil, apperrors.NewFatal(fmt.Errorf("%w: %v", apperrors.ErrValidation, err), "invalid conversation")
	}
	createErr := r.conversationRepo.Create(ctx, newConversation)
	if createErr == nil {
		log.Info("Opened conversation",
			zap.String("conversation_id", newConversation.ID),
			zap.String("contact_id", contact.ID))
		return &newConversation, nil
	}

	// The partial unique index admits one ACTIVE conversation per contact;
	// a duplicate here means a concurrent delivery opened it first.
	if apperrors.IsDuplicateError(createErr) {
		log.Debug("Conversation create race lost, re-reading winner", zap.String("contact_id", contact.ID))
		conversation, err = r.conversationRepo.FindActiveByContact(ctx, contact.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read conversation after duplicate: %w", err)
		}
		return conversation, nil
	}
	return nil, createErr
}

// refreshPushName applies a changed display name without failing the inbound
// path when the update cannot be written.
func (r *IdentityResolver) refreshPushName(ctx context.Context, contact *model.Contact, pushName string) {
	if pushName == "" || pushName == contact.PushName {
		return
	}
	contact.PushName = pushName
	if err := r.contactRepo.Update(ctx, *contact); err != nil {
		logger.FromContext(ctx).Warn("Failed to refresh contact push name",
			zap.String("contact_id", contact.ID),
			zap.Error(err))
	}
}
