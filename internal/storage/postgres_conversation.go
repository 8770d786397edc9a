package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// --- Conversation Repository Methods ---

// CreateConversation inserts a new conversation. The partial unique index on
// (company_id, contact_id) WHERE status = 'ACTIVE' turns creation races into
// ErrDuplicate, which the identity resolver recovers by re-reading the winner.
func (r *PostgresRepo) CreateConversation(ctx context.Context, conversation model.Conversation) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != conversation.CompanyID {
		return fmt.Errorf("%w: conversation CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, conversation.CompanyID, companyID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&conversation).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateConversation", operation)
	observer.ObserveDbOperationDuration("save", "conversation", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if !apperrors.IsDuplicateError(commitErr) {
			logger.FromContext(ctx).Error("Failed to create conversation after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// FindConversationByID retrieves a conversation by primary key within the tenant.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var conversation model.Conversation
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("id = ? AND company_id = ?", id, companyID).
			First(&conversation).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find", "conversation", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation with id %s: %w", apperrors.ErrNotFound, id, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find conversation by id: %w", apperrors.ErrDatabase, findErr)
	}
	return &conversation, nil
}

// FindActiveConversationByContact retrieves the single ACTIVE conversation for
// a contact, if one exists.
func (r *PostgresRepo) FindActiveConversationByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var conversation model.Conversation
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("contact_id = ? AND company_id = ? AND status = ?", contactID, companyID, model.ConversationActive).
			First(&conversation).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindActiveConversationByContact", operation)
	observer.ObserveDbOperationDuration("find", "conversation", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: active conversation for contact %s: %w", apperrors.ErrNotFound, contactID, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find active conversation: %w", apperrors.ErrDatabase, findErr)
	}
	return &conversation, nil
}

// RenewConversationSession extends the session window deadline.
func (r *PostgresRepo) RenewConversationSession(ctx context.Context, conversationID string, expiresAt time.Time) error {
	return r.updateConversationFields(ctx, conversationID, "RenewConversationSession", map[string]interface{}{
		"session_expires_at": expiresAt,
		"updated_at":         utils.Now(),
	})
}

// UpdateConversationAttendance moves the conversation between ai,
// pending_handoff, and transferred attendance.
func (r *PostgresRepo) UpdateConversationAttendance(ctx context.Context, conversationID string, attendance string) error {
	return r.updateConversationFields(ctx, conversationID, "UpdateConversationAttendance", map[string]interface{}{
		"attendance": attendance,
		"updated_at": utils.Now(),
	})
}

// UpdateConversationLastMessage refreshes the denormalized last-message snapshot.
func (r *PostgresRepo) UpdateConversationLastMessage(ctx context.Context, conversationID string, text string, at time.Time) error {
	return r.updateConversationFields(ctx, conversationID, "UpdateConversationLastMessage", map[string]interface{}{
		"last_message_text": text,
		"last_message_at":   at,
		"updated_at":        utils.Now(),
	})
}

// CloseConversation marks the conversation CLOSED, releasing the active slot
// for the contact.
func (r *PostgresRepo) CloseConversation(ctx context.Context, conversationID string) error {
	return r.updateConversationFields(ctx, conversationID, "CloseConversation", map[string]interface{}{
		"status":     model.ConversationClosed,
		"updated_at": utils.Now(),
	})
}

func (r *PostgresRepo) updateConversationFields(ctx context.Context, conversationID, opName string, fields map[string]interface{}) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Conversation{}).
			Where("id = ? AND company_id = ?", conversationID, companyID).
			Updates(fields)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoffPermanentNotFound("conversation", conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, opName, operation)
	observer.ObserveDbOperationDuration("update", "conversation", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update conversation after retries",
			zap.String("operation", opName),
			zap.String("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
