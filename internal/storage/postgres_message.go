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

// --- Message Repository Methods ---

// SaveMessage appends one entry to the message ledger. The partial unique
// index on (company_id, provider_message_id) makes duplicate webhook
// deliveries surface as ErrDuplicate instead of double rows.
func (r *PostgresRepo) SaveMessage(ctx context.Context, message model.Message) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != message.CompanyID {
		return fmt.Errorf("%w: message CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.CompanyID, companyID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&message).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessage", operation)
	observer.ObserveDbOperationDuration("save", "message", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if !apperrors.IsDuplicateError(commitErr) {
			logger.FromContext(ctx).Error("Failed to save message after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// FindMessageByMessageID retrieves a message by its internal message id.
func (r *PostgresRepo) FindMessageByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var message model.Message
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("message_id = ? AND company_id = ?", messageID, companyID).
			First(&message).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByMessageID", operation)
	observer.ObserveDbOperationDuration("find", "message", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message with id %s: %w", apperrors.ErrNotFound, messageID, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find message by id: %w", apperrors.ErrDatabase, findErr)
	}
	return &message, nil
}

// FindMessageByProviderMessageID retrieves a message by the provider's id.
func (r *PostgresRepo) FindMessageByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var message model.Message
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("provider_message_id = ? AND company_id = ?", providerMessageID, companyID).
			First(&message).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByProviderMessageID", operation)
	observer.ObserveDbOperationDuration("find", "message", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message with provider id %s: %w", apperrors.ErrNotFound, providerMessageID, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find message by provider id: %w", apperrors.ErrDatabase, findErr)
	}
	return &message, nil
}

// AdvanceMessageStatus moves a message's delivery status forward. The UPDATE
// is conditional on the stored status being strictly below the new one, so
// duplicate and out-of-order status webhooks collapse to a no-op instead of
// regressing read back to delivered. Returns false when nothing advanced.
func (r *PostgresRepo) AdvanceMessageStatus(ctx context.Context, providerMessageID string, status string) (bool, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	below := model.StatusesBelow(status)
	if len(below) == 0 {
		return false, fmt.Errorf("%w: status %q does not participate in reconciliation", apperrors.ErrBadRequest, status)
	}

	var advanced bool
	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Where("provider_message_id = ? AND company_id = ? AND status IN ?", providerMessageID, companyID, below).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		advanced = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AdvanceMessageStatus", operation)
	observer.ObserveDbOperationDuration("update", "message", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to advance message status after retries",
			zap.String("provider_message_id", providerMessageID),
			zap.String("status", status),
			zap.Error(commitErr))
		return false, commitErr
	}
	return advanced, nil
}

// ListRecentMessagesByConversation returns the most recent messages for a
// conversation in chronological order, capped at limit.
func (r *PostgresRepo) ListRecentMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if limit <= 0 {
		limit = 20
	}

	var messages []model.Message
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ? AND company_id = ?", conversationID, companyID).
			Order("message_timestamp DESC").
			Limit(limit).
			Find(&messages).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListRecentMessagesByConversation", operation)
	observer.ObserveDbOperationDuration("find", "message", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		return nil, fmt.Errorf("%w: failed to list recent messages: %w", apperrors.ErrDatabase, findErr)
	}

	// Reverse into chronological order for collaborator history.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
