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

// --- Handoff Request Repository Methods ---

// SaveHandoffRequest inserts a new escalation record. The partial unique index
// on conversation_id WHERE status = 'WAITING' prevents stacking confirmations.
func (r *PostgresRepo) SaveHandoffRequest(ctx context.Context, request model.HandoffRequest) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != request.CompanyID {
		return fmt.Errorf("%w: handoff CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, request.CompanyID, companyID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&request).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveHandoffRequest", operation)
	observer.ObserveDbOperationDuration("save", "handoff_request", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if !apperrors.IsDuplicateError(commitErr) {
			logger.FromContext(ctx).Error("Failed to save handoff request after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// FindWaitingHandoffByConversation retrieves the live WAITING request for a
// conversation, if any.
func (r *PostgresRepo) FindWaitingHandoffByConversation(ctx context.Context, conversationID string) (*model.HandoffRequest, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var request model.HandoffRequest
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ? AND company_id = ? AND status = ?", conversationID, companyID, model.HandoffWaiting).
			First(&request).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindWaitingHandoffByConversation", operation)
	observer.ObserveDbOperationDuration("find", "handoff_request", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: waiting handoff for conversation %s: %w", apperrors.ErrNotFound, conversationID, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find waiting handoff: %w", apperrors.ErrDatabase, findErr)
	}
	return &request, nil
}

// ResolveHandoffRequest finalizes a WAITING request as CONFIRMED or DECLINED.
// Only WAITING rows qualify, so a duplicate button press is a clean no-op error.
func (r *PostgresRepo) ResolveHandoffRequest(ctx context.Context, requestID string, status string) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if status != model.HandoffConfirmed && status != model.HandoffDeclined {
		return fmt.Errorf("%w: invalid handoff resolution status %q", apperrors.ErrBadRequest, status)
	}

	now := utils.Now()
	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.HandoffRequest{}).
			Where("id = ? AND company_id = ? AND status = ?", requestID, companyID, model.HandoffWaiting).
			Updates(map[string]interface{}{
				"status":      status,
				"resolved_at": now,
				"updated_at":  now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoffPermanentNotFound("handoff_request", requestID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ResolveHandoffRequest", operation)
	observer.ObserveDbOperationDuration("update", "handoff_request", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to resolve handoff request after retries",
			zap.String("request_id", requestID),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
