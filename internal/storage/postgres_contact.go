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

// --- Contact Repository Methods ---

// SaveContact inserts a new contact. A unique violation on
// (company_id, phone_number) surfaces as ErrDuplicate so the identity
// resolver can recover by re-reading the winner row.
func (r *PostgresRepo) SaveContact(ctx context.Context, contact model.Contact) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != contact.CompanyID {
		return fmt.Errorf("%w: contact CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, contact.CompanyID, companyID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&contact).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveContact", operation)
	observer.ObserveDbOperationDuration("save", "contact", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if !apperrors.IsDuplicateError(commitErr) {
			logger.FromContext(ctx).Error("Failed to save contact after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// UpdateContact updates the mutable profile columns of an existing contact.
func (r *PostgresRepo) UpdateContact(ctx context.Context, contact model.Contact) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if companyID != contact.CompanyID {
		return fmt.Errorf("%w: contact CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, contact.CompanyID, companyID)
	}
	contact.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Contact{}).
			Where("id = ? AND company_id = ?", contact.ID, companyID).
			Select(model.ContactUpdateColumns()).
			Updates(contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoffPermanentNotFound("contact", contact.ID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateContact", operation)
	observer.ObserveDbOperationDuration("update", "contact", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update contact after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindContactByID retrieves a contact by primary key within the tenant.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var contact model.Contact
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("id = ? AND company_id = ?", id, companyID).
			First(&contact).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByID", operation)
	observer.ObserveDbOperationDuration("find", "contact", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: contact with id %s: %w", apperrors.ErrNotFound, id, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find contact by id: %w", apperrors.ErrDatabase, findErr)
	}
	return &contact, nil
}

// FindContactByPhone retrieves a contact by normalized phone within the tenant.
func (r *PostgresRepo) FindContactByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var contact model.Contact
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("phone_number = ? AND company_id = ?", phone, companyID).
			First(&contact).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByPhone", operation)
	observer.ObserveDbOperationDuration("find", "contact", companyID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: contact with phone %s: %w", apperrors.ErrNotFound, phone, findErr)
		}
		return nil, fmt.Errorf("%w: failed to find contact by phone: %w", apperrors.ErrDatabase, findErr)
	}
	return &contact, nil
}

// SetContactOptOut flips the opt-out flag on a contact row.
func (r *PostgresRepo) SetContactOptOut(ctx context.Context, contactID string, optedOut bool) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Contact{}).
			Where("id = ? AND company_id = ?", contactID, companyID).
			Updates(map[string]interface{}{
				"opt_out":    optedOut,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoffPermanentNotFound("contact", contactID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetContactOptOut", operation)
	observer.ObserveDbOperationDuration("update", "contact", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to set contact opt-out after retries",
			zap.String("contact_id", contactID),
			zap.Bool("opted_out", optedOut),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// UpdateContactQualification stores the qualification tag assigned by the AI.
func (r *PostgresRepo) UpdateContactQualification(ctx context.Context, contactID string, qualification string) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Contact{}).
			Where("id = ? AND company_id = ?", contactID, companyID).
			Updates(map[string]interface{}{
				"qualification": qualification,
				"updated_at":    utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoffPermanentNotFound("contact", contactID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateContactQualification", operation)
	observer.ObserveDbOperationDuration("update", "contact", companyID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update contact qualification after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// backoffPermanentNotFound wraps a zero-rows update as a permanent not-found.
func backoffPermanentNotFound(entity, id string) error {
	return fmt.Errorf("%w: %s with id %s not found for update", apperrors.ErrNotFound, entity, id)
}
