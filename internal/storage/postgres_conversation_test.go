package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
)

func TestPostgresRepo_FindActiveConversationByContact_Found(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	now := time.Now()
	cols := []string{"id", "company_id", "contact_id", "status", "attendance", "session_expires_at", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow("conv-1", testTenantID, "contact-1", model.ConversationActive, model.AttendanceAI, now.Add(12*time.Hour), now.Add(-time.Hour), now)
	selectQuery := `SELECT * FROM "conversations" WHERE contact_id = $1 AND company_id = $2 AND status = $3 ORDER BY "conversations"."id" LIMIT $4`
	mock.ExpectQuery(selectQuery).
		WithArgs("contact-1", testTenantID, model.ConversationActive, 1).
		WillReturnRows(rows)

	found, err := repo.FindActiveConversationByContact(ctx, "contact-1")
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, "conv-1", found.ID)
	assert.Equal(t, model.AttendanceAI, found.Attendance)
	assert.True(t, found.SessionOpen(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindActiveConversationByContact_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	selectQuery := `SELECT * FROM "conversations" WHERE contact_id = $1 AND company_id = $2 AND status = $3 ORDER BY "conversations"."id" LIMIT $4`
	mock.ExpectQuery(selectQuery).
		WithArgs("contact-404", testTenantID, model.ConversationActive, 1).
		WillReturnError(gorm.ErrRecordNotFound)

	found, err := repo.FindActiveConversationByContact(ctx, "contact-404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_RenewConversationSession_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	expiresAt := time.Now().Add(24 * time.Hour)
	updateQuery := `UPDATE "conversations" SET "session_expires_at"=$1,"updated_at"=$2 WHERE id = $3 AND company_id = $4`
	mock.ExpectExec(updateQuery).
		WithArgs(expiresAt, AnyTime{}, "conv-1", testTenantID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RenewConversationSession(ctx, "conv-1", expiresAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateConversationAttendance_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	updateQuery := `UPDATE "conversations" SET "attendance"=$1,"updated_at"=$2 WHERE id = $3 AND company_id = $4`
	mock.ExpectExec(updateQuery).
		WithArgs(model.AttendancePending, AnyTime{}, "conv-1", testTenantID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateConversationAttendance(ctx, "conv-1", model.AttendancePending)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateConversationAttendance_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	updateQuery := `UPDATE "conversations" SET "attendance"=$1,"updated_at"=$2 WHERE id = $3 AND company_id = $4`
	mock.ExpectExec(updateQuery).
		WithArgs(model.AttendanceTransferred, AnyTime{}, "conv-404", testTenantID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateConversationAttendance(ctx, "conv-404", model.AttendanceTransferred)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateConversationLastMessage_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	at := time.Now()
	updateQuery := `UPDATE "conversations" SET "last_message_at"=$1,"last_message_text"=$2,"updated_at"=$3 WHERE id = $4 AND company_id = $5`
	mock.ExpectExec(updateQuery).
		WithArgs(at, "oi, tudo bem?", AnyTime{}, "conv-1", testTenantID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateConversationLastMessage(ctx, "conv-1", "oi, tudo bem?", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CloseConversation_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	updateQuery := `UPDATE "conversations" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND company_id = $4`
	mock.ExpectExec(updateQuery).
		WithArgs(model.ConversationClosed, AnyTime{}, "conv-1", testTenantID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CloseConversation(ctx, "conv-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateConversation_TenantMismatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	conversation := model.Conversation{ID: "conv-mismatch", CompanyID: "wrong-tenant", ContactID: "contact-1"}
	err := repo.CreateConversation(ctx, conversation)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}
