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

func TestPostgresRepo_FindMessageByProviderMessageID_Found(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	now := time.Now()
	cols := []string{"id", "message_id", "provider_message_id", "conversation_id", "company_id", "flow", "status", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow(int64(7), "msg-1", "wamid.abc", "conv-1", testTenantID, model.MessageFlowOutgoing, model.StatusSent, now, now)
	selectQuery := `SELECT * FROM "messages" WHERE provider_message_id = $1 AND company_id = $2 ORDER BY "messages"."id" LIMIT $3`
	mock.ExpectQuery(selectQuery).WithArgs("wamid.abc", testTenantID, 1).WillReturnRows(rows)

	found, err := repo.FindMessageByProviderMessageID(ctx, "wamid.abc")
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, "msg-1", found.MessageID)
	assert.Equal(t, model.StatusSent, found.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindMessageByProviderMessageID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	selectQuery := `SELECT * FROM "messages" WHERE provider_message_id = $1 AND company_id = $2 ORDER BY "messages"."id" LIMIT $3`
	mock.ExpectQuery(selectQuery).WithArgs("wamid.unknown", testTenantID, 1).WillReturnError(gorm.ErrRecordNotFound)

	found, err := repo.FindMessageByProviderMessageID(ctx, "wamid.unknown")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceMessageStatus_Delivered(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	// delivered advances from sent or received; IN list order comes from a map
	updateQuery := `UPDATE "messages" SET "status"=$1,"updated_at"=$2 WHERE provider_message_id = $3 AND company_id = $4 AND status IN ($5,$6)`
	mock.ExpectExec(updateQuery).
		WithArgs(model.StatusDelivered, AnyTime{}, "wamid.abc", testTenantID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	advanced, err := repo.AdvanceMessageStatus(ctx, "wamid.abc", model.StatusDelivered)
	assert.NoError(t, err)
	assert.True(t, advanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceMessageStatus_Read(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	updateQuery := `UPDATE "messages" SET "status"=$1,"updated_at"=$2 WHERE provider_message_id = $3 AND company_id = $4 AND status IN ($5,$6,$7)`
	mock.ExpectExec(updateQuery).
		WithArgs(model.StatusRead, AnyTime{}, "wamid.abc", testTenantID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	advanced, err := repo.AdvanceMessageStatus(ctx, "wamid.abc", model.StatusRead)
	assert.NoError(t, err)
	assert.True(t, advanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceMessageStatus_NoopWhenAlreadyAhead(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	// stored status is already read; delivered matches no rows
	updateQuery := `UPDATE "messages" SET "status"=$1,"updated_at"=$2 WHERE provider_message_id = $3 AND company_id = $4 AND status IN ($5,$6)`
	mock.ExpectExec(updateQuery).
		WithArgs(model.StatusDelivered, AnyTime{}, "wamid.abc", testTenantID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	advanced, err := repo.AdvanceMessageStatus(ctx, "wamid.abc", model.StatusDelivered)
	assert.NoError(t, err)
	assert.False(t, advanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceMessageStatus_RejectsNonReconcilable(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()

	for _, status := range []string{model.StatusReceived, model.StatusFailed, "bogus"} {
		advanced, err := repo.AdvanceMessageStatus(ctx, "wamid.abc", status)
		assert.ErrorIs(t, err, apperrors.ErrBadRequest)
		assert.False(t, advanced)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListRecentMessagesByConversation(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	now := time.Now()
	cols := []string{"id", "message_id", "conversation_id", "company_id", "message_text", "message_timestamp", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(int64(3), "msg-3", "conv-1", testTenantID, "newest", int64(300), now, now).
		AddRow(int64(2), "msg-2", "conv-1", testTenantID, "middle", int64(200), now, now).
		AddRow(int64(1), "msg-1", "conv-1", testTenantID, "oldest", int64(100), now, now)
	selectQuery := `SELECT * FROM "messages" WHERE conversation_id = $1 AND company_id = $2 ORDER BY message_timestamp DESC LIMIT $3`
	mock.ExpectQuery(selectQuery).WithArgs("conv-1", testTenantID, 3).WillReturnRows(rows)

	messages, err := repo.ListRecentMessagesByConversation(ctx, "conv-1", 3)
	assert.NoError(t, err)
	assert.Len(t, messages, 3)
	// returned chronologically
	assert.Equal(t, "oldest", messages[0].MessageText)
	assert.Equal(t, "newest", messages[2].MessageText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveMessage_TenantMismatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTenant()
	message := model.Message{MessageID: "msg-mismatch", CompanyID: "wrong-tenant", ConversationID: "conv-1"}
	err := repo.SaveMessage(ctx, message)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}
