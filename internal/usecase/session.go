package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/stream"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// SessionTracker maintains the renewable customer-initiated session window.
// Every inbound customer message pushes the deadline out by the full window;
// outbound sends never extend it.
type SessionTracker struct {
	conversationRepo storage.ConversationRepo
	publisher        stream.PublisherInterface
	window           time.Duration
}

// NewSessionTracker creates a session tracker.
func NewSessionTracker(conversationRepo storage.ConversationRepo, publisher stream.PublisherInterface, window time.Duration) *SessionTracker {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &SessionTracker{
		conversationRepo: conversationRepo,
		publisher:        publisher,
		window:           window,
	}
}

// Window returns the configured session window length.
func (t *SessionTracker) Window() time.Duration {
	return t.window
}

// Renew extends the conversation's session deadline from now. The updated
// deadline is written through and mirrored on the in-memory conversation so
// callers gate sends against the renewed window, not the stale one.
func (t *SessionTracker) Renew(ctx context.Context, conversation *model.Conversation) error {
	now := utils.Now()
	expiresAt := now.Add(t.window)

	if err := t.conversationRepo.RenewSession(ctx, conversation.ID, expiresAt); err != nil {
		return err
	}
	wasClosed := !conversation.SessionOpen(now)
	conversation.SessionExpiresAt = expiresAt

	logger.FromContext(ctx).Debug("Renewed session window",
		zap.String("conversation_id", conversation.ID),
		zap.Time("expires_at", expiresAt),
		zap.Bool("was_closed", wasClosed))

	if pubErr := t.publisher.PublishTransition(ctx, model.TransitionEvent{
		Kind:           model.TransitionSessionRenewed,
		CompanyID:      conversation.CompanyID,
		ConversationID: conversation.ID,
		ContactID:      conversation.ContactID,
		Detail: map[string]interface{}{
			"expires_at": expiresAt.Format(time.RFC3339),
			"reopened":   wasClosed,
		},
	}); pubErr != nil {
		// Transition events are observability, not state; a publish failure
		// must not fail inbound processing.
		logger.FromContext(ctx).Warn("Failed to publish session renewal",
			zap.String("conversation_id", conversation.ID),
			zap.Error(pubErr))
	}
	return nil
}

// Open reports whether the conversation can still receive free-form sends.
func (t *SessionTracker) Open(conversation *model.Conversation) bool {
	return conversation.SessionOpen(utils.Now())
}
