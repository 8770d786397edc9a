package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/stream"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
)

// OptOutRegistry handles opt-out keyword detection and suppression state.
// Keyword matching is exact on the trimmed, lowercased message text; a message
// that merely contains a keyword ("please stop sending these") does not match.
type OptOutRegistry struct {
	contactRepo storage.ContactRepo
	cache       *cache.OptOutCache
	publisher   stream.PublisherInterface
	keywords    map[string]struct{}
	ackText     string
}

// NewOptOutRegistry creates a registry from the configured keyword list.
func NewOptOutRegistry(
	contactRepo storage.ContactRepo,
	optOutCache *cache.OptOutCache,
	publisher stream.PublisherInterface,
	keywords []string,
	ackText string,
) *OptOutRegistry {
	keywordSet := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywordSet[k] = struct{}{}
		}
	}
	return &OptOutRegistry{
		contactRepo: contactRepo,
		cache:       optOutCache,
		publisher:   publisher,
		keywords:    keywordSet,
		ackText:     ackText,
	}
}

// AckText returns the confirmation sent after a successful opt-out.
func (r *OptOutRegistry) AckText() string {
	return r.ackText
}

// IsOptOutMessage reports whether the message text is an opt-out command.
func (r *OptOutRegistry) IsOptOutMessage(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	_, ok := r.keywords[normalized]
	return ok
}

// RegisterOptOut flips the contact's suppression flag, warms the cache, and
// publishes the transition. Idempotent: a second opt-out message repeats the
// write harmlessly.
func (r *OptOutRegistry) RegisterOptOut(ctx context.Context, contact *model.Contact, conversationID string) error {
	log := logger.FromContext(ctx)

	if err := r.contactRepo.SetOptOut(ctx, contact.ID, true); err != nil {
		return err
	}
	contact.OptOut = true
	r.cache.MarkOptedOut(contact.PhoneNumber)
	observer.IncPipelineAction(string(model.EventMessage), contact.CompanyID, "opt_out", "")

	log.Info("Contact opted out",
		zap.String("contact_id", contact.ID),
		zap.String("conversation_id", conversationID))

	if pubErr := r.publisher.PublishTransition(ctx, model.TransitionEvent{
		Kind:           model.TransitionContactOptedOut,
		CompanyID:      contact.CompanyID,
		ConversationID: conversationID,
		ContactID:      contact.ID,
	}); pubErr != nil {
		log.Warn("Failed to publish opt-out transition", zap.Error(pubErr))
	}
	return nil
}

// IsOptedOut reports the contact's suppression state, using the bloom cache
// to skip the database on the common path. A cache hit is only probabilistic,
// so positive answers are verified against the loaded contact.
func (r *OptOutRegistry) IsOptedOut(ctx context.Context, contact *model.Contact) bool {
	switch r.cache.CheckOptOutStatus(contact.PhoneNumber) {
	case cache.StatusMaybeOptedOut:
		if contact.OptOut {
			return true
		}
		r.cache.RecordFalsePositive("optedout")
		return false
	case cache.StatusMaybeActive:
		return contact.OptOut
	default:
		if contact.OptOut {
			r.cache.MarkOptedOut(contact.PhoneNumber)
		} else {
			r.cache.MarkActive(contact.PhoneNumber)
		}
		return contact.OptOut
	}
}
