package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewContact creates a Contact instance with default fake data for tests.
func NewContact(overrideDefaults ...*Contact) *Contact {
	base := &Contact{
		ID:          uuid.NewString(),
		CompanyID:   "tenant_" + gofakeit.LetterN(10),
		PhoneNumber: gofakeit.Numerify("55###########"),
		PushName:    gofakeit.Username(),
		OptOut:      false,
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.PushName != "" {
			base.PushName = ovr.PushName
		}
		if ovr.Qualification != "" {
			base.Qualification = ovr.Qualification
		}
		base.OptOut = ovr.OptOut
	}
	return base
}

// NewConversation creates a Conversation instance with default fake data for tests.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	base := &Conversation{
		ID:               uuid.NewString(),
		CompanyID:        "tenant_" + gofakeit.LetterN(10),
		ContactID:        uuid.NewString(),
		Status:           ConversationActive,
		Attendance:       AttendanceAI,
		LastMessageText:  gofakeit.Sentence(5),
		LastMessageAt:    utils.Now(),
		SessionExpiresAt: utils.Now().Add(24 * time.Hour),
		CreatedAt:        utils.Now().Add(-time.Duration(gofakeit.Number(1, 48)) * time.Hour),
		UpdatedAt:        utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.Attendance != "" {
			base.Attendance = ovr.Attendance
		}
		if !ovr.SessionExpiresAt.IsZero() {
			base.SessionExpiresAt = ovr.SessionExpiresAt
		}
	}
	return base
}

// NewMessage creates a Message instance with default fake data for tests.
func NewMessage(overrideDefaults ...*Message) *Message {
	base := &Message{
		MessageID:         uuid.NewString(),
		ProviderMessageID: "wamid." + gofakeit.LetterN(20),
		ConversationID:    uuid.NewString(),
		CompanyID:         "tenant_" + gofakeit.LetterN(10),
		Flow:              MessageFlowIncoming,
		Sender:            SenderContact,
		MessageType:       MessageKindText,
		MessageText:       gofakeit.Sentence(8),
		Status:            StatusReceived,
		MessageTimestamp:  utils.Now().Unix(),
		CreatedAt:         utils.Now(),
		UpdatedAt:         utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.ProviderMessageID != "" {
			base.ProviderMessageID = ovr.ProviderMessageID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.Flow != "" {
			base.Flow = ovr.Flow
		}
		if ovr.Sender != "" {
			base.Sender = ovr.Sender
		}
		if ovr.MessageText != "" {
			base.MessageText = ovr.MessageText
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
	}
	return base
}
