package model

import (
	"encoding/json"
	"time"
)

// EventKind discriminates the closed union produced by the payload normalizer.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventStatus       EventKind = "status"
	EventConnection   EventKind = "connection"
	EventUnrecognized EventKind = "unrecognized"
)

// Inbound message kinds
const (
	MessageKindText     = "text"
	MessageKindImage    = "image"
	MessageKindDocument = "document"
	MessageKindAudio    = "audio"
	MessageKindVideo    = "video"
)

// NormalizedEvent is the canonical form every recognized webhook envelope
// collapses into. Exactly one of the variant pointers is non-nil for the
// matching kind; Unrecognized events carry only the original top-level keys
// for diagnostics.
type NormalizedEvent struct {
	Kind        EventKind
	Message     *InboundMessage
	Status      *StatusUpdate
	Connection  *ConnectionUpdate
	UnknownKeys []string
}

// InboundMessage is the canonical record of one contact-originated message,
// independent of which envelope shape carried it.
type InboundMessage struct {
	From              string          `json:"from"`
	PushName          string          `json:"push_name,omitempty"`
	Text              string          `json:"text,omitempty"`
	MessageKind       string          `json:"message_kind"`
	MediaURL          string          `json:"media_url,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	ButtonReplyID     string          `json:"button_reply_id,omitempty"`
	Timestamp         int64           `json:"timestamp,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

// StatusUpdate is a delivery/read receipt for a previously sent message,
// keyed by the provider-assigned message id.
type StatusUpdate struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
	Timestamp         int64  `json:"timestamp,omitempty"`
}

// ConnectionUpdate reports a change in the provider channel state.
type ConnectionUpdate struct {
	Status string `json:"status"`
}

// --- Conversation transition events --- //

// TransitionKind names the typed events published when conversation state
// changes. External collaborators (notifications, UI refresh) subscribe to
// these instead of registering in-process callbacks.
type TransitionKind string

const (
	TransitionSessionRenewed   TransitionKind = "session.renewed"
	TransitionHandoffRequested TransitionKind = "handoff.requested"
	TransitionHandoffConfirmed TransitionKind = "handoff.confirmed"
	TransitionHandoffDeclined  TransitionKind = "handoff.declined"
	TransitionMessageStatus    TransitionKind = "message.status"
	TransitionContactOptedOut  TransitionKind = "contact.opted_out"
)

// TransitionEvent is the wire payload published on the conversation event
// stream for every state transition.
type TransitionEvent struct {
	Kind           TransitionKind         `json:"kind"`
	CompanyID      string                 `json:"company_id"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	ContactID      string                 `json:"contact_id,omitempty"`
	Detail         map[string]interface{} `json:"detail,omitempty"`
	Timestamp      time.Time              `json:"ts"`
}
