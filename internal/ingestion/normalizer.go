package ingestion

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
)

// messageBody is the superset of fields the recognized message envelopes
// carry. Individual providers populate different subsets; extraction falls
// back through the candidates in a fixed order.
type messageBody struct {
	From          string `json:"from"`
	Sender        string `json:"sender"`
	PushName      string `json:"push_name"`
	ID            string `json:"id"`
	Text          string `json:"text"`
	Caption       string `json:"caption"`
	Conversation  string `json:"conversation"`
	MessageType   string `json:"message_type"`
	MediaURL      string `json:"media_url"`
	ButtonReplyID string `json:"button_reply_id"`
	Timestamp     int64  `json:"timestamp"`
	Interactive   *struct {
		ButtonReply *struct {
			ID string `json:"id"`
		} `json:"button_reply"`
	} `json:"interactive"`
}

// statusBody carries delivery/read receipt envelopes.
type statusBody struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

var messageKinds = map[string]struct{}{
	model.MessageKindText:     {},
	model.MessageKindImage:    {},
	model.MessageKindDocument: {},
	model.MessageKindAudio:    {},
	model.MessageKindVideo:    {},
}

// Normalize classifies a raw webhook payload into the canonical event union.
// Three message shapes are recognized: a type=message discriminator with the
// message under "message", a generic "data" wrapper, and the message fields
// directly at the top level. Any valid JSON that does not match a known shape
// comes back as Unrecognized with the top-level keys captured; it is never an
// error. Only a body that is not JSON at all fails.
func Normalize(raw []byte) (*model.NormalizedEvent, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if json.Valid(raw) {
			// Valid JSON but not an object (array, string, number).
			return unrecognized(nil), nil
		}
		return nil, apperrors.NewFatal(
			fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err),
			"webhook payload is not JSON")
	}

	if rawType, ok := envelope["type"]; ok {
		var discriminator string
		if err := json.Unmarshal(rawType, &discriminator); err == nil {
			switch discriminator {
			case "message":
				if rawMessage, ok := envelope["message"]; ok {
					return normalizeMessage(rawMessage, raw)
				}
			case "delivery", "read":
				return normalizeStatus(raw)
			case "connection":
				return normalizeConnection(raw)
			}
			return unrecognized(envelope), nil
		}
	}

	if rawData, ok := envelope["data"]; ok {
		return normalizeMessage(rawData, raw)
	}

	// Bare shape: the message fields sit at the top level.
	if _, ok := envelope["from"]; ok {
		return normalizeMessage(raw, raw)
	}
	if _, ok := envelope["sender"]; ok {
		return normalizeMessage(raw, raw)
	}

	return unrecognized(envelope), nil
}

func normalizeMessage(rawMessage, original []byte) (*model.NormalizedEvent, error) {
	var body messageBody
	if err := json.Unmarshal(rawMessage, &body); err != nil {
		return unrecognizedRaw(original), nil
	}

	from := body.From
	if from == "" {
		from = body.Sender
	}
	if from == "" {
		return unrecognizedRaw(original), nil
	}

	// Body candidates in preference order; first present wins.
	text := body.Text
	if text == "" {
		text = body.Caption
	}
	if text == "" {
		text = body.Conversation
	}

	kind := strings.ToLower(body.MessageType)
	if _, known := messageKinds[kind]; !known {
		kind = model.MessageKindText
	}

	buttonReplyID := body.ButtonReplyID
	if buttonReplyID == "" && body.Interactive != nil && body.Interactive.ButtonReply != nil {
		buttonReplyID = body.Interactive.ButtonReply.ID
	}

	return &model.NormalizedEvent{
		Kind: model.EventMessage,
		Message: &model.InboundMessage{
			From:              from,
			PushName:          body.PushName,
			Text:              text,
			MessageKind:       kind,
			MediaURL:          body.MediaURL,
			ProviderMessageID: body.ID,
			ButtonReplyID:     buttonReplyID,
			Timestamp:         body.Timestamp,
			Raw:               json.RawMessage(original),
		},
	}, nil
}

func normalizeStatus(raw []byte) (*model.NormalizedEvent, error) {
	var body statusBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return unrecognizedRaw(raw), nil
	}

	providerMessageID := body.MessageID
	if providerMessageID == "" {
		providerMessageID = body.ID
	}
	if providerMessageID == "" {
		var envelope map[string]json.RawMessage
		_ = json.Unmarshal(raw, &envelope)
		return unrecognized(envelope), nil
	}

	status := model.StatusDelivered
	if body.Type == "read" {
		status = model.StatusRead
	}

	return &model.NormalizedEvent{
		Kind: model.EventStatus,
		Status: &model.StatusUpdate{
			ProviderMessageID: providerMessageID,
			Status:            status,
			Timestamp:         body.Timestamp,
		},
	}, nil
}

func normalizeConnection(raw []byte) (*model.NormalizedEvent, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return unrecognizedRaw(raw), nil
	}
	return &model.NormalizedEvent{
		Kind:       model.EventConnection,
		Connection: &model.ConnectionUpdate{Status: body.Status},
	}, nil
}

func unrecognizedRaw(raw []byte) *model.NormalizedEvent {
	var envelope map[string]json.RawMessage
	_ = json.Unmarshal(raw, &envelope)
	return unrecognized(envelope)
}

func unrecognized(envelope map[string]json.RawMessage) *model.NormalizedEvent {
	keys := make([]string, 0, len(envelope))
	for k := range envelope {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &model.NormalizedEvent{
		Kind:        model.EventUnrecognized,
		UnknownKeys: keys,
	}
}
