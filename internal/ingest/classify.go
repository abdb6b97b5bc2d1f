// Package ingest accepts provider webhooks, filters out everything that is
// not a fresh inbound customer text, and hands accepted envelopes to the
// reply pipeline without blocking the HTTP response.
package ingest

import (
	"strings"
)

// Envelope is the normalized unit of work produced by classification.
type Envelope struct {
	ConversationID string
	Text           string
	EventKey       string
}

// Verdict explains why a payload was accepted or dropped.
type Verdict struct {
	Accept bool
	Reason string
}

// Event types the provider emits for our own outbound traffic and for
// delivery receipts. None of them carry customer input.
var outboundEventTypes = map[string]struct{}{
	"message_status":        {},
	"sent":                  {},
	"delivered":             {},
	"read":                  {},
	"session_message_sent":  {},
	"template_message_sent": {},
	"message_delivered":     {},
	"message_read":          {},
}

var senderKeys = []string{"waId", "whatsappNumber", "from", "sender"}
var textKeys = []string{"text", "message", "body"}
var typeKeys = []string{"type", "messageType"}
var messageIDKeys = []string{"id", "messageId", "whatsappMessageId"}

const eventKeyTextPrefix = 50

// Classify applies the inbound filter rules in order and builds the envelope
// for accepted payloads. The payload is the decoded webhook body; field names
// vary between provider versions, so every lookup goes through an alias list.
func Classify(payload map[string]any) (Envelope, Verdict) {
	owner, ownerSet := lookupBool(payload, "isOwner", "owner")
	if ownerSet && owner {
		return Envelope{}, Verdict{Reason: "own outbound message"}
	}

	if eventType, ok := lookupString(payload, "eventType", "event"); ok {
		if _, outbound := outboundEventTypes[strings.ToLower(strings.TrimSpace(eventType))]; outbound {
			return Envelope{}, Verdict{Reason: "outbound event type " + eventType}
		}
	}

	// Status heuristics only apply when the payload did not explicitly mark
	// itself as customer-originated.
	if !ownerSet {
		if statusString, ok := lookupString(payload, "statusString"); ok && statusString == "SENT" {
			return Envelope{}, Verdict{Reason: "sent status echo"}
		}
		if status, ok := lookupNumber(payload, "status"); ok && status == 1 {
			return Envelope{}, Verdict{Reason: "numeric sent status"}
		}
		if sourceType, ok := lookupNumber(payload, "sourceType"); ok && sourceType == 0 {
			return Envelope{}, Verdict{Reason: "outbound source type"}
		}
	}

	sender, _ := lookupString(payload, senderKeys...)
	text, _ := lookupString(payload, textKeys...)
	conversationID := digitsOnly(sender)
	text = strings.TrimSpace(text)
	if conversationID == "" || text == "" {
		return Envelope{}, Verdict{Reason: "missing sender or text"}
	}

	modality, ok := lookupString(payload, typeKeys...)
	if !ok || strings.TrimSpace(modality) == "" {
		modality = "text"
	}
	if strings.ToLower(strings.TrimSpace(modality)) != "text" {
		return Envelope{}, Verdict{Reason: "unsupported modality " + modality}
	}

	eventKey, _ := lookupString(payload, messageIDKeys...)
	eventKey = strings.TrimSpace(eventKey)
	if eventKey == "" {
		prefix := []rune(text)
		if len(prefix) > eventKeyTextPrefix {
			prefix = prefix[:eventKeyTextPrefix]
		}
		eventKey = conversationID + "-" + string(prefix)
	}

	return Envelope{
		ConversationID: conversationID,
		Text:           text,
		EventKey:       eventKey,
	}, Verdict{Accept: true}
}

func lookupString(payload map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if text, ok := raw.(string); ok && strings.TrimSpace(text) != "" {
				return text, true
			}
		}
	}
	return "", false
}

func lookupBool(payload map[string]any, keys ...string) (value bool, present bool) {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := raw.(type) {
		case bool:
			return typed, true
		case string:
			switch strings.ToLower(strings.TrimSpace(typed)) {
			case "true":
				return true, true
			case "false":
				return false, true
			}
		}
	}
	return false, false
}

func lookupNumber(payload map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if number, ok := raw.(float64); ok {
				return number, true
			}
		}
	}
	return 0, false
}

func digitsOnly(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
