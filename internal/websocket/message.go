package websocket

import (
	"encoding/json"
	"time"

	"commerce-sync-engine/internal/domain"
)

type MessageType string

const (
	TypeEntityUpdated MessageType = "entity_updated"
	TypeEntityDeleted MessageType = "entity_deleted"
	TypeInteraction   MessageType = "interaction"
	TypeReviewQueued  MessageType = "review_queued"
	TypeSubscribe     MessageType = "subscribe"
	TypeAck           MessageType = "ack"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload replaces the client's entity type filter. Empty means all.
type SubscribePayload struct {
	EntityTypes []domain.EntityType `json:"entity_types"`
}

type AckPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

func messageTypeFor(kind domain.NotificationKind) MessageType {
	switch kind {
	case domain.NotificationEntityDeleted:
		return TypeEntityDeleted
	case domain.NotificationInteraction:
		return TypeInteraction
	case domain.NotificationReviewQueued:
		return TypeReviewQueued
	default:
		return TypeEntityUpdated
	}
}
