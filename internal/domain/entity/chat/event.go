package chat

import "time"

// EventKind is the payload type of an inbound channel event.
type EventKind string

const (
	EventText  EventKind = "text"
	EventVoice EventKind = "voice"
	EventMedia EventKind = "media"
)

// InboundEvent is one message event delivered by the channel transport.
type InboundEvent struct {
	SenderID          int64     `json:"sender_id"`
	ChatID            int64     `json:"chat_id"`
	ExternalMessageID int64     `json:"external_message_id"`
	Kind              EventKind `json:"kind"`
	Text              string    `json:"text"`
	MediaRef          string    `json:"media_ref,omitempty"`
	IsOwn             bool      `json:"is_own"`
	ReceivedAt        time.Time `json:"received_at"`
}
