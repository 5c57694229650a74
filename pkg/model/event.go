package model

import "time"

// EventType enumerates the live-event kinds carried over the websocket
// and the Kafka topic. The set is closed: every consumer switches over
// all of these explicitly so an unhandled kind is a deliberate decision,
// not a silently-ignored default.
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageDeleted  EventType = "message_deleted"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventTypingStart     EventType = "typing_start"
	EventTypingStop      EventType = "typing_stop"
)

// Event is the envelope for everything that moves over the live channel.
// Which fields are set depends on Type:
//
//	new_message, message_updated   Message
//	message_deleted                MessageID
//	reaction_added/removed         MessageID, UserID, Emoji
//	typing_start                   UserID, DisplayName
//	typing_stop                    UserID
type Event struct {
	Type        EventType `json:"type"`
	ChannelID   string    `json:"channel_id"`
	Message     *Message  `json:"message,omitempty"`
	MessageID   int64     `json:"message_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Emoji       string    `json:"emoji,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Durable reports whether the event mutates persistent state. The
// messaging consumer persists durable events and skips the ephemeral
// typing kinds.
func (e *Event) Durable() bool {
	switch e.Type {
	case EventNewMessage, EventMessageUpdated, EventMessageDeleted,
		EventReactionAdded, EventReactionRemoved:
		return true
	case EventTypingStart, EventTypingStop:
		return false
	}
	return false
}
