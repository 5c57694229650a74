package model

import "time"

type DeliveryState string

const (
	StatePending DeliveryState = "pending"
	StateSent    DeliveryState = "sent"
	StateFailed  DeliveryState = "failed"
)

// Attachment describes a file attached to a message. The URL points at
// the api service's /files/ namespace after upload.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

// Reaction is one user's emoji reaction on a message. A message holds at
// most one reaction per (user_id, emoji) pair.
type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// ReactionGroup is the display view of one emoji's reactions on a
// message. Derived on demand, never stored.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Me    bool     `json:"me"`
	Users []string `json:"users"`
}

// Message is a single chat message. ID is the server-assigned snowflake
// identity; it is 0 while the message is an unconfirmed optimistic entry,
// during which LocalID addresses it within its conversation window.
// ReplyTo references another message by server identity and may dangle if
// the target was deleted.
type Message struct {
	ID         int64         `json:"id"`
	LocalID    int64         `json:"-"`
	ChannelID  string        `json:"channel_id"`
	UserID     string        `json:"user_id"`
	Content    string        `json:"content"`
	Attachment *Attachment   `json:"attachment,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Edited     bool          `json:"edited"`
	Pinned     bool          `json:"pinned"`
	ReplyTo    int64         `json:"reply_to,omitempty"`
	Reactions  []Reaction    `json:"reactions,omitempty"`
	State      DeliveryState `json:"-"`
	FailReason string        `json:"-"`
}

// Empty reports whether the message carries neither text nor an
// attachment. Such a message cannot be sent.
func (m *Message) Empty() bool {
	return m.Content == "" && m.Attachment == nil
}

// TypingSignal records that a participant declared they are typing.
type TypingSignal struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	StartedAt   time.Time `json:"started_at"`
}
