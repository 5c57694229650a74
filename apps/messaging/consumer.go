package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/mahaj/dupahar/pkg/db"
	"github.com/mahaj/dupahar/pkg/model"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	db     *db.Session
}

func NewConsumer(brokers []string, topic string, groupID string, session *db.Session) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: r, db: session}
}

// Consume applies every durable event on the topic to Scylla. All
// writes are idempotent (inserts overwrite by primary key, deletes
// tolerate absence), so replaying the topic after a group rebalance is
// harmless.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			log.Printf("Error reading event: %v. Retrying in 1s...", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("Failed to unmarshal event: %v", err)
			continue
		}

		if !ev.Durable() {
			continue
		}

		switch ev.Type {
		case model.EventNewMessage:
			c.persistMessage(&ev, true)
		case model.EventMessageUpdated:
			c.persistMessage(&ev, false)
		case model.EventMessageDeleted:
			c.deleteMessage(&ev)
		case model.EventReactionAdded:
			c.addReaction(&ev)
		case model.EventReactionRemoved:
			c.removeReaction(&ev)
		case model.EventTypingStart, model.EventTypingStop:
			// Filtered by Durable already; listed so the switch stays
			// exhaustive over the union.
		}
	}
}

func (c *Consumer) persistMessage(ev *model.Event, isNew bool) {
	msg := ev.Message
	if msg == nil || msg.ID == 0 {
		log.Printf("Dropping %s event without a message", ev.Type)
		return
	}

	var attURL, attName, attMime string
	var attSize int64
	if msg.Attachment != nil {
		attURL = msg.Attachment.URL
		attName = msg.Attachment.Name
		attSize = msg.Attachment.Size
		attMime = msg.Attachment.Mime
	}

	query := `INSERT INTO messages (channel_id, id, user_id, content, attachment_url,
		attachment_name, attachment_size, attachment_mime, reply_to, edited, pinned, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if err := c.db.Query(query, msg.ChannelID, msg.ID, msg.UserID, msg.Content,
		attURL, attName, attSize, attMime, msg.ReplyTo, msg.Edited, msg.Pinned, msg.Timestamp).Exec(); err != nil {
		log.Printf("Failed to save message %d: %v", msg.ID, err)
		return
	}

	if isNew {
		c.updateConversations(msg)
	}
}

func (c *Consumer) deleteMessage(ev *model.Event) {
	if err := c.db.Query(`DELETE FROM messages WHERE channel_id = ? AND id = ?`,
		ev.ChannelID, ev.MessageID).Exec(); err != nil {
		log.Printf("Failed to delete message %d: %v", ev.MessageID, err)
	}
	// The message's reactions go with it.
	if err := c.db.Query(`DELETE FROM reactions WHERE channel_id = ? AND message_id = ?`,
		ev.ChannelID, ev.MessageID).Exec(); err != nil {
		log.Printf("Failed to delete reactions of %d: %v", ev.MessageID, err)
	}
}

func (c *Consumer) addReaction(ev *model.Event) {
	query := `INSERT INTO reactions (channel_id, message_id, user_id, emoji, timestamp)
		VALUES (?, ?, ?, ?, ?)`
	if err := c.db.Query(query, ev.ChannelID, ev.MessageID, ev.UserID, ev.Emoji, ev.Timestamp).Exec(); err != nil {
		log.Printf("Failed to save reaction on %d: %v", ev.MessageID, err)
	}
}

func (c *Consumer) removeReaction(ev *model.Event) {
	query := `DELETE FROM reactions WHERE channel_id = ? AND message_id = ? AND user_id = ? AND emoji = ?`
	if err := c.db.Query(query, ev.ChannelID, ev.MessageID, ev.UserID, ev.Emoji).Exec(); err != nil {
		log.Printf("Failed to remove reaction on %d: %v", ev.MessageID, err)
	}
}

// updateConversations maintains the DM list and unread counters for a
// newly arrived direct message.
func (c *Consumer) updateConversations(msg *model.Message) {
	if !strings.HasPrefix(msg.ChannelID, "dm:") {
		return
	}
	parts := strings.Split(msg.ChannelID, ":")
	if len(parts) != 3 {
		return
	}
	u1, u2 := parts[1], parts[2]

	q := `INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`
	if err := c.db.Query(q, u1, u2, msg.Timestamp).Exec(); err != nil {
		log.Printf("Failed to update conversation for %s: %v", u1, err)
	}
	if err := c.db.Query(q, u2, u1, msg.Timestamp).Exec(); err != nil {
		log.Printf("Failed to update conversation for %s: %v", u2, err)
	}

	// The non-sender gains an unread message.
	recipient := u1
	if recipient == msg.UserID {
		recipient = u2
	}
	qCounter := `UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`
	if err := c.db.Query(qCounter, recipient, msg.UserID).Exec(); err != nil {
		log.Printf("Failed to increment unread count for %s: %v", recipient, err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
