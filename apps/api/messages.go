package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/dupahar/pkg/auth"
	"github.com/mahaj/dupahar/pkg/db"
	"github.com/mahaj/dupahar/pkg/model"
	"github.com/mahaj/dupahar/pkg/snowflake"
	"github.com/segmentio/kafka-go"
)

// MessageHandler serves every message mutation. The api is the single
// producer of durable events: each mutation is validated against the
// current Scylla state, published to Kafka (the messaging service
// persists it, the gateways fan it out), and the canonical result is
// returned to the caller. Persistence is eventually consistent behind
// the Kafka topic.
type MessageHandler struct {
	db        *db.Session
	producer  *kafka.Writer
	snowflake *snowflake.Node
}

func NewMessageHandler(session *db.Session, brokers []string, topic string) *MessageHandler {
	node, err := snowflake.NewNode(1)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}
	return &MessageHandler{
		db: session,
		producer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		snowflake: node,
	}
}

func (h *MessageHandler) Close() {
	h.producer.Close()
}

func claimsFrom(r *http.Request) (*auth.Claims, bool) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	return claims, ok
}

// authorizeChannel rejects mutations in DM channels the user is not a
// participant of.
func authorizeChannel(channelID, userID string) bool {
	if !strings.HasPrefix(channelID, "dm:") {
		return true
	}
	parts := strings.Split(channelID, ":")
	return len(parts) == 3 && (parts[1] == userID || parts[2] == userID)
}

func (h *MessageHandler) publish(ev model.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.producer.WriteMessages(context.Background(), kafka.Message{
		Value: raw,
		Time:  time.Now(),
	})
}

// loadMessage reads a message's current persisted state.
func (h *MessageHandler) loadMessage(channelID string, id int64) (*model.Message, error) {
	m := model.Message{ID: id, ChannelID: channelID}
	var attURL, attName, attMime string
	var attSize int64
	err := h.db.Query(`SELECT user_id, content, attachment_url, attachment_name,
		attachment_size, attachment_mime, reply_to, edited, pinned, timestamp
		FROM messages WHERE channel_id = ? AND id = ?`, channelID, id).
		Scan(&m.UserID, &m.Content, &attURL, &attName, &attSize, &attMime,
			&m.ReplyTo, &m.Edited, &m.Pinned, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	if attURL != "" {
		m.Attachment = &model.Attachment{URL: attURL, Name: attName, Size: attSize, Mime: attMime}
	}
	return &m, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type sendRequest struct {
	ChannelID  string            `json:"channel_id"`
	Content    string            `json:"content"`
	Attachment *model.Attachment `json:"attachment"`
	ReplyTo    int64             `json:"reply_to"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == "" {
		http.Error(w, "channel_id is required", http.StatusBadRequest)
		return
	}
	if req.Content == "" && req.Attachment == nil {
		http.Error(w, "message needs text or an attachment", http.StatusBadRequest)
		return
	}
	if !authorizeChannel(req.ChannelID, claims.UserID) {
		http.Error(w, "Not a participant of this DM", http.StatusForbidden)
		return
	}

	msg := model.Message{
		ID:         h.snowflake.Generate(),
		ChannelID:  req.ChannelID,
		UserID:     claims.UserID,
		Content:    req.Content,
		Attachment: req.Attachment,
		ReplyTo:    req.ReplyTo,
		Timestamp:  time.Now(),
	}
	if err := h.publish(model.Event{
		Type:      model.EventNewMessage,
		ChannelID: msg.ChannelID,
		Message:   &msg,
		Timestamp: msg.Timestamp,
	}); err != nil {
		log.Printf("Failed to publish new message: %v", err)
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, msg)
}

type messageRef struct {
	ChannelID string `json:"channel_id"`
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Emoji     string `json:"emoji"`
}

// target resolves and authorizes the message a mutation addresses.
// Writes the HTTP error itself when it returns nil.
func (h *MessageHandler) target(w http.ResponseWriter, r *http.Request, req *messageRef) (*model.Message, *auth.Claims) {
	claims, ok := claimsFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, nil
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, nil
	}
	if req.ChannelID == "" || req.ID == 0 {
		http.Error(w, "channel_id and id are required", http.StatusBadRequest)
		return nil, nil
	}
	if !authorizeChannel(req.ChannelID, claims.UserID) {
		http.Error(w, "Not a participant of this DM", http.StatusForbidden)
		return nil, nil
	}
	msg, err := h.loadMessage(req.ChannelID, req.ID)
	if err == gocql.ErrNotFound {
		http.Error(w, "Message not found", http.StatusNotFound)
		return nil, nil
	}
	if err != nil {
		log.Printf("Failed to load message %d: %v", req.ID, err)
		http.Error(w, "Failed to load message", http.StatusInternalServerError)
		return nil, nil
	}
	return msg, claims
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req messageRef
	msg, claims := h.target(w, r, &req)
	if msg == nil {
		return
	}
	if req.Content == "" {
		http.Error(w, "edited message needs text", http.StatusBadRequest)
		return
	}
	if msg.UserID != claims.UserID {
		http.Error(w, "Only the author can edit a message", http.StatusForbidden)
		return
	}

	msg.Content = req.Content
	msg.Edited = true
	if err := h.publish(model.Event{
		Type:      model.EventMessageUpdated,
		ChannelID: msg.ChannelID,
		Message:   msg,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("Failed to publish edit: %v", err)
		http.Error(w, "Failed to edit message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req messageRef
	msg, claims := h.target(w, r, &req)
	if msg == nil {
		return
	}
	if msg.UserID != claims.UserID {
		http.Error(w, "Only the author can delete a message", http.StatusForbidden)
		return
	}

	if err := h.publish(model.Event{
		Type:      model.EventMessageDeleted,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("Failed to publish delete: %v", err)
		http.Error(w, "Failed to delete message", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, model.EventReactionAdded)
}

func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, model.EventReactionRemoved)
}

func (h *MessageHandler) reaction(w http.ResponseWriter, r *http.Request, t model.EventType) {
	var req messageRef
	msg, claims := h.target(w, r, &req)
	if msg == nil {
		return
	}
	if req.Emoji == "" {
		http.Error(w, "emoji is required", http.StatusBadRequest)
		return
	}

	if err := h.publish(model.Event{
		Type:      t,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    claims.UserID,
		Emoji:     req.Emoji,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("Failed to publish reaction: %v", err)
		http.Error(w, "Failed to update reaction", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

func (h *MessageHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

// setPinned flips the pinned flag and announces it as a message update;
// pinning has no event kind of its own.
func (h *MessageHandler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	var req messageRef
	msg, _ := h.target(w, r, &req)
	if msg == nil {
		return
	}

	msg.Pinned = pinned
	if err := h.publish(model.Event{
		Type:      model.EventMessageUpdated,
		ChannelID: msg.ChannelID,
		Message:   msg,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("Failed to publish pin change: %v", err)
		http.Error(w, "Failed to update pin", http.StatusInternalServerError)
		return
	}
	writeJSON(w, msg)
}
