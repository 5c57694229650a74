package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mahaj/dupahar/pkg/auth"
	"github.com/mahaj/dupahar/pkg/db"
	"github.com/mahaj/dupahar/pkg/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type HistoryHandler struct {
	db *db.Session
}

func NewHistoryHandler(session *db.Session) *HistoryHandler {
	return &HistoryHandler{db: session}
}

// ServeHTTP returns one page of a channel's history, oldest first within
// the page. Page 0 is the newest page. A page shorter than page_size
// tells the client no more history exists. Scylla has no offset reads,
// so the partition is walked in clustering order and skipped; page
// sizes are small enough that this stays cheap.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		channelID = "general"
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	// Clustering order is id DESC, so iteration runs newest to oldest.
	iter := h.db.Query(`SELECT id, user_id, content, attachment_url, attachment_name,
		attachment_size, attachment_mime, reply_to, edited, pinned, timestamp
		FROM messages WHERE channel_id = ?`, channelID).Iter()

	var (
		m        model.Message
		attURL   string
		attName  string
		attSize  int64
		attMime  string
		replyTo  int64
		edited   bool
		pinned   bool
		ts       time.Time
		row      int
		selected []model.Message
	)
	skip := page * pageSize
	for iter.Scan(&m.ID, &m.UserID, &m.Content, &attURL, &attName, &attSize, &attMime, &replyTo, &edited, &pinned, &ts) {
		if row >= skip && len(selected) < pageSize {
			msg := model.Message{
				ID:        m.ID,
				ChannelID: channelID,
				UserID:    m.UserID,
				Content:   m.Content,
				ReplyTo:   replyTo,
				Edited:    edited,
				Pinned:    pinned,
				Timestamp: ts,
			}
			if attURL != "" {
				msg.Attachment = &model.Attachment{URL: attURL, Name: attName, Size: attSize, Mime: attMime}
			}
			selected = append(selected, msg)
		}
		row++
		if len(selected) == pageSize {
			break
		}
	}
	if err := iter.Close(); err != nil {
		log.Printf("Failed to iterate messages: %v", err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}

	// Oldest first within the page, the order the client renders.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}

	if err := h.attachReactions(channelID, selected); err != nil {
		log.Printf("Failed to load reactions: %v", err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}

	if selected == nil {
		selected = []model.Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(selected)
}

func (h *HistoryHandler) attachReactions(channelID string, page []model.Message) error {
	if len(page) == 0 {
		return nil
	}
	ids := make([]int64, len(page))
	byID := make(map[int64]*model.Message, len(page))
	for i := range page {
		ids[i] = page[i].ID
		byID[page[i].ID] = &page[i]
	}

	iter := h.db.Query(`SELECT message_id, user_id, emoji, timestamp
		FROM reactions WHERE channel_id = ? AND message_id IN ?`, channelID, ids).Iter()
	var (
		msgID  int64
		userID string
		emoji  string
		ts     time.Time
	)
	for iter.Scan(&msgID, &userID, &emoji, &ts) {
		if m, ok := byID[msgID]; ok {
			m.Reactions = append(m.Reactions, model.Reaction{UserID: userID, Emoji: emoji, Timestamp: ts})
		}
	}
	return iter.Close()
}

type LoginRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.UserID
	}

	token, err := auth.GenerateToken(req.UserID, req.DisplayName)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Token: token})
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), auth.UserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
