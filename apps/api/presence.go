package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

type PresenceHandler struct {
	redis *redis.Client
}

func NewPresenceHandler(redisAddr string) *PresenceHandler {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return &PresenceHandler{redis: rdb}
}

// ServeHTTP returns the connected-user set of a channel, maintained by
// the gateways in Redis. Path: /channels/{id}/users.
func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 || pathParts[3] != "users" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	channelID := pathParts[2]

	users, err := h.redis.SMembers(context.Background(), "channel:"+channelID+":users").Result()
	if err != nil {
		log.Printf("Failed to fetch presence for channel %s: %v", channelID, err)
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	if users == nil {
		users = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
