package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar/pkg/auth"
	"github.com/mahaj/dupahar/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum event size allowed from peer.
	maxMessageSize = 16384
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound raw events.
	send chan []byte

	// User ID from the validated token.
	ID string

	// Display name from the token, stamped onto typing signals.
	DisplayName string

	// Channel ID the client is connected to.
	ChannelID string

	// Arms once when the hub drops this client for falling behind, so
	// repeated full-buffer pushes queue a single unregister.
	dropOnce sync.Once
}

// readPump pumps events from the websocket connection to the hub.
// Clients send model.Event envelopes. The gateway never trusts the
// envelope's channel or sender: both are overwritten from the
// connection's identity. Ephemeral typing signals go to Kafka so every
// gateway fans them out; durable events arriving here were already
// published by the api service, so they are delivered to this gateway's
// clients only, as the sender's low-latency echo path.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
			log.Printf("Dropping malformed client event from %s", c.ID)
			continue
		}

		ev.ChannelID = c.ChannelID
		ev.Timestamp = time.Now()
		switch ev.Type {
		case model.EventTypingStart, model.EventTypingStop:
			ev.UserID = c.ID
			ev.DisplayName = c.DisplayName
			ev.Message = nil
			c.hub.publish <- &ev
		case model.EventNewMessage:
			if ev.Message == nil || ev.Message.UserID != c.ID {
				continue
			}
			ev.Message.ChannelID = c.ChannelID
			c.hub.local <- &ev
		case model.EventMessageUpdated, model.EventMessageDeleted,
			model.EventReactionAdded, model.EventReactionRemoved:
			// These originate from the api service, not from clients.
			continue
		}
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per frame so the client-side decoder stays a
			// plain json.Unmarshal.
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Query param fallback for clients that cannot set headers.
		tokenString = r.URL.Query().Get("token")
	}

	if tokenString == "" {
		log.Println("Unauthorized: No token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		log.Printf("Unauthorized: Invalid token: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	channelID := r.URL.Query().Get("channel")
	if channelID == "" {
		channelID = "general"
	}

	// Validate DM access
	if strings.HasPrefix(channelID, "dm:") {
		parts := strings.Split(channelID, ":")
		if len(parts) != 3 {
			http.Error(w, "Invalid DM channel format", http.StatusBadRequest)
			return
		}
		if parts[1] != claims.UserID && parts[2] != claims.UserID {
			http.Error(w, "Unauthorized to join this DM", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		ChannelID:   channelID,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
