package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/dupahar/pkg/model"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type Hub struct {
	clients     map[string]map[*Client]bool // channel_id -> clients
	userClients map[string]map[*Client]bool // user_id -> clients (global, for DM routing)
	publish     chan *model.Event           // events bound for Kafka
	local       chan *model.Event           // events delivered to this gateway's clients only
	register    chan *Client
	unregister  chan *Client
	mu          sync.RWMutex
	producer    *kafka.Writer
	redis       *redis.Client
}

func NewHub(kafkaBrokers []string, topic string, redisAddr string) *Hub {
	producer := &kafka.Writer{
		Addr:     kafka.TCP(kafkaBrokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Unique group per gateway so every gateway instance sees every
	// event (fanout, not work sharing).
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkaBrokers,
		Topic:       topic,
		GroupID:     "gateway-group-" + time.Now().String(),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})

	h := &Hub{
		clients:     make(map[string]map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		publish:     make(chan *model.Event),
		local:       make(chan *model.Event),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		producer:    producer,
		redis:       rdb,
	}

	go func() {
		defer consumer.Close()
		for {
			m, err := consumer.ReadMessage(context.Background())
			if err != nil {
				log.Printf("Gateway consumer error: %v", err)
				break
			}
			var ev model.Event
			if err := json.Unmarshal(m.Value, &ev); err != nil {
				log.Printf("Failed to unmarshal event from Kafka: %v", err)
				continue
			}
			h.deliver(&ev, m.Value)
		}
	}()

	return h
}

// deliver routes an event to this gateway's connected clients. DM
// channels route to both participants wherever they are connected;
// normal channels route to the channel's member set.
func (h *Hub) deliver(ev *model.Event, raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if strings.HasPrefix(ev.ChannelID, "dm:") {
		parts := strings.Split(ev.ChannelID, ":")
		if len(parts) != 3 {
			return
		}
		for _, userID := range parts[1:] {
			for client := range h.userClients[userID] {
				h.push(client, raw)
			}
		}
		return
	}

	for client := range h.clients[ev.ChannelID] {
		h.push(client, raw)
	}
}

// push runs under the read lock and must not mutate the maps. A client
// that cannot keep up is handed to the unregister path, which owns the
// teardown under the write lock.
func (h *Hub) push(client *Client, raw []byte) {
	select {
	case client.send <- raw:
	default:
		client.dropOnce.Do(func() {
			go func() { h.unregister <- client }()
		})
	}
}

func (h *Hub) Run() {
	defer h.producer.Close()
	defer h.redis.Close()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ChannelID] == nil {
				h.clients[client.ChannelID] = make(map[*Client]bool)
			}
			h.clients[client.ChannelID][client] = true

			if h.userClients[client.ID] == nil {
				h.userClients[client.ID] = make(map[*Client]bool)
			}
			h.userClients[client.ID][client] = true
			h.mu.Unlock()

			// Presence set queried via the api's /channels/{id}/users.
			err := h.redis.SAdd(context.Background(), "channel:"+client.ChannelID+":users", client.ID).Err()
			if err != nil {
				log.Printf("Failed to set presence for %s: %v", client.ID, err)
			}
			log.Printf("Client registered: %s in channel %s", client.ID, client.ChannelID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.ChannelID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.ChannelID)
					}

					err := h.redis.SRem(context.Background(), "channel:"+client.ChannelID+":users", client.ID).Err()
					if err != nil {
						log.Printf("Failed to delete presence for %s: %v", client.ID, err)
					}
					log.Printf("Client unregistered: %s from channel %s", client.ID, client.ChannelID)
				}
			}
			if clients, ok := h.userClients[client.ID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.userClients, client.ID)
					}
				}
			}
			h.mu.Unlock()

		case ev := <-h.publish:
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now()
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Failed to marshal event: %v", err)
				continue
			}
			err = h.producer.WriteMessages(context.Background(),
				kafka.Message{
					Value: raw,
					Time:  time.Now(),
				},
			)
			if err != nil {
				log.Printf("Failed to write event to Kafka: %v", err)
			}

		case ev := <-h.local:
			raw, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Failed to marshal event: %v", err)
				continue
			}
			h.deliver(ev, raw)
		}
	}
}
