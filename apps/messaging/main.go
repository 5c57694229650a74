package main

import (
	"context"
	"log"

	"github.com/mahaj/dupahar/pkg/config"
	"github.com/mahaj/dupahar/pkg/db"
)

func main() {
	cfg := config.Load()
	groupID := "messaging-service-group"

	// Schema bootstrap. In production this belongs in a migration tool;
	// for this MVP the consumer creates what it needs on startup.
	sysSession, err := db.NewSession(cfg.ScyllaHosts, "system")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB system keyspace: %v", err)
	}

	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS chat WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}
	sysSession.Close()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB chat keyspace: %v", err)
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS messages (
		channel_id text,
		id bigint,
		user_id text,
		content text,
		attachment_url text,
		attachment_name text,
		attachment_size bigint,
		attachment_mime text,
		reply_to bigint,
		edited boolean,
		pinned boolean,
		timestamp timestamp,
		PRIMARY KEY (channel_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create messages table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS reactions (
		channel_id text,
		message_id bigint,
		user_id text,
		emoji text,
		timestamp timestamp,
		PRIMARY KEY ((channel_id, message_id), user_id, emoji)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create reactions table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create user_conversations table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		other_user_id text,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create conversation_counters table: %v", err)
	}

	consumer := NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, groupID, session)
	defer consumer.Close()

	log.Println("Starting Kafka Consumer...")
	consumer.Consume(context.Background())
}
