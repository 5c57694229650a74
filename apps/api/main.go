package main

import (
	"log"
	"net/http"

	"github.com/mahaj/dupahar/pkg/config"
	"github.com/mahaj/dupahar/pkg/db"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Upload-Mime")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.Load()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	log.Printf("API Service Starting on %s...", cfg.APIAddr)

	// Public endpoint
	http.Handle("/login", CORSMiddleware(http.HandlerFunc(LoginHandler)))

	// History
	historyHandler := NewHistoryHandler(session)
	http.Handle("/history", CORSMiddleware(AuthMiddleware(historyHandler)))

	// Mutations
	messages := NewMessageHandler(session, cfg.KafkaBrokers, cfg.KafkaTopic)
	defer messages.Close()
	http.Handle("/messages", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.Send))))
	http.Handle("/messages/edit", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.Edit))))
	http.Handle("/messages/delete", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.Delete))))
	http.Handle("/messages/react", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.React))))
	http.Handle("/messages/unreact", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.Unreact))))
	http.Handle("/messages/pin", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.Pin))))
	http.Handle("/messages/unpin", CORSMiddleware(AuthMiddleware(http.HandlerFunc(messages.Unpin))))

	// Attachments
	uploads, err := NewUploadHandler(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload dir: %v", err)
	}
	http.Handle("/upload", CORSMiddleware(AuthMiddleware(uploads)))
	http.Handle("/files/", CORSMiddleware(uploads.FileServer()))

	// Presence (gateway-maintained Redis sets)
	presenceHandler := NewPresenceHandler(cfg.RedisAddr)
	http.Handle("/channels/", CORSMiddleware(AuthMiddleware(presenceHandler)))

	// DM conversation list + unread reset
	http.Handle("/conversations", CORSMiddleware(AuthMiddleware(ConversationsHandler(session))))
	http.Handle("/conversations/read", CORSMiddleware(AuthMiddleware(ReadHandler(session))))

	if err := http.ListenAndServe(cfg.APIAddr, nil); err != nil {
		log.Fatal(err)
	}
}
