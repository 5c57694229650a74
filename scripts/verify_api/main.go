package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mahaj/dupahar/pkg/chatapi"
)

// Smoke check against a running api service: login, send a message to a
// DM channel, read the first history page back.
func main() {
	apiAddr := "http://localhost:8081"

	token, err := chatapi.Login(apiAddr, "test_user", "Test User")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Token: %s...\n", token[:10])

	api := chatapi.New(apiAddr, token)
	ctx := context.Background()

	msg, err := api.Send(ctx, "dm:test_user:userB", "verify_api ping", nil, 0)
	if err != nil {
		log.Fatal("Send failed: ", err)
	}
	log.Printf("Sent message %d", msg.ID)

	items, err := api.FetchPage(ctx, "dm:test_user:userB", 0, 10)
	if err != nil {
		log.Fatal("History request failed: ", err)
	}
	log.Printf("History: %d messages", len(items))
	for _, m := range items {
		log.Printf("  [%d] %s: %s", m.ID, m.UserID, m.Content)
	}
}
