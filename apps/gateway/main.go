package main

import (
	"log"
	"net/http"

	"github.com/mahaj/dupahar/pkg/config"
)

func main() {
	cfg := config.Load()

	hub := NewHub(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.RedisAddr)
	go hub.Run()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	log.Printf("Gateway Service Starting on %s...", cfg.GatewayAddr)
	if err := http.ListenAndServe(cfg.GatewayAddr, nil); err != nil {
		log.Fatal(err)
	}
}
