package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config collects every knob the three services and the client read.
// Values come from the environment with local-dev defaults; a .env file
// in the working directory is loaded first if present.
type Config struct {
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	ScyllaHosts  []string
	Keyspace     string
	GatewayAddr  string
	APIAddr      string
	UploadDir    string
	PageSize     int
}

func getenv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func Load() Config {
	// Missing .env is fine; the defaults below cover local dev.
	_ = godotenv.Load()

	pageSize, _ := strconv.Atoi(getenv("PAGE_SIZE", "50"))
	if pageSize <= 0 {
		pageSize = 50
	}

	return Config{
		KafkaBrokers: strings.Split(getenv("KAFKA_BROKERS", "localhost:19092"), ","),
		KafkaTopic:   getenv("KAFKA_TOPIC", "chat-events"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		ScyllaHosts:  strings.Split(getenv("SCYLLA_HOSTS", "localhost:9042"), ","),
		Keyspace:     getenv("SCYLLA_KEYSPACE", "chat"),
		GatewayAddr:  getenv("GATEWAY_ADDR", ":8080"),
		APIAddr:      getenv("API_ADDR", ":8081"),
		UploadDir:    getenv("UPLOAD_DIR", "uploads"),
		PageSize:     pageSize,
	}
}
