// Package config reads privosend settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
	"github.com/rudransh-shrivastava/privosend/internal/store"
	"github.com/rudransh-shrivastava/privosend/internal/transport/webrtc"
)

const (
	RelayWebSocket = "ws"
	RelayRedis     = "redis"
)

type Config struct {
	Addr           string
	Environment    string
	AllowedOrigins []string
	LogLevel       string

	Relay    string
	RelayURL string
	Redis    RedisConfig

	STUNServers []string
	ChunkSize   int
	OpenTimeout time.Duration

	// DBPath selects the sqlite session registry. Empty keeps sessions in memory.
	DBPath        string
	EncryptionKey string
	SessionTTL    time.Duration
	MaxDownloads  int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("PRIVOSEND_ADDR", ":8080"),
		Environment:    getEnv("PRIVOSEND_ENV", "development"),
		AllowedOrigins: splitList(getEnv("PRIVOSEND_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getEnv("PRIVOSEND_LOG_LEVEL", "info"),
		Relay:          strings.ToLower(getEnv("PRIVOSEND_RELAY", RelayWebSocket)),
		RelayURL:       getEnv("PRIVOSEND_RELAY_URL", "ws://localhost:8080"),
		Redis: RedisConfig{
			Addr:     getEnv("PRIVOSEND_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("PRIVOSEND_REDIS_PASSWORD", ""),
		},
		STUNServers:   splitList(getEnv("PRIVOSEND_STUN", strings.Join(webrtc.DefaultSTUNServers, ","))),
		DBPath:        getEnv("PRIVOSEND_DB", ""),
		EncryptionKey: getEnv("PRIVOSEND_ENCRYPTION_KEY", ""),
	}

	var err error
	if cfg.ChunkSize, err = getInt("PRIVOSEND_CHUNK_SIZE", protocol.DefaultChunkSize); err != nil {
		return nil, err
	}
	if cfg.MaxDownloads, err = getInt("PRIVOSEND_MAX_DOWNLOADS", store.DefaultMaxDownloads); err != nil {
		return nil, err
	}
	if cfg.OpenTimeout, err = getDuration("PRIVOSEND_OPEN_TIMEOUT", webrtc.DefaultOpenTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("PRIVOSEND_SESSION_TTL", store.DefaultTTL); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Relay != RelayWebSocket && c.Relay != RelayRedis {
		return fmt.Errorf("unknown relay %q, want %q or %q", c.Relay, RelayWebSocket, RelayRedis)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open timeout must be positive, got %s", c.OpenTimeout)
	}
	if c.MaxDownloads <= 0 {
		return fmt.Errorf("max downloads must be positive, got %d", c.MaxDownloads)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
