package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("expected addr :8080, got %s", cfg.Addr)
	}
	if cfg.Relay != RelayWebSocket {
		t.Errorf("expected ws relay, got %s", cfg.Relay)
	}
	if cfg.ChunkSize != 16*1024 {
		t.Errorf("expected 16 KiB chunks, got %d", cfg.ChunkSize)
	}
	if cfg.OpenTimeout != 30*time.Second {
		t.Errorf("expected 30s open timeout, got %s", cfg.OpenTimeout)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.MaxDownloads != 10 {
		t.Errorf("unexpected session limits %s / %d", cfg.SessionTTL, cfg.MaxDownloads)
	}
	if len(cfg.STUNServers) != 3 {
		t.Errorf("expected 3 STUN servers, got %v", cfg.STUNServers)
	}
	if cfg.DBPath != "" {
		t.Errorf("expected in-memory registry by default, got %q", cfg.DBPath)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRIVOSEND_RELAY", "REDIS")
	t.Setenv("PRIVOSEND_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PRIVOSEND_CHUNK_SIZE", "65536")
	t.Setenv("PRIVOSEND_OPEN_TIMEOUT", "5s")
	t.Setenv("PRIVOSEND_STUN", "stun:stun.example.org:3478")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Relay != RelayRedis {
		t.Errorf("expected redis relay, got %s", cfg.Relay)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.ChunkSize != 65536 {
		t.Errorf("expected chunk size 65536, got %d", cfg.ChunkSize)
	}
	if cfg.OpenTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.OpenTimeout)
	}
	if len(cfg.STUNServers) != 1 {
		t.Errorf("expected one STUN server, got %v", cfg.STUNServers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PRIVOSEND_RELAY", "carrier-pigeon"},
		{"PRIVOSEND_CHUNK_SIZE", "big"},
		{"PRIVOSEND_CHUNK_SIZE", "-1"},
		{"PRIVOSEND_OPEN_TIMEOUT", "soon"},
		{"PRIVOSEND_MAX_DOWNLOADS", "0"},
		{"PRIVOSEND_SESSION_TTL", "-1h"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
