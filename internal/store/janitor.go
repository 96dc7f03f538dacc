package store

import (
	"context"
	"log/slog"
	"time"
)

const DefaultCleanupInterval = time.Hour

// Janitor periodically removes expired sessions from a registry.
type Janitor struct {
	registry Registry
	interval time.Duration
	logger   *slog.Logger
}

func NewJanitor(registry Registry, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{registry: registry, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.registry.CleanupExpired(ctx)
	if err != nil {
		j.logger.Error("Failed to clean up expired sessions", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("Cleaned up expired sessions", "count", removed)
	}
}
