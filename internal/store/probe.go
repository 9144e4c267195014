package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProbeConfig bounds the connectivity probe.
type ProbeConfig struct {
	// Attempts is the number of pings before giving up.
	Attempts int

	// BaseDelay is the wait after the first failed attempt; subsequent waits
	// grow linearly (1x, 2x, 3x, ...).
	BaseDelay time.Duration
}

// DefaultProbeConfig matches the documented policy: three attempts with
// linearly increasing delay.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{Attempts: 3, BaseDelay: time.Second}
}

// WaitReady pings the store until it answers, the attempts are exhausted, or
// ctx is cancelled. After the last failed attempt it returns a
// *ConnectivityError wrapping the final ping error.
func WaitReady(ctx context.Context, s Store, cfg ProbeConfig, logger *zap.SugaredLogger) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = s.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		if logger != nil {
			logger.Warnw("store unreachable", "attempt", attempt, "attempts", cfg.Attempts, "error", lastErr)
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return &ConnectivityError{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(cfg.BaseDelay * time.Duration(attempt)):
		}
	}
	return &ConnectivityError{Attempts: cfg.Attempts, Err: lastErr}
}
