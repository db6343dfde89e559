package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nextlevelbuilder/numcheck/internal/cache"
	"github.com/nextlevelbuilder/numcheck/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/store/file"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
)

// cacheSweepInterval is how often expired cache entries are pruned in the
// background, on top of the sweep Put runs when the cache is over capacity.
const cacheSweepInterval = 5 * time.Minute

// stack is the in-process core shared by serve and the local check command.
type stack struct {
	creds    *file.CredentialStore
	sessions *session.Manager
	cache    *cache.Cache
	engine   *verify.Engine
}

func newStack(cfg *config.Config) (*stack, error) {
	dir := cfg.SessionsDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	creds := file.NewCredentialStore(dir)
	opener := whatsapp.NewOpener(cfg.WhatsApp.LogLevel)
	sessions := session.NewManager(opener, creds, sessionConfig(cfg.Sessions))
	results := cache.New(cfg.Cache.TTL(), cfg.Cache.Capacity)
	engine := verify.NewEngine(sessions, results, verifySettings(cfg.Verify))

	return &stack{creds: creds, sessions: sessions, cache: results, engine: engine}, nil
}

func sessionConfig(c config.SessionsConfig) session.Config {
	return session.Config{
		StuckThreshold: c.StuckThreshold(),
		RestartDelay:   c.RestartDelay(),
		ShutdownGrace:  c.ShutdownGrace(),
		Reconnect: session.ReconnectPolicy{
			Delay:       c.ReconnectDelay(),
			MaxAttempts: c.MaxReconnectAttempts,
			Backoff:     c.ReconnectBackoff,
			MaxDelay:    c.MaxReconnectDelay(),
		},
	}
}

func verifySettings(c config.VerifyConfig) verify.Settings {
	return verify.Settings{
		MaxItems:      c.MaxItems,
		BatchSize:     c.BatchSize,
		QueryInterval: c.QueryInterval(),
		BatchCooldown: c.BatchCooldown(),
		QueryTimeout:  c.QueryTimeout(),
		HistorySize:   c.HistorySize,
	}
}

// sweepCache prunes expired results until ctx is done.
func (s *stack) sweepCache(ctx context.Context) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.Sweep(); n > 0 {
				slog.Debug("cache.swept", "removed", n, "size", s.cache.Len())
			}
		}
	}
}

// close tears every session down. Credentials stay on disk.
func (s *stack) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.sessions.ShutdownAll(ctx)
}
