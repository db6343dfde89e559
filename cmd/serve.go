package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/internal/gateway"
	"github.com/nextlevelbuilder/numcheck/internal/gateway/methods"
)

// sessionShutdownTimeout bounds how long stopping waits for sessions to close.
const sessionShutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfgPath := resolveConfigPath()
	cfg := loadConfig()
	setupLogging(cfg.Log)

	st, err := newStack(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	server := gateway.NewServer(cfg.Gateway, st.sessions, st.engine)
	methods.RegisterAll(server)

	if cfg.Gateway.Token == "" {
		slog.Warn("security.no_token", "hint", "set gateway.token or NUMCHECK_TOKEN before exposing the gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(cfgPath, cfg)
	if err != nil {
		slog.Warn("config.watch_unavailable", "error", err)
	} else {
		watcher.OnChange(func(prev, next *config.Config) {
			applyLogLevel(next.Log)
			st.engine.UpdateSettings(verifySettings(next.Verify))
			server.ApplyConfig(next.Gateway)
			if prev.Gateway.Host != next.Gateway.Host || prev.Gateway.Port != next.Gateway.Port ||
				prev.Sessions != next.Sessions || prev.Cache != next.Cache || prev.WhatsApp != next.WhatsApp {
				slog.Warn("config.restart_required", "hint", "listen address, session, cache and whatsapp settings apply on restart")
			}
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config.watch_unavailable", "path", cfgPath, "error", err)
		}
		defer watcher.Stop()
	}

	go st.sweepCache(ctx)

	slog.Info("numcheck starting",
		"version", Version,
		"config", cfgPath,
		"sessions_dir", st.creds.Root(),
		"max_items", cfg.Verify.MaxItems,
		"batch_size", cfg.Verify.BatchSize,
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway failed", "error", err)
		st.close(sessionShutdownTimeout)
		os.Exit(1)
	}

	st.close(sessionShutdownTimeout)
	slog.Info("numcheck stopped")
}
