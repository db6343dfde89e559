package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	verbose bool
	logJSON bool

	// logLevel is shared by the installed handler so hot reload can change it.
	logLevel = new(slog.LevelVar)
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "numcheck",
		Short: "Check phone numbers for messaging registration through linked sessions",
		Long: "numcheck keeps one linked messaging session per user and checks batches of\n" +
			"phone numbers for registration through it. Run without a subcommand to start\n" +
			"the gateway.",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $NUMCHECK_CONFIG or ~/.numcheck/config.json5)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(normalizeCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(cacheCmd())
	root.AddCommand(configCmd())
	root.AddCommand(onboardCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("numcheck %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// loadConfig loads the config or exits with a readable message.
func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the default slog handler. --verbose and --log-json
// take precedence over the config file.
func setupLogging(cfg config.LogConfig) {
	applyLogLevel(cfg)

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if logJSON || cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func applyLogLevel(cfg config.LogConfig) {
	if verbose {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(parseLevel(cfg.Level))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
