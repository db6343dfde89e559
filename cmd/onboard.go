package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/config"
)

func onboardCmd() *cobra.Command {
	var force bool
	var port int
	var host string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a starter config with a generated gateway token",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			cfg := config.Default()

			if _, err := os.Stat(cfgPath); err == nil {
				if !force {
					fmt.Printf("Config already exists at %s (use --force to overwrite).\n", cfgPath)
					return
				}
				loaded, err := config.Load(cfgPath)
				if err != nil {
					fmt.Printf("Warning: could not load existing config: %v\n", err)
				} else {
					cfg = loaded
				}
			}

			if cmd.Flags().Changed("port") {
				cfg.Gateway.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Gateway.Host = host
			}
			if cfg.Gateway.Token == "" {
				cfg.Gateway.Token = strings.ReplaceAll(uuid.NewString(), "-", "")
			}

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid settings: %s\n", err)
				os.Exit(1)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Error saving config: %s\n", err)
				os.Exit(1)
			}
			if err := os.MkdirAll(cfg.SessionsDir(), 0o700); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating sessions dir: %s\n", err)
				os.Exit(1)
			}

			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Printf("  Gateway:  ws://%s:%d/ws\n", cfg.Gateway.Host, cfg.Gateway.Port)
			fmt.Printf("  Token:    %s\n", cfg.Gateway.Token)
			fmt.Printf("  Sessions: %s\n", cfg.SessionsDir())
			fmt.Println()
			fmt.Println("Next: numcheck serve")
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config (keeps its values)")
	cmd.Flags().IntVar(&port, "port", 0, "gateway port")
	cmd.Flags().StringVar(&host, "host", "", "gateway listen host")
	return cmd
}
