package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/internal/store/file"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration and gateway health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("numcheck doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if cfg.Gateway.Token == "" {
		fmt.Println("  Token:    (not set, anyone who can reach the port may connect)")
	} else {
		fmt.Printf("  Token:    %s\n", maskSecret(cfg.Gateway.Token))
	}

	fmt.Println()
	dir := cfg.SessionsDir()
	fmt.Printf("  Sessions: %s", dir)
	if err := checkWritable(dir); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
	} else {
		fmt.Println(" (OK)")
		creds := file.NewCredentialStore(dir)
		users, _ := creds.List()
		for _, u := range users {
			fmt.Printf("    %-24s %s\n", u+":", deviceState(creds, u))
		}
	}

	fmt.Println()
	fmt.Printf("  Gateway:  %s", gatewayURL(cfg))
	if isGatewayReachable() {
		fmt.Println(" (UP)")
	} else {
		fmt.Println(" (DOWN)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// deviceState reports whether a stored user has a device database yet.
func deviceState(creds *file.CredentialStore, userID string) string {
	h, err := creds.Handle(userID)
	if err != nil {
		return "error: " + err.Error()
	}
	if _, err := os.Stat(filepath.Join(h.Dir, whatsapp.DeviceDBName)); err != nil {
		return "not paired"
	}
	return "device stored"
}
