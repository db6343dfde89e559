package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "View and manage sessions on the running gateway",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsStatusCmd())
	cmd.AddCommand(sessionsActionCmd("restart <user>", "Restart a session and require pairing again", protocol.MethodSessionRestart, "Restarted"))
	cmd.AddCommand(sessionsActionCmd("force-restart <user>", "Restart a session regardless of its state", protocol.MethodSessionForceRestart, "Force-restarted"))
	cmd.AddCommand(sessionsActionCmd("disconnect <user>", "Close a session and erase its credentials", protocol.MethodSessionDisconnect, "Disconnected"))
	cmd.AddCommand(sessionsStoredCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Run: func(cmd *cobra.Command, args []string) {
			var result struct {
				Sessions []session.Status `json:"sessions"`
			}
			if err := gatewayRPC(protocol.MethodSessionList, nil, &result); err != nil {
				exitWith(err)
			}
			printStatuses(result.Sessions, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsStatusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status <user>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var st session.Status
			if err := gatewayRPC(protocol.MethodSessionStatus, protocol.UserParams{UserID: args[0]}, &st); err != nil {
				exitWith(err)
			}
			printStatuses([]session.Status{st}, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsActionCmd(use, short, method, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := gatewayRPC(method, protocol.UserParams{UserID: args[0]}, nil); err != nil {
				exitWith(err)
			}
			fmt.Printf("%s session: %s\n", done, args[0])
		},
	}
}

// sessionsStoredCmd lists credential directories on disk. It works without a gateway.
func sessionsStoredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stored",
		Short: "List users with stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			st, err := newStack(cfg)
			if err != nil {
				exitWith(err)
			}
			users, err := st.creds.List()
			if err != nil {
				exitWith(err)
			}
			if len(users) == 0 {
				fmt.Println("No stored sessions.")
				return
			}
			for _, u := range users {
				fmt.Println(u)
			}
		},
	}
}

func printStatuses(statuses []session.Status, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(statuses, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(statuses) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "USER\tSTATE\tREADY\tCONNECTION\n")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", truncateStr(s.UserID, 40), s.State, s.IsReady, s.HasConnection)
	}
	tw.Flush()
}

func exitWith(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", formatError(err))
	os.Exit(1)
}
