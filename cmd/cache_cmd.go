package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/cache"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the gateway's result cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache size and limits",
		Run: func(cmd *cobra.Command, args []string) {
			var stats cache.Stats
			if err := gatewayRPC(protocol.MethodCacheStats, nil, &stats); err != nil {
				exitWith(err)
			}
			printCacheStats(stats)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached result",
		Run: func(cmd *cobra.Command, args []string) {
			if err := gatewayRPC(protocol.MethodCacheClear, nil, nil); err != nil {
				exitWith(err)
			}
			fmt.Println("Cache cleared.")
		},
	})
	return cmd
}

func printCacheStats(s cache.Stats) {
	fmt.Printf("  Entries:  %d\n", s.Size)
	fmt.Printf("  Capacity: %d\n", s.Capacity)
	fmt.Printf("  TTL:      %d min\n", s.TTLMinutes)
}
