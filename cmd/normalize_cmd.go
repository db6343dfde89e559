package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/phone"
)

type normalizedRow struct {
	Input     string `json:"input"`
	Canonical string `json:"canonical,omitempty"`
	Carrier   string `json:"carrier,omitempty"`
	Region    string `json:"region,omitempty"`
	Error     string `json:"error,omitempty"`
}

func normalizeCmd() *cobra.Command {
	var jsonOutput bool
	var file string
	cmd := &cobra.Command{
		Use:   "normalize [numbers...]",
		Short: "Print the canonical form and carrier of phone numbers",
		Run: func(cmd *cobra.Command, args []string) {
			numbers, err := collectNumbers(args, file)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			rows := make([]normalizedRow, len(numbers))
			for i, raw := range numbers {
				rows[i] = normalizedRow{Input: raw}
				n, err := phone.Normalize(raw)
				if err != nil {
					rows[i].Error = err.Error()
					continue
				}
				rows[i].Canonical, rows[i].Carrier, rows[i].Region = n.Canonical, n.Carrier, n.Region
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(rows, "", "  ")
				fmt.Println(string(data))
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "INPUT\tCANONICAL\tCARRIER\tERROR\n")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", truncateStr(r.Input, 24), r.Canonical, r.Carrier, r.Error)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read numbers from file ('-' for stdin)")
	return cmd
}
