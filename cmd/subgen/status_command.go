package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var status statusResponse
			if err := client.getJSON(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}
			if jsonOutput || !stdoutIsTerminal() {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subgen daemon %s\n", status.Version)
			fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)
			fmt.Fprintf(out, "Concurrency: %d of %d transcription slots in use\n",
				status.Gate.InUse, status.Gate.Capacity)

			if len(status.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			statuses := make([]string, 0, len(status.Jobs))
			for name := range status.Jobs {
				statuses = append(statuses, name)
			}
			sort.Strings(statuses)
			rows := make([][]string, 0, len(statuses))
			for _, name := range statuses {
				rows = append(rows, []string{name, strconv.Itoa(status.Jobs[name])})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Status", "Jobs"}, rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}
