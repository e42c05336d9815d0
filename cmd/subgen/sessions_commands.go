package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect batch sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSessions(cmd, ctx)
		},
	}

	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsCancelCommand(ctx))
	sessionsCmd.AddCommand(newSessionsDeleteCommand(ctx))

	return sessionsCmd
}

func listSessions(cmd *cobra.Command, ctx *commandContext) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	var payload struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := client.getJSON(cmd.Context(), "/api/sessions", &payload); err != nil {
		return err
	}
	if !stdoutIsTerminal() {
		return writeJSON(cmd, payload)
	}
	if len(payload.Sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
		return nil
	}
	rows := make([][]string, 0, len(payload.Sessions))
	for _, s := range payload.Sessions {
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			s.Source,
			s.Status,
			strconv.Itoa(s.TotalFiles),
			strconv.Itoa(s.Completed),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
			s.CreatedAt,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Source", "Status", "Files", "Done", "Skipped", "Failed", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}))
	return nil
}

func parseSessionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid session id %q", arg)
	}
	return id, nil
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var detail sessionDetail
			if err := client.getJSON(cmd.Context(), fmt.Sprintf("/api/sessions/%d", id), &detail); err != nil {
				return err
			}
			if !stdoutIsTerminal() {
				return writeJSON(cmd, detail)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %d (%s): %s, %d files\n",
				detail.ID, detail.Source, detail.Status, detail.TotalFiles)
			rows := make([][]string, 0, len(detail.Jobs))
			for _, job := range detail.Jobs {
				note := job.SubtitlePath
				if job.SkipReason != "" {
					note = job.SkipReason
				}
				if job.Error != "" {
					note = job.Error
				}
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.FilePath,
					job.Status,
					job.DetectedLanguage,
					note,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "File", "Status", "Language", "Result"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}

func newSessionsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Request cancellation of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Cancelled    int64    `json:"cancelled"`
				CleanedBlobs int      `json:"cleaned_blobs"`
				Errors       []string `json:"errors"`
			}
			if err := client.post(cmd.Context(), fmt.Sprintf("/api/sessions/%d/cancel", id), &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cancellation requested for session %d (%d jobs flagged, %d blobs cleaned)\n",
				id, resp.Cancelled, resp.CleanedBlobs)
			for _, cleanupErr := range resp.Errors {
				fmt.Fprintf(out, "  cleanup: %s\n", cleanupErr)
			}
			return nil
		},
	}
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its job records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.delete(cmd.Context(), fmt.Sprintf("/api/sessions/%d", id), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %d\n", id)
			return nil
		},
	}
}
