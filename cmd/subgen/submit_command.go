package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"subgen/internal/config"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var language string
	var noSkip bool

	cmd := &cobra.Command{
		Use:   "submit <path>...",
		Short: "Submit media files or folders for transcription",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files, folders []string
			for _, arg := range args {
				path, err := config.ExpandPath(arg)
				if err != nil {
					return err
				}
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("inspect path %q: %w", arg, err)
				}
				if info.IsDir() {
					folders = append(folders, path)
				} else {
					files = append(files, path)
				}
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			req := map[string]any{
				"files":    files,
				"folders":  folders,
				"language": language,
			}
			if noSkip {
				req["skip_if_exists"] = false
			}
			var resp batchResponse
			if err := client.postJSON(cmd.Context(), "/api/batch", req, &resp); err != nil {
				return err
			}
			if resp.JobCount == 0 {
				return errors.New("no media files matched the submitted paths")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted session %d with %d jobs\n", resp.SessionID, resp.JobCount)
			for _, skipped := range resp.SkippedPaths {
				fmt.Fprintf(out, "  skipped %s: %s\n", skipped.FilePath, skipped.Reason)
			}
			if !stdoutIsTerminal() {
				return nil
			}
			rows := make([][]string, 0, len(resp.Jobs))
			for _, job := range resp.Jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.FilePath,
					job.Language,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "File", "Language"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft}))
			fmt.Fprintf(out, "Track progress with: subgen sessions show %d\n", resp.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Subtitle language code (ISO 639-1)")
	cmd.Flags().BoolVar(&noSkip, "no-skip", false, "Transcribe even when skip rules or existing subtitles apply")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.post(cmd.Context(), fmt.Sprintf("/api/jobs/%d/cancel", id), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %d\n", id)
			return nil
		},
	}
}
