package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subgen/internal/config"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>",
		Short: "Detect the spoken language of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp detectResponse
			if err := client.postFile(cmd.Context(), "/detect-language", path, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", resp.DetectedLanguage, resp.LanguageCode)
			return nil
		},
	}
}
