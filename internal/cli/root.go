package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the youwin command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "youwin",
		Short:         "Transcribe and summarize YouTube videos from the terminal",
		Long:          "youwin sends a YouTube URL to the processing server, shows the transcript and summary,\nand lets you ask follow-up questions about the video. Results are cached locally.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newSubmitCmd(),
		newAskCmd(),
		newReplCmd(),
		newCacheCmd(),
		newLogsCmd(),
		newWatchCmd(),
	)

	return cmd
}
