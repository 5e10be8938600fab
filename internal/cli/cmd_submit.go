package cli

import (
	"context"
	"fmt"
	"time"

	"youwin-client/internal/bootstrap"
	"youwin-client/internal/service"

	"github.com/spf13/cobra"
)

const defaultWait = 5 * time.Minute

func newSubmitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit <youtube-url>",
		Short: "Transcribe and summarize a video",
		Long:  "Shows cached results when both transcript and summary exist for the URL.\nOtherwise sends the URL to the server and waits for the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *bootstrap.Container) error {
				w := cmd.OutOrStdout()

				cacheHit, err := c.Session.Submit(ctx, args[0])
				if err != nil {
					v, viewErr := c.Session.View(ctx)
					if viewErr == nil && v.Error != "" {
						renderView(w, v)
					}
					return fmt.Errorf("submit: %w", err)
				}
				if cacheHit {
					dimColor.Fprintln(w, "(cached)")
				}

				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				v, err := c.Session.Await(waitCtx, service.Settled)
				if err != nil {
					return fmt.Errorf("submit: waiting for result: %w", err)
				}
				renderView(w, v)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultWait, "how long to wait for the server")
	return cmd
}
