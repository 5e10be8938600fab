package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"youwin-client/internal/bootstrap"
	"youwin-client/internal/entity"
	"youwin-client/internal/service"
	"youwin-client/pkg/session"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the last submitted video",
		Long:  "Uses the cached transcript of the last submitted URL as context.\nThe video must have a summary before questions are accepted.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withSession(cmd.Context(), func(ctx context.Context, c *bootstrap.Container) error {
				w := cmd.OutOrStdout()

				before, err := c.Session.View(ctx)
				if err != nil {
					return err
				}
				if err := c.Session.Ask(ctx, question); err != nil {
					if errors.Is(err, session.ErrChatNotReady) {
						return errors.New("ask: no summarized video yet, run `youwin submit <url>` first")
					}
					return fmt.Errorf("ask: %w", err)
				}

				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				v, err := c.Session.Await(waitCtx, service.AnswerAfter(before))
				if err != nil {
					return fmt.Errorf("ask: waiting for answer: %w", err)
				}
				last := v.History[len(v.History)-1]
				if last.Origin != entity.OriginAssistant {
					renderView(w, v)
					return errors.New("ask: no answer")
				}
				renderMessage(w, last)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultWait, "how long to wait for the answer")
	return cmd
}
