package cli

import (
	"context"
	"errors"
	"fmt"

	"youwin-client/internal/config"
	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/events"

	pktNats "youwin-client/pkg/nats"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail session events mirrored to NATS by other youwin processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Events.NatsURL == "" {
				return errors.New("watch: NATS_URL is not set")
			}

			log := logger.NewIsolatedLogger(cfg.App.LogFilePath)
			defer log.Sync()

			sub, err := pktNats.NewSubscriber(cfg.Events.NatsURL, log)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer sub.Close()

			ctx := cmd.Context()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			err = sub.Subscribe(ctx, subject, "", func(_ context.Context, ev events.Event) error {
				renderWatchedEvent(out, ev)
				return nil
			})
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			dimColor.Fprintf(out, "Watching %s on %s\n", subject, cfg.Events.NatsURL)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", pktNats.SubjectAll, "subject filter")
	return cmd
}
