package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"youwin-client/internal/pkg/logger"

	"github.com/spf13/cobra"
)

type logsConfig struct {
	level  string
	limit  int
	offset int
	id     string
}

func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show entries from the client log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			w := cmd.OutOrStdout()
			if cfg.id != "" {
				entry, err := c.Logger.GetLogById(cfg.id)
				if err != nil {
					return fmt.Errorf("logs: %w", err)
				}
				return printLogDetail(w, *entry)
			}

			entries, err := c.Logger.GetLogs(cfg.level, cfg.limit, cfg.offset)
			if err != nil {
				return fmt.Errorf("logs: %w", err)
			}
			for _, e := range entries {
				printLogLine(w, e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.level, "level", "", "only show this level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().IntVar(&cfg.limit, "limit", 50, "maximum entries, 0 for all")
	cmd.Flags().IntVar(&cfg.offset, "offset", 0, "skip this many newest entries")
	cmd.Flags().StringVar(&cfg.id, "id", "", "print a single entry by id")
	return cmd
}

func printLogLine(w io.Writer, e logger.LogEntry) {
	level := e.Level
	switch level {
	case "ERROR":
		level = errorColor.Sprint(level)
	case "WARN":
		level = userColor.Sprint(level)
	}
	fmt.Fprintf(w, "%s %s %-5s [%s] %s\n", dimColor.Sprint(e.Id), e.Timestamp, level, e.Module, e.Message)
}

func printLogDetail(w io.Writer, e logger.LogEntry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
