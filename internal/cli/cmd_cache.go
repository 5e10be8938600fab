package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"youwin-client/internal/bootstrap"
	"youwin-client/internal/entity"
	"youwin-client/pkg/cachestore"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached results",
	}
	cmd.AddCommand(newCacheShowCmd(), newCacheClearCmd())
	return cmd
}

func newCacheShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [youtube-url]",
		Short: "List cached videos, or print one video's cached results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			w := cmd.OutOrStdout()
			if len(args) == 1 {
				return showCachedReference(w, c.Cache, args[0])
			}
			listCache(w, c.Cache)
			return nil
		},
	}
}

func listCache(w io.Writer, store *cachestore.Store) {
	if store.IsEmpty() {
		dimColor.Fprintln(w, "Cache is empty.")
		return
	}
	current := store.CurrentReference()
	for _, t := range entity.AllTables {
		headingColor.Fprintf(w, "%s\n", t)
		for _, ref := range store.References(t) {
			e, _ := store.Get(t, ref)
			marker := " "
			if ref == current {
				marker = "*"
			}
			fmt.Fprintf(w, "%s %s  %s  %d chars\n", marker, e.CreatedAt.Format(time.RFC3339), ref, len(e.Content))
		}
	}
}

func showCachedReference(w io.Writer, store *cachestore.Store, reference string) error {
	found := false
	for _, t := range entity.AllTables {
		e, ok := store.Get(t, reference)
		if !ok {
			continue
		}
		if found {
			fmt.Fprintln(w)
		}
		found = true
		headingColor.Fprintf(w, "%s (%s)\n", t, e.CreatedAt.Format(time.RFC3339))
		fmt.Fprintln(w, e.Content)
	}
	if !found {
		return fmt.Errorf("cache show: nothing cached for %q", reference)
	}
	return nil
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached transcript and summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *bootstrap.Container) error {
				if err := c.Session.ClearCache(ctx); err != nil {
					errorColor.Fprintln(cmd.ErrOrStderr(), "Failed to clear cache")
					return fmt.Errorf("cache clear: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			})
		},
	}
}
