package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidkiosk/internal/ipc"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/store"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage downloaded videos",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached videos, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CacheList()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "Cache is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"Video", "Fetched", "Size", "File"},
					cacheRows(resp.Entries),
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				summary := fmt.Sprintf("%d videos, %s", resp.Stats.Entries, logging.FormatBytes(resp.Stats.TotalBytes))
				if resp.Stats.MaxBytes > 0 {
					summary += " of " + logging.FormatBytes(resp.Stats.MaxBytes)
				}
				fmt.Fprintln(out, summary)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove the oldest videos until the cache fits its budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CachePrune()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Removed) == 0 {
					fmt.Fprintln(out, "Cache is within budget; nothing removed")
					return nil
				}
				for _, entry := range resp.Removed {
					fmt.Fprintf(out, "Removed %s (%s)\n", entry.VideoID, logging.FormatBytes(entry.SizeBytes))
				}
				fmt.Fprintf(out, "Freed %s\n", logging.FormatBytes(resp.FreedBytes))
				return nil
			})
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <video-id>",
		Short: "Delete one cached video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CacheRemove(videoID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from cache\n", videoID)
				return nil
			})
		},
	}
}

func cacheRows(entries []store.CacheEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.VideoID,
			formatClock(entry.FetchedAt),
			logging.FormatBytes(entry.SizeBytes),
			filepath.Base(entry.FilePath),
		})
	}
	return rows
}
