package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidkiosk/internal/ipc"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videourl"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent plays, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Events)
				}
				out := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(out, "No plays recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"#", "Played", "Video", "Platform", "Link"},
					historyRows(resp.Events),
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of plays to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

func historyRows(events []store.PlayEvent) [][]string {
	rows := make([][]string, 0, len(events))
	for _, evt := range events {
		rows = append(rows, []string{
			strconv.FormatInt(evt.ID, 10),
			formatClock(evt.PlayedAt),
			evt.VideoID,
			videourl.PlatformLabel(evt.Platform),
			evt.SourceURL,
		})
	}
	return rows
}
