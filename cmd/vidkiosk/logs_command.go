package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vidkiosk/internal/ipc"
	"vidkiosk/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				runCtx := cmd.Context()
				out := cmd.OutOrStdout()

				resp, err := client.LogTail(ipc.LogTailRequest{})
				if err != nil {
					return fmt.Errorf("tail logs: %w", err)
				}
				if resp == nil {
					return errors.New("log tail response missing")
				}
				printed := printLogEvents(out, tailEvents(resp.Events, lines))
				if !follow {
					if printed == 0 {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}

				since := resp.Next
				for {
					if runCtx != nil {
						select {
						case <-runCtx.Done():
							return nil
						default:
						}
					}
					resp, err := client.LogTail(ipc.LogTailRequest{
						Since:      since,
						Follow:     true,
						WaitMillis: 1000,
					})
					if err != nil {
						return fmt.Errorf("tail logs: %w", err)
					}
					printLogEvents(out, resp.Events)
					since = resp.Next
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent events to show (0 for all buffered)")
	return cmd
}

func tailEvents(events []logging.LogEvent, n int) []logging.LogEvent {
	if n <= 0 || len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}

func printLogEvents(out io.Writer, events []logging.LogEvent) int {
	for _, evt := range events {
		fmt.Fprintln(out, formatLogEvent(evt))
	}
	return len(events)
}

func formatLogEvent(evt logging.LogEvent) string {
	line := fmt.Sprintf("%s %-5s", evt.Timestamp.Local().Format("2006-01-02 15:04:05"), evt.Level)
	if evt.Component != "" {
		line += " [" + evt.Component + "]"
	}
	if evt.VideoID != "" {
		line += " " + evt.VideoID + ":"
	}
	line += " " + evt.Message
	if errText := evt.Fields["error"]; errText != "" {
		line += " (" + errText + ")"
	}
	return line
}
