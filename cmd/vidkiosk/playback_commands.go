package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vidkiosk/internal/ipc"
)

func newPlaybackCommands(ctx *commandContext) []*cobra.Command {
	var wait bool
	playCmd := &cobra.Command{
		Use:   "play <url>",
		Short: "Queue a video link as if it had been scanned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Play(args[0], wait)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing play response")
				}
				out := cmd.OutOrStdout()
				if !resp.Queued {
					return fmt.Errorf("not queued: %s", resp.Message)
				}
				if resp.Outcome == nil {
					fmt.Fprintln(out, capitalize(resp.Message))
					return nil
				}
				return printOutcome(out, resp.Message, resp.Outcome)
			})
		},
	}
	playCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the video has finished or was refused")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the current video and return to the idle screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp != nil && resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Playback stopped")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing is playing")
				}
				return nil
			})
		},
	}

	return []*cobra.Command{playCmd, stopCmd}
}

// printOutcome reports a finished request. Refusals and failures become the
// command's error so scripts can tell them apart from plays.
func printOutcome(out io.Writer, message string, outcome *ipc.OutcomeResponse) error {
	fmt.Fprintln(out, message)
	if len(outcome.Trace) > 0 {
		fmt.Fprintf(out, "  trace:   %s\n", strings.Join(outcome.Trace, " -> "))
	}
	fmt.Fprintf(out, "  request: %s\n", outcome.RequestID)
	if outcome.State == "idle" {
		return nil
	}
	if outcome.Error != "" {
		return fmt.Errorf("%s: %s", outcome.Kind, outcome.Error)
	}
	return fmt.Errorf("request %s", outcome.State)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
