package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidkiosk/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Ask the daemon to send a test ntfy notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				msg := ""
				if resp != nil {
					msg = resp.Message
				}
				switch {
				case msg != "":
					fmt.Fprintln(cmd.OutOrStdout(), capitalize(msg))
				case err == nil && resp != nil && resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				case err == nil:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return err
			})
		},
	}
}
