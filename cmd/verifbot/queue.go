package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and deliver the notification queue",
	Long: `Inspect and deliver the notification queue persisted in the data
directory. Do not run flush while the bot is serving: both processes would
deliver the same messages.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print pending notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		queue, err := a.queue(cmd.Context())
		if err != nil {
			return err
		}
		pending := queue.Snapshot()
		if len(pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending notification.")
			return nil
		}
		for i, msg := range pending {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, strings.ReplaceAll(msg, "\n", " "))
		}
		return nil
	},
}

var queueFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver pending notifications now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		queue, err := a.queue(cmd.Context())
		if err != nil {
			return err
		}
		if !queue.Enabled() {
			return fmt.Errorf("notification transport not configured, %d message(s) kept", queue.Len())
		}
		if err := queue.Flush(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Flushed, %d message(s) pending.\n", queue.Len())
		return nil
	},
}

var queueSendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message immediately, bypassing the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		queue, err := a.queue(cmd.Context())
		if err != nil {
			return err
		}
		if !queue.SendImmediate(cmd.Context(), strings.Join(args, " ")) {
			return fmt.Errorf("message not delivered")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sent.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueFlushCmd)
	queueCmd.AddCommand(queueSendCmd)
}

