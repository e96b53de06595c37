package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show row counts and media cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		stats := a.Store.Stats()
		files, size, err := a.Cache.Usage()
		if err != nil {
			return fmt.Errorf("failed to measure media cache: %w", err)
		}
		counts := a.Unread.Counts()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Store:         %s\n", a.Config.DatabasePath())
		fmt.Fprintf(out, "Conversations: %s\n", humanize.Comma(int64(stats.Conversations)))
		fmt.Fprintf(out, "Messages:      %s\n", humanize.Comma(int64(stats.Messages)))
		fmt.Fprintf(out, "Participants:  %s\n", humanize.Comma(int64(stats.Participants)))
		fmt.Fprintf(out, "Attachments:   %s\n", humanize.Comma(int64(stats.Media)))
		fmt.Fprintf(out, "Unread:        %s (%s unmuted)\n", humanize.Comma(int64(counts.Total)), humanize.Comma(int64(counts.Unmuted)))
		fmt.Fprintf(out, "Media cache:   %s files, %s in %s\n", humanize.Comma(int64(files)), humanize.Bytes(uint64(size)), a.Cache.Dir())
		return nil
	},
}
