package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatcache/internal/query"
)

func init() {
	messagesCmd.Flags().IntP("limit", "n", 50, "show at most the last n messages")
	rootCmd.AddCommand(conversationsCmd, messagesCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List cached conversations by last activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		q := query.AllConversations()
		rows := a.Store.Conversations.Query(q.Match, q.Less)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SID\tNAME\tMESSAGES\tUNREAD\tLAST ACTIVITY")
		for _, c := range rows {
			last := "-"
			if !c.LastMessage.Date.IsZero() {
				last = humanize.Time(c.LastMessage.Date)
			} else if !c.DateUpdated.IsZero() {
				last = humanize.Time(c.DateUpdated)
			}
			name := c.FriendlyName
			if c.Muted() {
				name += " (muted)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", c.Sid, name, c.MessagesCount, c.UnreadCount, last)
		}
		return w.Flush()
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-sid>",
	Short: "List cached messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		limit, _ := cmd.Flags().GetInt("limit")
		q := query.MessagesInConversation(args[0])
		rows := a.Store.Messages.Query(q.Match, q.Less)
		if limit > 0 && len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tAUTHOR\tSTATUS\tWHEN\tBODY")
		for _, m := range rows {
			index := "-"
			if m.Confirmed() {
				index = fmt.Sprint(m.Index)
			}
			when := "-"
			if !m.DateCreated.IsZero() {
				when = humanize.Time(m.DateCreated)
			}
			body := m.Body
			if m.HasMedia() {
				body = fmt.Sprintf("[%s %s] %s", m.MediaFilename, humanize.Bytes(uint64(m.MediaSize)), body)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", index, m.Author, m.SendStatus, when, body)
		}
		return w.Flush()
	},
}
