package main

import (
	"chat-delivery/domain"
	"chat-delivery/repositories"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations <user>",
	Short: "List the conversations of a user, most recent activity first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		messages := repositories.NewMessageRepository(db, slog.Default())
		userID := domain.UserID(args[0])
		conversations, pagination, err := messages.ListConversations(userID,
			domain.NewPage(page, limit, domain.DefaultConversationLimit))
		if err != nil {
			return err
		}
		_, unread, err := messages.UnreadCount(userID)
		if err != nil {
			return err
		}

		title("Conversations of " + args[0])
		table := newTable("ID", "Kind", "Participants", "Unread", "Last activity")
		for _, c := range conversations {
			kind := "direct"
			if c.IsGroup {
				kind = "group"
			}
			count := strconv.Itoa(unread[c.ID])
			if unread[c.ID] > 0 {
				count = color.Yellow.Sprint(count)
			}
			table.Append([]string{string(c.ID), kind, joinIDs(c.Participants), count, humanize.Time(c.LastActivity)})
		}
		table.Render()
		footer("page %d/%d, %d conversations", pagination.CurrentPage, pagination.TotalPages, pagination.Total)
		return nil
	},
}
