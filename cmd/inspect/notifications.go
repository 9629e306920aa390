package main

import (
	"chat-delivery/domain"
	"chat-delivery/repositories"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var unreadOnly bool

var notificationsCmd = &cobra.Command{
	Use:   "notifications <user>",
	Short: "List the notifications of a user, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		notifications := repositories.NewNotificationRepository(db, slog.Default())
		recipient := domain.UserID(args[0])
		list, pagination, err := notifications.List(recipient, unreadOnly,
			domain.NewPage(page, limit, domain.DefaultNotificationLimit))
		if err != nil {
			return err
		}
		unread, err := notifications.UnreadCount(recipient)
		if err != nil {
			return err
		}

		title("Notifications of " + args[0])
		table := newTable("Created", "Type", "From", "Message", "Post", "Read")
		for _, n := range list {
			read := color.Yellow.Sprint("no")
			if n.IsRead {
				read = "yes"
			}
			table.Append([]string{
				humanize.Time(n.CreatedAt),
				string(n.Type),
				string(n.SenderID),
				shorten(n.Message, 50),
				lo.FromPtrOr(n.PostID, "-"),
				read,
			})
		}
		table.Render()
		footer("page %d/%d, %d notifications, %d unread", pagination.CurrentPage, pagination.TotalPages, pagination.Total, unread)
		return nil
	},
}

func init() {
	notificationsCmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread notifications")
}
