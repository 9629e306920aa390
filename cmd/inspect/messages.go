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

var viewer string

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation>",
	Short: "Show a page of messages of a conversation, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		messages := repositories.NewMessageRepository(db, slog.Default())
		conversationID := domain.ConversationID(args[0])
		conversation, err := messages.GetConversation(conversationID)
		if err != nil {
			return err
		}
		list, pagination, err := messages.ListMessages(conversationID, domain.UserID(viewer),
			domain.NewPage(page, limit, domain.DefaultMessageLimit))
		if err != nil {
			return err
		}

		title("Messages of " + joinIDs(conversation.Participants))
		table := newTable("Sent", "Sender", "Kind", "Content", "Read by")
		for _, m := range list {
			content := shorten(m.Text, 60)
			switch {
			case m.DeletedForEveryone:
				content = color.Gray.Sprint("(deleted)")
			case m.File != nil:
				content = color.Blue.Sprintf("[%s, %s] ", m.File.Name, humanize.Bytes(uint64(m.File.Size))) + content
			}
			table.Append([]string{
				humanize.Time(m.CreatedAt),
				string(m.SenderID),
				string(m.Kind),
				content,
				strconv.Itoa(len(m.ReadBy)),
			})
		}
		table.Render()
		footer("page %d/%d, %d messages", pagination.CurrentPage, pagination.TotalPages, pagination.Total)
		return nil
	},
}

func init() {
	messagesCmd.Flags().StringVar(&viewer, "as", "", "hide the messages this user deleted for themselves")
}
