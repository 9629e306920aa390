package main

import (
	"chat-delivery/repositories"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// StoreMapper renders the Badger entries of the delivery service for the
// debug inspector. Index entries keep the default rendering.
func StoreMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "conv:"):
		var c repositories.DiskConversation
		if err := json.Unmarshal(val, &c); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "CONVERSATION"
		if c.IsGroup {
			row.Type = "GROUP"
		}
		row.Detail = strings.Join(c.Participants, ", ")
	case strings.HasPrefix(key, "msg:"):
		var m repositories.DiskMessage
		if err := json.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = strings.ToUpper(m.Kind)
		switch {
		case m.Deleted:
			row.Detail = "(deleted)"
		case m.File != nil:
			row.Detail = fmt.Sprintf("%s: [%s] %s", m.SenderID, m.File.Name, m.Text)
		default:
			row.Detail = fmt.Sprintf("%s: %s", m.SenderID, m.Text)
		}
		row.Scores = fmt.Sprintf("read:%d", len(m.ReadBy))
	case strings.HasPrefix(key, "notif:"):
		var n repositories.DiskNotification
		if err := json.Unmarshal(val, &n); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = strings.ToUpper(n.Type)
		row.Detail = n.Message
		if n.IsRead {
			row.Scores = "read"
		}
	}
	return row
}
