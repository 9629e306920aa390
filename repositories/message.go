//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	CreateOrGetDirect(a, b domain.UserID, at time.Time) (domain.Conversation, bool, error)
	CreateGroup(participants []domain.UserID, at time.Time) (domain.Conversation, error)
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
	ListConversations(userID domain.UserID, page domain.Page) ([]domain.Conversation, domain.Pagination, error)
	AppendMessage(message domain.Message) (domain.Message, error)
	GetMessage(id uuid.UUID) (domain.Message, error)
	ListMessages(conversationID domain.ConversationID, viewer domain.UserID, page domain.Page) ([]domain.Message, domain.Pagination, error)
	MarkRead(conversationID domain.ConversationID, userID domain.UserID, at time.Time) (int, error)
	HideFor(messageID uuid.UUID, userID domain.UserID) (domain.Message, error)
	Redact(messageID uuid.UUID) (domain.Message, error)
	UnreadCount(userID domain.UserID) (int, map[domain.ConversationID]int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type DiskReadMarker struct {
	UserID string `json:"u"`
	At     int64  `json:"at"`
}

type DiskMessage struct {
	ID             uuid.UUID              `json:"id"`
	ConversationID string                 `json:"c"`
	SenderID       string                 `json:"s"`
	Kind           string                 `json:"k"`
	Text           string                 `json:"t"`
	File           *domain.FileDescriptor `json:"f,omitempty"`
	Lang           string                 `json:"l,omitempty"`
	ReadBy         []DiskReadMarker       `json:"r,omitempty"`
	HiddenFor      []string               `json:"h,omitempty"`
	Deleted        bool                   `json:"d,omitempty"`
	At             int64                  `json:"at"`
}

// AppendMessage persists a message and moves the conversation activity forward.
// The stored timestamp is strictly greater than the previous activity of the
// conversation, so the key order is the submission order even when two
// messages share the same wall clock reading.
func (m *MessageRepository) AppendMessage(message domain.Message) (domain.Message, error) {
	var stored domain.Message
	err := update(m.db, m.log, func(txn *badger.Txn) error {
		stored = message
		conversation, err := getConversation(txn, message.ConversationID)
		if err != nil {
			return err
		}
		if !conversation.HasParticipant(message.SenderID) {
			return errors.ErrNotParticipant
		}
		if !stored.CreatedAt.After(conversation.LastActivity) {
			stored.CreatedAt = conversation.LastActivity.Add(time.Nanosecond)
		}
		key := messageKey(stored.ConversationID, stored.CreatedAt, stored.ID)
		if err = setJSON(txn, key, fromMessage(stored)); err != nil {
			return err
		}
		if err = txn.Set(messageIDKey(stored.ID), key); err != nil {
			return err
		}
		conversation.Touch(stored.ID, stored.CreatedAt)
		return setConversation(txn, conversation)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

func (m *MessageRepository) GetMessage(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := view(m.db, func(txn *badger.Txn) error {
		var err error
		message, _, err = getMessage(txn, id)
		return err
	})
	return message, err
}

// ListMessages scans the conversation from the newest message backward,
// skipping messages hidden for the viewer, and returns the requested page
// in chronological order.
func (m *MessageRepository) ListMessages(conversationID domain.ConversationID,
	viewer domain.UserID, page domain.Page) ([]domain.Message, domain.Pagination, error) {
	var messages []domain.Message
	total := 0
	err := view(m.db, func(txn *badger.Txn) error {
		prefix := messagesPrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		start, end := page.Offset(), page.Offset()+page.Limit
		for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix); it.Next() {
			message, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			if message.IsHiddenFor(viewer) {
				continue
			}
			if total >= start && total < end {
				messages = append(messages, message)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	slices.Reverse(messages)
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, domain.NewPagination(page, total), nil
}

// MarkRead records userID as reader of every message of the conversation it
// did not send and has not read yet. It returns how many markers were added,
// zero on a repeated call.
func (m *MessageRepository) MarkRead(conversationID domain.ConversationID,
	userID domain.UserID, at time.Time) (int, error) {
	var unread [][]byte
	err := view(m.db, func(txn *badger.Txn) error {
		prefix := messagesPrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			message, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			if message.MarkRead(userID, at) {
				unread = append(unread, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Large conversations are rewritten in several commits, each one re-reads
	// its messages so that a concurrent mark-read is not counted twice.
	return updateEach(m.db, m.log, unread, func(txn *badger.Txn, key []byte) (bool, error) {
		var disk DiskMessage
		err := getJSON(txn, key, &disk, errors.ErrMessageNotFound)
		if errors.Is(err, errors.ErrMessageNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		message := toMessage(disk)
		if !message.MarkRead(userID, at) {
			return false, nil
		}
		return true, setJSON(txn, key, fromMessage(message))
	})
}

// HideFor hides the message for userID only, other readers are unaffected.
func (m *MessageRepository) HideFor(messageID uuid.UUID, userID domain.UserID) (domain.Message, error) {
	return m.mutate(messageID, func(message *domain.Message) bool {
		return message.HideFor(userID)
	})
}

// Redact irreversibly replaces the content of the message.
func (m *MessageRepository) Redact(messageID uuid.UUID) (domain.Message, error) {
	return m.mutate(messageID, func(message *domain.Message) bool {
		return message.Redact()
	})
}

func (m *MessageRepository) mutate(messageID uuid.UUID, fn func(message *domain.Message) bool) (domain.Message, error) {
	var message domain.Message
	err := update(m.db, m.log, func(txn *badger.Txn) error {
		current, key, err := getMessage(txn, messageID)
		if err != nil {
			return err
		}
		message = current
		if !fn(&message) {
			return nil
		}
		return setJSON(txn, key, fromMessage(message))
	})
	return message, err
}

// UnreadCount counts, across the conversations of userID, the messages it
// neither sent, read nor hid.
func (m *MessageRepository) UnreadCount(userID domain.UserID) (int, map[domain.ConversationID]int, error) {
	perConversation := make(map[domain.ConversationID]int)
	total := 0
	err := view(m.db, func(txn *badger.Txn) error {
		for _, conversationID := range conversationIDsOf(txn, userID) {
			prefix := messagesPrefix(conversationID)
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			count := 0
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				message, err := decodeMessage(it.Item())
				if err != nil {
					it.Close()
					return err
				}
				if message.CountsAsUnreadFor(userID) {
					count++
				}
			}
			it.Close()
			if count > 0 {
				perConversation[conversationID] = count
				total += count
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return total, perConversation, nil
}

func getMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, []byte, error) {
	key, err := getPointer(txn, messageIDKey(id), errors.ErrMessageNotFound)
	if err != nil {
		return domain.Message{}, nil, err
	}
	var disk DiskMessage
	if err = getJSON(txn, key, &disk, errors.ErrMessageNotFound); err != nil {
		return domain.Message{}, nil, err
	}
	return toMessage(disk), key, nil
}

func decodeMessage(item *badger.Item) (domain.Message, error) {
	var disk DiskMessage
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	})
	return toMessage(disk), err
}

func fromMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:             message.ID,
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.SenderID),
		Kind:           string(message.Kind),
		Text:           message.Text,
		File:           message.File,
		Lang:           message.Lang,
		ReadBy: lo.Map(message.ReadBy, func(r domain.ReadMarker, _ int) DiskReadMarker {
			return DiskReadMarker{UserID: string(r.UserID), At: r.ReadAt.UnixNano()}
		}),
		HiddenFor: lo.Map(message.HiddenFor, func(u domain.UserID, _ int) string { return string(u) }),
		Deleted:   message.DeletedForEveryone,
		At:        message.CreatedAt.UnixNano(),
	}
}

func toMessage(disk DiskMessage) domain.Message {
	message := domain.Message{
		ID:             disk.ID,
		ConversationID: domain.ConversationID(disk.ConversationID),
		SenderID:       domain.UserID(disk.SenderID),
		Kind:           domain.MessageKind(disk.Kind),
		Text:           disk.Text,
		File:           disk.File,
		Lang:           disk.Lang,
		ReadBy: lo.Map(disk.ReadBy, func(r DiskReadMarker, _ int) domain.ReadMarker {
			return domain.ReadMarker{UserID: domain.UserID(r.UserID), ReadAt: time.Unix(0, r.At).UTC()}
		}),
		DeletedForEveryone: disk.Deleted,
		CreatedAt:          time.Unix(0, disk.At).UTC(),
	}
	if len(disk.HiddenFor) > 0 {
		message.HiddenFor = lo.Map(disk.HiddenFor, func(u string, _ int) domain.UserID { return domain.UserID(u) })
	}
	return message
}
