package repositories

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const minGroupParticipants = 2

type DiskConversation struct {
	ID            string     `json:"id"`
	Participants  []string   `json:"p"`
	IsGroup       bool       `json:"g,omitempty"`
	LastMessageID *uuid.UUID `json:"lm,omitempty"`
	LastActivity  int64      `json:"la"`
	CreatedAt     int64      `json:"ca"`
}

// CreateOrGetDirect returns the direct conversation of the unordered pair
// (a, b), creating it on first use. The pair index is read and written in the
// same transaction: two concurrent callers conflict, the loser is replayed and
// finds the conversation created by the winner.
func (m *MessageRepository) CreateOrGetDirect(a, b domain.UserID, at time.Time) (domain.Conversation, bool, error) {
	if a == b {
		return domain.Conversation{}, false, errors.ErrSelfConversation
	}
	var conversation domain.Conversation
	var created bool
	err := update(m.db, m.log, func(txn *badger.Txn) error {
		created = false
		key := pairKey(a, b)
		id, err := getPointer(txn, key, errors.ErrConversationNotFound)
		switch {
		case err == nil:
			conversation, err = getConversation(txn, domain.ConversationID(id))
			return err
		case !errors.Is(err, errors.ErrConversationNotFound):
			return err
		}

		conversation = domain.NewDirectConversation(a, b, at)
		if err = insertConversation(txn, conversation); err != nil {
			return err
		}
		created = true
		return txn.Set(key, []byte(conversation.ID))
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	if created {
		m.log.Debug("Direct conversation created", "conversation_id", conversation.ID)
	}
	return conversation, created, nil
}

// CreateGroup always creates a new conversation, groups are not deduplicated.
func (m *MessageRepository) CreateGroup(participants []domain.UserID, at time.Time) (domain.Conversation, error) {
	conversation := domain.NewGroupConversation(participants, at)
	if len(conversation.Participants) < minGroupParticipants {
		return domain.Conversation{}, fmt.Errorf("group needs %d participants: %w",
			minGroupParticipants, errors.ErrInvalidPayload)
	}
	err := update(m.db, m.log, func(txn *badger.Txn) error {
		return insertConversation(txn, conversation)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (m *MessageRepository) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := view(m.db, func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	return conversation, err
}

// ListConversations returns the conversations of userID, the most recently
// active first.
func (m *MessageRepository) ListConversations(userID domain.UserID,
	page domain.Page) ([]domain.Conversation, domain.Pagination, error) {
	var conversations []domain.Conversation
	err := view(m.db, func(txn *badger.Txn) error {
		for _, id := range conversationIDsOf(txn, userID) {
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Pagination{}, err
	}

	slices.SortFunc(conversations, func(x, y domain.Conversation) int {
		if c := y.LastActivity.Compare(x.LastActivity); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	start, end := page.Window(len(conversations))
	result := make([]domain.Conversation, 0, end-start)
	result = append(result, conversations[start:end]...)
	return result, domain.NewPagination(page, len(conversations)), nil
}

func conversationIDsOf(txn *badger.Txn, userID domain.UserID) []domain.ConversationID {
	prefix := userConversationsPrefix(userID)
	return lo.Map(keysWithPrefix(txn, prefix), func(key []byte, _ int) domain.ConversationID {
		return domain.ConversationID(key[len(prefix):])
	})
}

func insertConversation(txn *badger.Txn, conversation domain.Conversation) error {
	if err := setConversation(txn, conversation); err != nil {
		return err
	}
	for _, participant := range conversation.Participants {
		if err := txn.Set(userConversationKey(participant, conversation.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func getConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	var disk DiskConversation
	if err := getJSON(txn, conversationKey(id), &disk, errors.ErrConversationNotFound); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk), nil
}

func setConversation(txn *badger.Txn, conversation domain.Conversation) error {
	return setJSON(txn, conversationKey(conversation.ID), fromConversation(conversation))
}

func fromConversation(c domain.Conversation) DiskConversation {
	return DiskConversation{
		ID:            string(c.ID),
		Participants:  lo.Map(c.Participants, func(u domain.UserID, _ int) string { return string(u) }),
		IsGroup:       c.IsGroup,
		LastMessageID: c.LastMessageID,
		LastActivity:  c.LastActivity.UnixNano(),
		CreatedAt:     c.CreatedAt.UnixNano(),
	}
}

func toConversation(disk DiskConversation) domain.Conversation {
	return domain.Conversation{
		ID:            domain.ConversationID(disk.ID),
		Participants:  lo.Map(disk.Participants, func(u string, _ int) domain.UserID { return domain.UserID(u) }),
		IsGroup:       disk.IsGroup,
		LastMessageID: disk.LastMessageID,
		LastActivity:  time.Unix(0, disk.LastActivity).UTC(),
		CreatedAt:     time.Unix(0, disk.CreatedAt).UTC(),
	}
}
