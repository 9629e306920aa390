package services

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/errors"
	"chat-delivery/repositories"
	"chat-delivery/runtime"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IConversationService interface {
	OpenDirect(userID, otherID domain.UserID) (domain.Conversation, bool, error)
	CreateGroup(userID domain.UserID, participants []domain.UserID) (domain.Conversation, error)
	List(userID domain.UserID, page domain.Page) ([]domain.Conversation, domain.Pagination, error)
	Get(userID domain.UserID, conversationID domain.ConversationID) (domain.Conversation, error)
	Messages(userID domain.UserID, conversationID domain.ConversationID, page domain.Page) ([]domain.Message, domain.Pagination, error)
	Send(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID, text string, file *domain.FileDescriptor) (domain.Message, error)
	MarkRead(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID) (runtime.ReadResult, error)
	Delete(ctx context.Context, userID domain.UserID, messageID uuid.UUID, forEveryone bool) (domain.Message, error)
	UnreadCount(userID domain.UserID) (UnreadMessages, error)
	Search(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID, terms string, limit int) (SearchResult, error)
}

type UnreadMessages struct {
	Total           int                           `json:"total"`
	PerConversation map[domain.ConversationID]int `json:"perConversation"`
}

type SearchResult struct {
	Messages []domain.Message `json:"messages"`
	Hits     uint64           `json:"hits"`
}

// ConversationService is the HTTP side of the message flow. Writes go through
// the router so that they are ordered and broadcast exactly like socket events.
type ConversationService struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
	index    contract.IMessageIndex
	router   *runtime.Router
	now      func() time.Time
}

func NewConversationService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	index contract.IMessageIndex,
	router *runtime.Router,
) *ConversationService {
	return &ConversationService{
		log:      log,
		messages: messages,
		index:    index,
		router:   router,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ConversationService) OpenDirect(userID, otherID domain.UserID) (domain.Conversation, bool, error) {
	if !otherID.Valid() {
		return domain.Conversation{}, false, fmt.Errorf("participant %q: %w", otherID, errors.ErrInvalidPayload)
	}
	return s.messages.CreateOrGetDirect(userID, otherID, s.now())
}

// CreateGroup always includes its creator.
func (s *ConversationService) CreateGroup(userID domain.UserID, participants []domain.UserID) (domain.Conversation, error) {
	if invalid, found := lo.Find(participants, func(u domain.UserID) bool { return !u.Valid() }); found {
		return domain.Conversation{}, fmt.Errorf("participant %q: %w", invalid, errors.ErrInvalidPayload)
	}
	return s.messages.CreateGroup(append([]domain.UserID{userID}, participants...), s.now())
}

func (s *ConversationService) List(userID domain.UserID, page domain.Page) ([]domain.Conversation, domain.Pagination, error) {
	return s.messages.ListConversations(userID, page)
}

func (s *ConversationService) Get(userID domain.UserID, conversationID domain.ConversationID) (domain.Conversation, error) {
	conversation, err := s.messages.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(userID) {
		return domain.Conversation{}, errors.ErrNotParticipant
	}
	return conversation, nil
}

// Messages returns the page of messages visible to userID, oldest first.
func (s *ConversationService) Messages(userID domain.UserID, conversationID domain.ConversationID,
	page domain.Page) ([]domain.Message, domain.Pagination, error) {
	if _, err := s.Get(userID, conversationID); err != nil {
		return nil, domain.Pagination{}, err
	}
	return s.messages.ListMessages(conversationID, userID, page)
}

func (s *ConversationService) Send(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID,
	text string, file *domain.FileDescriptor) (domain.Message, error) {
	return s.router.SendMessage(ctx, "", userID, conversationID, text, file)
}

func (s *ConversationService) MarkRead(ctx context.Context, userID domain.UserID,
	conversationID domain.ConversationID) (runtime.ReadResult, error) {
	return s.router.MarkRead(ctx, "", userID, conversationID)
}

func (s *ConversationService) Delete(ctx context.Context, userID domain.UserID, messageID uuid.UUID,
	forEveryone bool) (domain.Message, error) {
	return s.router.DeleteMessage(ctx, "", userID, messageID, forEveryone)
}

func (s *ConversationService) UnreadCount(userID domain.UserID) (UnreadMessages, error) {
	total, perConversation, err := s.messages.UnreadCount(userID)
	if err != nil {
		return UnreadMessages{}, err
	}
	return UnreadMessages{Total: total, PerConversation: perConversation}, nil
}

// Search resolves index hits against the store, dropping what userID may no
// longer see. The store wins over a stale index.
func (s *ConversationService) Search(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID,
	terms string, limit int) (SearchResult, error) {
	if _, err := s.Get(userID, conversationID); err != nil {
		return SearchResult{}, err
	}
	if s.index == nil {
		return SearchResult{Messages: []domain.Message{}}, nil
	}
	ids, hits, err := s.index.Search(ctx, conversationID, terms, limit)
	if err != nil {
		return SearchResult{}, errors.Storage(err)
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.messages.GetMessage(id)
		if errors.Is(err, errors.ErrMessageNotFound) {
			s.log.Debug("Search hit missing from store", "message_id", id)
			continue
		}
		if err != nil {
			return SearchResult{}, err
		}
		if message.DeletedForEveryone || message.IsHiddenFor(userID) {
			continue
		}
		messages = append(messages, message)
	}
	return SearchResult{Messages: messages, Hits: hits}, nil
}
