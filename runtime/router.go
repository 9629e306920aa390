package runtime

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"chat-delivery/errors"
	"chat-delivery/moderation"
	"chat-delivery/observability"
	"chat-delivery/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type RouterConfig struct {
	PushTimeout      time.Duration
	TypingWindow     time.Duration
	MaxContentLength int
}

// ReadResult acknowledges a mark-read to its actor.
type ReadResult struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Marked         int                   `json:"marked"`
	Timestamp      time.Time             `json:"timestamp"`
}

// Router applies inbound events in the order Received, Authorized, Persisted,
// Broadcast, Acknowledged. Nothing is broadcast before the store accepted it.
// Events mutating a conversation hold its lock from persistence to broadcast,
// so every member sees them in storage order.
type Router struct {
	pusher
	rooms            contract.IRoomTracker
	messages         repositories.IMessageRepository
	index            contract.IMessageIndex
	moderator        *moderation.Moderator
	locks            *KeyedMutex
	typing           *TypingState
	validate         *validator.Validate
	maxContentLength int
	now              func() time.Time
}

// NewRouter builds the router. index and moderator are optional.
func NewRouter(
	log *slog.Logger,
	registry contract.IConnectionRegistry,
	rooms contract.IRoomTracker,
	messages repositories.IMessageRepository,
	index contract.IMessageIndex,
	moderator *moderation.Moderator,
	metrics *observability.Metrics,
	config RouterConfig,
) *Router {
	r := &Router{
		pusher:           pusher{log: log, registry: registry, metrics: metrics, timeout: config.PushTimeout},
		rooms:            rooms,
		messages:         messages,
		index:            index,
		moderator:        moderator,
		locks:            NewKeyedMutex(),
		validate:         validator.New(),
		maxContentLength: config.MaxContentLength,
		now:              func() time.Time { return time.Now().UTC() },
	}
	r.typing = NewTypingState(config.TypingWindow, r.typingExpired)
	return r
}

// Serve consumes the events of one connection until the channel closes or ctx
// is done, then runs the disconnect cleanup.
func (r *Router) Serve(ctx context.Context, connID domain.ConnectionID, inbound <-chan event.Inbound) {
	defer r.Disconnect(ctx, connID)
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-inbound:
			if !ok {
				return
			}
			r.Handle(ctx, connID, in)
		}
	}
}

// Handle applies one inbound event and answers the origin connection with an
// ack or an error frame. Errors are never sent to anyone else.
func (r *Router) Handle(ctx context.Context, connID domain.ConnectionID, in event.Inbound) {
	r.metrics.EventsReceived.WithLabelValues(string(in.Kind())).Inc()

	data, err := r.dispatch(ctx, connID, in)
	if err != nil {
		code := errors.ToCode(err)
		r.metrics.EventsRejected.WithLabelValues(string(code)).Inc()
		if code == errors.CodeStorage || code == errors.CodeInternal {
			r.log.Error("Event failed", "connection_id", connID, "kind", in.Kind(), "error", err)
		} else {
			r.log.Debug("Event rejected", "connection_id", connID, "kind", in.Kind(), "error", err)
		}
		r.push(ctx, connID, event.NewFailure(in.CorrelationRef(), err))
		return
	}
	r.push(ctx, connID, event.Ack{Ref: in.CorrelationRef(), Data: data})
}

func (r *Router) dispatch(ctx context.Context, connID domain.ConnectionID, in event.Inbound) (any, error) {
	switch e := in.(type) {
	case event.Announce:
		return map[string]domain.UserID{"userId": e.UserID}, r.Announce(connID, e.UserID)
	case event.JoinConversation:
		return map[string]domain.ConversationID{"conversationId": e.ConversationID},
			r.rooms.Join(ctx, e.ConversationID, connID)
	case event.LeaveConversation:
		r.rooms.Leave(e.ConversationID, connID)
		return map[string]domain.ConversationID{"conversationId": e.ConversationID}, nil
	}

	userID, ok := r.registry.UserOf(connID)
	if !ok {
		return nil, errors.ErrNotAnnounced
	}
	switch e := in.(type) {
	case event.SendMessage:
		return r.SendMessage(ctx, connID, userID, e.ConversationID, e.Text, e.File)
	case event.Typing:
		return nil, r.SetTyping(ctx, connID, userID, e.ConversationID, e.IsTyping)
	case event.MarkRead:
		return r.MarkRead(ctx, connID, userID, e.ConversationID)
	case event.DeleteMessage:
		return r.DeleteMessage(ctx, connID, userID, e.MessageID, e.ForEveryone)
	default:
		return nil, fmt.Errorf("%s: %w", in.Kind(), errors.ErrUnknownEvent)
	}
}

// Announce binds the connection to an identity already verified upstream.
// Re-announcing another identity drops the rooms joined under the previous one.
func (r *Router) Announce(connID domain.ConnectionID, userID domain.UserID) error {
	previous, bound := r.registry.UserOf(connID)
	if err := r.registry.Bind(connID, userID); err != nil {
		return err
	}
	if bound && previous != userID {
		r.rooms.DropConnection(connID)
	}
	r.log.Debug("Connection announced", "connection_id", connID, "user_id", userID)
	return nil
}

// SendMessage persists then broadcasts a message. origin is the connection
// the message came from, it gets the ack instead of the broadcast. It is
// empty when the message comes from the HTTP API.
func (r *Router) SendMessage(ctx context.Context, origin domain.ConnectionID, userID domain.UserID,
	conversationID domain.ConversationID, text string, file *domain.FileDescriptor) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if err := r.validateContent(conversationID, text, file); err != nil {
		return domain.Message{}, err
	}

	unlock := r.locks.Lock(conversationID)
	defer unlock()

	if _, err := r.authorize(conversationID, userID); err != nil {
		return domain.Message{}, err
	}

	var lang string
	if text != "" {
		if r.moderator != nil {
			var hits []string
			text, hits = r.moderator.Censor(text)
			if len(hits) > 0 {
				r.log.Debug("Message censored", "conversation_id", conversationID, "hits", len(hits))
			}
		}
		lang = moderation.DetectLanguage(text)
	}
	message := domain.NewMessage(conversationID, userID, text, file, r.now())
	message.Lang = lang

	stored, err := r.messages.AppendMessage(message)
	if err != nil {
		return domain.Message{}, errors.Storage(err)
	}
	r.metrics.MessagesPersisted.Inc()
	r.indexMessage(stored)

	r.pushAll(ctx, r.rooms.MembersOf(conversationID), origin, event.MessageReceived{Message: stored})
	return stored, nil
}

// SetTyping broadcasts the typing state of userID. Nothing is persisted.
func (r *Router) SetTyping(ctx context.Context, origin domain.ConnectionID, userID domain.UserID,
	conversationID domain.ConversationID, isTyping bool) error {
	if _, err := r.authorize(conversationID, userID); err != nil {
		return err
	}
	if isTyping {
		r.typing.Start(conversationID, userID)
	} else {
		r.typing.Stop(conversationID, userID)
	}
	r.pushAll(ctx, r.rooms.MembersOf(conversationID), origin, event.UserTyping{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	return nil
}

// MarkRead persists the read markers of userID, then tells the room.
// A repeated call adds nothing and broadcasts nothing.
func (r *Router) MarkRead(ctx context.Context, origin domain.ConnectionID, userID domain.UserID,
	conversationID domain.ConversationID) (ReadResult, error) {
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	if _, err := r.authorize(conversationID, userID); err != nil {
		return ReadResult{}, err
	}
	now := r.now()
	marked, err := r.messages.MarkRead(conversationID, userID, now)
	if err != nil {
		return ReadResult{}, errors.Storage(err)
	}
	if marked > 0 {
		r.pushAll(ctx, r.rooms.MembersOf(conversationID), origin, event.MessagesRead{
			ConversationID: conversationID,
			ReadBy:         userID,
			Timestamp:      now,
		})
	}
	return ReadResult{ConversationID: conversationID, Marked: marked, Timestamp: now}, nil
}

// DeleteMessage hides the message for userID, or redacts it for everyone when
// userID is its sender. Only the redaction is broadcast.
func (r *Router) DeleteMessage(ctx context.Context, origin domain.ConnectionID, userID domain.UserID,
	messageID uuid.UUID, forEveryone bool) (domain.Message, error) {
	message, err := r.messages.GetMessage(messageID)
	if err != nil {
		return domain.Message{}, errors.Storage(err)
	}
	conversationID := message.ConversationID

	unlock := r.locks.Lock(conversationID)
	defer unlock()

	if _, err = r.authorize(conversationID, userID); err != nil {
		return domain.Message{}, err
	}

	if !forEveryone {
		hidden, err := r.messages.HideFor(messageID, userID)
		if err != nil {
			return domain.Message{}, errors.Storage(err)
		}
		return hidden, nil
	}

	if message.SenderID != userID {
		return domain.Message{}, errors.ErrNotSender
	}
	redacted, err := r.messages.Redact(messageID)
	if err != nil {
		return domain.Message{}, errors.Storage(err)
	}
	r.indexMessage(redacted)
	r.pushAll(ctx, r.rooms.MembersOf(conversationID), origin, event.MessageDeleted{Message: redacted})
	return redacted, nil
}

// Disconnect drops the connection from its rooms first, so that the typing
// broadcasts below never target it, then clears the typing state of its user.
func (r *Router) Disconnect(ctx context.Context, connID domain.ConnectionID) {
	ctx = context.WithoutCancel(ctx)
	left := r.rooms.DropConnection(connID)
	userID, ok := r.registry.Disconnect(connID)
	if !ok {
		r.log.Debug("Anonymous connection closed", "connection_id", connID)
		return
	}
	for _, conversationID := range r.typing.ClearUser(userID) {
		r.pushAll(ctx, r.rooms.MembersOf(conversationID), "", event.UserTyping{
			ConversationID: conversationID,
			UserID:         userID,
		})
	}
	r.log.Debug("Connection closed", "connection_id", connID, "user_id", userID, "rooms_left", len(left))
}

func (r *Router) typingExpired(conversationID domain.ConversationID, userID domain.UserID) {
	r.pushAll(context.Background(), r.rooms.MembersOf(conversationID), "", event.UserTyping{
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// authorize loads the conversation and checks userID is one of its participants.
func (r *Router) authorize(conversationID domain.ConversationID, userID domain.UserID) (domain.Conversation, error) {
	if !conversationID.Valid() {
		return domain.Conversation{}, fmt.Errorf("conversation id %q: %w", conversationID, errors.ErrInvalidPayload)
	}
	conversation, err := r.messages.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, errors.Storage(err)
	}
	if !conversation.HasParticipant(userID) {
		return domain.Conversation{}, errors.ErrNotParticipant
	}
	return conversation, nil
}

func (r *Router) validateContent(conversationID domain.ConversationID, text string, file *domain.FileDescriptor) error {
	if !conversationID.Valid() {
		return fmt.Errorf("conversation id %q: %w", conversationID, errors.ErrInvalidPayload)
	}
	if text == "" && file == nil {
		return errors.ErrEmptyMessage
	}
	if r.maxContentLength > 0 && utf8.RuneCountInString(text) > r.maxContentLength {
		return errors.ErrContentTooLong
	}
	if file != nil {
		if err := r.validate.Struct(file); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
	}
	return nil
}

// indexMessage keeps search in sync. The index is secondary, a failure is
// only logged.
func (r *Router) indexMessage(message domain.Message) {
	if r.index == nil {
		return
	}
	if err := r.index.Index(message); err != nil {
		r.log.Warn("Failed to index message", "message_id", message.ID, "error", err)
	}
}
