package ws

import (
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"chat-delivery/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Frame is the envelope of every socket message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type OutFrame struct {
	Event string `json:"event"`
	Ref   string `json:"ref,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type announcePayload struct {
	Token string `json:"token" validate:"required"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId" validate:"required,uuid"`
}

type sendMessagePayload struct {
	ConversationID string                 `json:"conversationId" validate:"required,uuid"`
	Text           string                 `json:"text"`
	File           *domain.FileDescriptor `json:"file"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId" validate:"required,uuid"`
	IsTyping       bool   `json:"isTyping"`
}

type deleteMessagePayload struct {
	MessageID   string `json:"messageId" validate:"required,uuid"`
	ForEveryone bool   `json:"forEveryone"`
}

// TokenValidator resolves the identity carried by an announce frame.
type TokenValidator interface {
	ValidateToken(token string) (domain.UserID, error)
}

type Codec struct {
	tokens   TokenValidator
	validate *validator.Validate
}

func NewCodec(tokens TokenValidator) *Codec {
	return &Codec{tokens: tokens, validate: validator.New()}
}

// Decode turns a raw frame into a typed inbound event. Errors belong to the
// taxonomy and are meant for the sender only.
func (c *Codec) Decode(raw []byte) (event.Inbound, string, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	meta := event.Meta{Ref: frame.Ref}

	switch event.InboundKind(frame.Event) {
	case event.AnnounceKind:
		var p announcePayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		userID, err := c.tokens.ValidateToken(p.Token)
		if err != nil {
			return nil, frame.Ref, err
		}
		return event.Announce{Meta: meta, UserID: userID}, frame.Ref, nil
	case event.JoinConversationKind:
		var p conversationPayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		return event.JoinConversation{Meta: meta, ConversationID: domain.ConversationID(p.ConversationID)}, frame.Ref, nil
	case event.LeaveConversationKind:
		var p conversationPayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		return event.LeaveConversation{Meta: meta, ConversationID: domain.ConversationID(p.ConversationID)}, frame.Ref, nil
	case event.SendMessageKind:
		var p sendMessagePayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		return event.SendMessage{
			Meta:           meta,
			ConversationID: domain.ConversationID(p.ConversationID),
			Text:           p.Text,
			File:           p.File,
		}, frame.Ref, nil
	case event.TypingKind:
		var p typingPayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		return event.Typing{Meta: meta, ConversationID: domain.ConversationID(p.ConversationID), IsTyping: p.IsTyping}, frame.Ref, nil
	case event.MarkReadKind:
		var p conversationPayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		return event.MarkRead{Meta: meta, ConversationID: domain.ConversationID(p.ConversationID)}, frame.Ref, nil
	case event.DeleteMessageKind:
		var p deleteMessagePayload
		if err := c.bind(frame, &p); err != nil {
			return nil, frame.Ref, err
		}
		return event.DeleteMessage{Meta: meta, MessageID: uuid.MustParse(p.MessageID), ForEveryone: p.ForEveryone}, frame.Ref, nil
	default:
		return nil, frame.Ref, fmt.Errorf("%q: %w", frame.Event, errors.ErrUnknownEvent)
	}
}

func (c *Codec) bind(frame Frame, out any) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%s without data: %w", frame.Event, errors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(frame.Data, out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

// Encode wraps an outbound event in its frame, echoing the correlation ref
// of acks and errors.
func Encode(e event.Outbound) OutFrame {
	frame := OutFrame{Event: e.Name(), Data: e.Payload()}
	if correlated, ok := e.(event.Correlated); ok {
		frame.Ref = correlated.CorrelationRef()
	}
	return frame
}
