package event

import (
	"time"

	"chat-delivery/domain"
	"chat-delivery/errors"
)

// Outbound is anything pushed to a live connection.
// Name is the wire event name, Payload the data frame.
type Outbound interface {
	Name() string
	Payload() any
}

// Correlated outbound events answer one inbound event of the same connection.
type Correlated interface {
	CorrelationRef() string
}

type MessageReceived struct {
	Message domain.Message
}

type MessageDeleted struct {
	Message domain.Message
}

type UserTyping struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	IsTyping       bool                  `json:"isTyping"`
}

type MessagesRead struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	ReadBy         domain.UserID         `json:"readBy"`
	Timestamp      time.Time             `json:"timestamp"`
}

type NotificationReceived struct {
	Notification domain.Notification
}

// Ack confirms an inbound event with the entity it produced, if any.
type Ack struct {
	Ref  string
	Data any
}

type Failure struct {
	Ref     string
	Code    errors.Code
	Message string
}

func (MessageReceived) Name() string      { return "receive_message" }
func (MessageDeleted) Name() string       { return "message_deleted" }
func (UserTyping) Name() string           { return "user_typing" }
func (MessagesRead) Name() string         { return "messages_read" }
func (NotificationReceived) Name() string { return "receive_notification" }
func (Ack) Name() string                  { return "ack" }
func (Failure) Name() string              { return "error" }

func (e MessageReceived) Payload() any      { return e.Message }
func (e MessageDeleted) Payload() any       { return e.Message }
func (e UserTyping) Payload() any           { return e }
func (e MessagesRead) Payload() any         { return e }
func (e NotificationReceived) Payload() any { return e.Notification }
func (e Ack) Payload() any                  { return e.Data }
func (e Failure) Payload() any {
	return map[string]string{"code": string(e.Code), "message": e.Message}
}

func (e Ack) CorrelationRef() string     { return e.Ref }
func (e Failure) CorrelationRef() string { return e.Ref }

// NewFailure turns an error of the taxonomy into the frame sent to the actor.
func NewFailure(ref string, err error) Failure {
	return Failure{Ref: ref, Code: errors.ToCode(err), Message: err.Error()}
}
