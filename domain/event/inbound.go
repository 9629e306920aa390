package event

import (
	"chat-delivery/domain"

	"github.com/google/uuid"
)

type InboundKind string

const (
	AnnounceKind          InboundKind = "announce"
	JoinConversationKind  InboundKind = "join_conversation"
	LeaveConversationKind InboundKind = "leave_conversation"
	SendMessageKind       InboundKind = "send_message"
	TypingKind            InboundKind = "typing"
	MarkReadKind          InboundKind = "mark_messages_read"
	DeleteMessageKind     InboundKind = "delete_message"
)

// Inbound is one client event, consumed by the router in arrival order
// from the channel of the connection that produced it.
type Inbound interface {
	Kind() InboundKind
	CorrelationRef() string
}

// Meta carries the client correlation ref echoed back in ack and error frames.
type Meta struct {
	Ref string
}

func (m Meta) CorrelationRef() string { return m.Ref }

// Announce binds an identity already verified by the authentication layer.
type Announce struct {
	Meta
	UserID domain.UserID
}

type JoinConversation struct {
	Meta
	ConversationID domain.ConversationID
}

type LeaveConversation struct {
	Meta
	ConversationID domain.ConversationID
}

type SendMessage struct {
	Meta
	ConversationID domain.ConversationID
	Text           string
	File           *domain.FileDescriptor
}

type Typing struct {
	Meta
	ConversationID domain.ConversationID
	IsTyping       bool
}

type MarkRead struct {
	Meta
	ConversationID domain.ConversationID
}

type DeleteMessage struct {
	Meta
	MessageID   uuid.UUID
	ForEveryone bool
}

func (Announce) Kind() InboundKind          { return AnnounceKind }
func (JoinConversation) Kind() InboundKind  { return JoinConversationKind }
func (LeaveConversation) Kind() InboundKind { return LeaveConversationKind }
func (SendMessage) Kind() InboundKind       { return SendMessageKind }
func (Typing) Kind() InboundKind            { return TypingKind }
func (MarkRead) Kind() InboundKind          { return MarkReadKind }
func (DeleteMessage) Kind() InboundKind     { return DeleteMessageKind }
