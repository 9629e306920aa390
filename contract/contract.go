//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one live connection.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

type IConnectionRegistry interface {
	Connect(connID domain.ConnectionID, sink EventSink)
	Bind(connID domain.ConnectionID, userID domain.UserID) error
	Unbind(connID domain.ConnectionID)
	Disconnect(connID domain.ConnectionID) (domain.UserID, bool)
	UserOf(connID domain.ConnectionID) (domain.UserID, bool)
	SinkOf(connID domain.ConnectionID) (EventSink, bool)
	ConnectionsFor(userID domain.UserID) []domain.ConnectionID
	IsOnline(userID domain.UserID) bool
}

type IRoomTracker interface {
	Join(ctx context.Context, conversationID domain.ConversationID, connID domain.ConnectionID) error
	Leave(conversationID domain.ConversationID, connID domain.ConnectionID)
	MembersOf(conversationID domain.ConversationID) []domain.ConnectionID
	DropConnection(connID domain.ConnectionID) []domain.ConversationID
}

// IConversationReader is the slice of the message store the room tracker
// needs to authorize a join.
type IConversationReader interface {
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
}

type IMessageIndex interface {
	Index(message domain.Message) error
	Remove(messageID uuid.UUID) error
	Search(ctx context.Context, conversationID domain.ConversationID, terms string, limit int) ([]uuid.UUID, uint64, error)
}
