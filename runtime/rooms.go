package runtime

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/errors"
	"context"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRoomTracker = (*RoomTracker)(nil)

// RoomTracker tracks which live connections subscribed to which conversation.
// Subscription is only a delivery hint: membership of a conversation is
// always checked against the stored participants.
type RoomTracker struct {
	mu            sync.RWMutex
	registry      contract.IConnectionRegistry
	conversations contract.IConversationReader
	members       map[domain.ConversationID]Set[domain.ConnectionID] // map conversation -> connections
	joined        map[domain.ConnectionID]Set[domain.ConversationID] // map connection -> conversations
}

func NewRoomTracker(registry contract.IConnectionRegistry, conversations contract.IConversationReader) *RoomTracker {
	return &RoomTracker{
		registry:      registry,
		conversations: conversations,
		members:       make(map[domain.ConversationID]Set[domain.ConnectionID]),
		joined:        make(map[domain.ConnectionID]Set[domain.ConversationID]),
	}
}

// Join subscribes the connection once its user is a participant.
// Joining twice is a no-op.
func (r *RoomTracker) Join(ctx context.Context, conversationID domain.ConversationID, connID domain.ConnectionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	userID, ok := r.registry.UserOf(connID)
	if !ok {
		return errors.ErrNotAnnounced
	}
	conversation, err := r.conversations.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(userID) {
		return errors.ErrNotParticipant
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[conversationID]; !ok {
		r.members[conversationID] = make(Set[domain.ConnectionID])
	}
	r.members[conversationID][connID] = struct{}{}
	if _, ok := r.joined[connID]; !ok {
		r.joined[connID] = make(Set[domain.ConversationID])
	}
	r.joined[connID][conversationID] = struct{}{}
	return nil
}

func (r *RoomTracker) Leave(conversationID domain.ConversationID, connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conversationID, connID)
}

func (r *RoomTracker) leaveLocked(conversationID domain.ConversationID, connID domain.ConnectionID) {
	if members, ok := r.members[conversationID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.members, conversationID)
		}
	}
	if conversations, ok := r.joined[connID]; ok {
		delete(conversations, conversationID)
		if len(conversations) == 0 {
			delete(r.joined, connID)
		}
	}
}

func (r *RoomTracker) MembersOf(conversationID domain.ConversationID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.members[conversationID])
}

// DropConnection removes the connection from every room and returns the
// conversations it was subscribed to.
func (r *RoomTracker) DropConnection(connID domain.ConnectionID) []domain.ConversationID {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversations := lo.Keys(r.joined[connID])
	for _, conversationID := range conversations {
		r.leaveLocked(conversationID, connID)
	}
	return conversations
}

func (r *RoomTracker) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
