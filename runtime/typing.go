package runtime

import (
	"chat-delivery/domain"
	"sync"
	"time"
)

type typingKey struct {
	conversationID domain.ConversationID
	userID         domain.UserID
}

type typingEntry struct {
	timer      *time.Timer
	generation uint64
}

// TypingState holds who is typing where. Nothing here is persisted.
// onExpire is called outside the lock, once per assertion that timed out.
type TypingState struct {
	mu         sync.Mutex
	window     time.Duration
	entries    map[typingKey]*typingEntry
	generation uint64
	onExpire   func(conversationID domain.ConversationID, userID domain.UserID)
}

func NewTypingState(window time.Duration, onExpire func(domain.ConversationID, domain.UserID)) *TypingState {
	return &TypingState{
		window:   window,
		entries:  make(map[typingKey]*typingEntry),
		onExpire: onExpire,
	}
}

// Start records the assertion or refreshes it, re-arming its timer.
func (t *TypingState) Start(conversationID domain.ConversationID, userID domain.UserID) {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		entry.timer.Stop()
	}
	t.generation++
	generation := t.generation
	t.entries[key] = &typingEntry{
		generation: generation,
		timer:      time.AfterFunc(t.window, func() { t.expire(key, generation) }),
	}
}

// Stop clears the assertion and reports whether there was one.
func (t *TypingState) Stop(conversationID domain.ConversationID, userID domain.UserID) bool {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// ClearUser drops every assertion of userID and returns the conversations
// where it was typing.
func (t *TypingState) ClearUser(userID domain.UserID) []domain.ConversationID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var conversations []domain.ConversationID
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		delete(t.entries, key)
		conversations = append(conversations, key.conversationID)
	}
	return conversations
}

func (t *TypingState) IsTyping(conversationID domain.ConversationID, userID domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[typingKey{conversationID: conversationID, userID: userID}]
	return ok
}

// TypingIn lists the users currently typing in the conversation.
func (t *TypingState) TypingIn(conversationID domain.ConversationID) []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var users []domain.UserID
	for key := range t.entries {
		if key.conversationID == conversationID {
			users = append(users, key.userID)
		}
	}
	return users
}

// expire fires from the timer goroutine. A stale generation means the entry
// was refreshed or cleared after this timer was armed.
func (t *TypingState) expire(key typingKey, generation uint64) {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok || entry.generation != generation {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(key.conversationID, key.userID)
	}
}
