package runtime

import (
	"chat-delivery/domain"
	"sync"
)

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes work per conversation. Entries are reference counted
// and removed once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[domain.ConversationID]*refMutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[domain.ConversationID]*refMutex)}
}

// Lock blocks until the conversation is free and returns the unlock function.
func (k *KeyedMutex) Lock(conversationID domain.ConversationID) func() {
	k.mu.Lock()
	l, ok := k.locks[conversationID]
	if !ok {
		l = &refMutex{}
		k.locks[conversationID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, conversationID)
		}
		k.mu.Unlock()
	}
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
