package runtime

import (
	"chat-delivery/domain"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type expiredRecorder struct {
	mu      sync.Mutex
	expired []typingKey
}

func (r *expiredRecorder) record(conversationID domain.ConversationID, userID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, typingKey{conversationID: conversationID, userID: userID})
}

func (r *expiredRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expired)
}

func TestTypingState_Expires_After_Window(t *testing.T) {
	req := require.New(t)
	recorder := &expiredRecorder{}
	typing := NewTypingState(50*time.Millisecond, recorder.record)
	conversationID := domain.NewConversationID()

	// Given alice starts typing
	typing.Start(conversationID, "alice")
	req.True(typing.IsTyping(conversationID, "alice"))

	// Then the assertion expires after the window
	req.Eventually(func() bool { return recorder.count() == 1 }, time.Second, 10*time.Millisecond)
	req.False(typing.IsTyping(conversationID, "alice"))
	req.Equal(typingKey{conversationID: conversationID, userID: "alice"}, recorder.expired[0])
}

func TestTypingState_Refresh_Rearms_Timer(t *testing.T) {
	req := require.New(t)
	recorder := &expiredRecorder{}
	typing := NewTypingState(100*time.Millisecond, recorder.record)
	conversationID := domain.NewConversationID()

	// Given alice keeps typing past the first window
	typing.Start(conversationID, "alice")
	time.Sleep(60 * time.Millisecond)
	typing.Start(conversationID, "alice")
	time.Sleep(60 * time.Millisecond)

	// Then the first timer did not expire the refreshed assertion
	req.True(typing.IsTyping(conversationID, "alice"))
	req.Zero(recorder.count())

	// And a single expiry follows the refresh
	req.Eventually(func() bool { return recorder.count() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	req.Equal(1, recorder.count())
}

func TestTypingState_Stop_Cancels_Expiry(t *testing.T) {
	req := require.New(t)
	recorder := &expiredRecorder{}
	typing := NewTypingState(50*time.Millisecond, recorder.record)
	conversationID := domain.NewConversationID()

	typing.Start(conversationID, "alice")
	req.True(typing.Stop(conversationID, "alice"))
	req.False(typing.Stop(conversationID, "alice"))

	time.Sleep(100 * time.Millisecond)
	req.Zero(recorder.count())
}

func TestTypingState_ClearUser(t *testing.T) {
	req := require.New(t)
	recorder := &expiredRecorder{}
	typing := NewTypingState(time.Minute, recorder.record)
	first := domain.NewConversationID()
	second := domain.NewConversationID()

	// Given alice typing in two conversations and bob in one
	typing.Start(first, "alice")
	typing.Start(second, "alice")
	typing.Start(first, "bob")

	// When alice is cleared
	cleared := typing.ClearUser("alice")

	// Then only bob is still typing
	req.ElementsMatch([]domain.ConversationID{first, second}, cleared)
	req.Equal([]domain.UserID{"bob"}, typing.TypingIn(first))
	req.Empty(typing.TypingIn(second))
	req.Empty(typing.ClearUser("alice"))
}
