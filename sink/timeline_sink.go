package sink

import (
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"context"
	"sync"

	"github.com/samber/lo"
)

// Timeline holds the local view of one participant: every event it was pushed,
// in arrival order. It is what a continuously connected client would render.
type Timeline struct {
	mu     sync.Mutex
	Owner  domain.UserID
	events []event.Outbound
}

func NewTimeline(owner domain.UserID) *Timeline {
	return &Timeline{Owner: owner}
}

func (t *Timeline) Consume(_ context.Context, e event.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

func (t *Timeline) Events() []event.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]event.Outbound, len(t.events))
	copy(res, t.events)
	return res
}

// Messages replays the message events, a redaction replacing the message it targets.
func (t *Timeline) Messages() []domain.Message {
	var messages []domain.Message
	for _, e := range t.Events() {
		switch evt := e.(type) {
		case event.MessageReceived:
			messages = append(messages, evt.Message)
		case event.MessageDeleted:
			for i := range messages {
				if messages[i].ID == evt.Message.ID {
					messages[i] = evt.Message
				}
			}
		}
	}
	return messages
}

// Typing returns the typing events received, in order.
func (t *Timeline) Typing() []event.UserTyping {
	return lo.FilterMap(t.Events(), func(e event.Outbound, _ int) (event.UserTyping, bool) {
		evt, ok := e.(event.UserTyping)
		return evt, ok
	})
}
