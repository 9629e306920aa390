package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Conversation is never hard-deleted, it only accumulates activity.
type Conversation struct {
	ID            ConversationID `json:"id"`
	Participants  []UserID       `json:"participants"`
	IsGroup       bool           `json:"isGroup"`
	LastMessageID *uuid.UUID     `json:"lastMessageId,omitempty"`
	LastActivity  time.Time      `json:"lastActivity"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func NewDirectConversation(a, b UserID, at time.Time) Conversation {
	return Conversation{
		ID:           NewConversationID(),
		Participants: NormalizeParticipants(a, b),
		LastActivity: at,
		CreatedAt:    at,
	}
}

func NewGroupConversation(participants []UserID, at time.Time) Conversation {
	return Conversation{
		ID:           NewConversationID(),
		Participants: NormalizeParticipants(participants...),
		IsGroup:      true,
		LastActivity: at,
		CreatedAt:    at,
	}
}

// NormalizeParticipants returns a sorted set so that the same users always
// produce the same participant list whatever the input order.
func NormalizeParticipants(users ...UserID) []UserID {
	res := lo.Uniq(lo.Filter(users, func(u UserID, _ int) bool { return u != "" }))
	slices.Sort(res)
	return res
}

func (c Conversation) HasParticipant(userID UserID) bool {
	return lo.Contains(c.Participants, userID)
}

// Touch records a new message as the most recent activity.
func (c *Conversation) Touch(messageID uuid.UUID, at time.Time) {
	c.LastMessageID = lo.ToPtr(messageID)
	if at.After(c.LastActivity) {
		c.LastActivity = at
	}
}
