package domain

import (
	"fmt"
	"time"

	"chat-delivery/errors"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationShare   NotificationType = "share"
)

// Notification read flag only moves from false to true.
type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID UserID           `json:"recipient"`
	SenderID    UserID           `json:"sender"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	PostID      *string          `json:"relatedPost,omitempty"`
	CommentID   *string          `json:"relatedComment,omitempty"`
	IsRead      bool             `json:"isRead"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NotificationPage is one page of a recipient's notifications along with
// their overall unread count.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Pagination    Pagination     `json:"pagination"`
}

type InteractionKind string

const (
	InteractionLike    InteractionKind = "like"
	InteractionComment InteractionKind = "comment"
	InteractionReply   InteractionKind = "reply"
	InteractionFollow  InteractionKind = "follow"
	InteractionShare   InteractionKind = "share"
)

// Interaction is what the CRUD layer reports when a user acts on someone else's content.
type Interaction struct {
	Kind        InteractionKind `json:"kind" validate:"required,oneof=like comment reply follow share"`
	ActorID     UserID          `json:"actorId" validate:"required"`
	ActorName   string          `json:"actorName" validate:"required,max=100"`
	RecipientID UserID          `json:"recipientId" validate:"required"`
	PostID      *string         `json:"postId,omitempty" validate:"omitempty,excludesrune=:"`
	CommentID   *string         `json:"commentId,omitempty" validate:"omitempty,excludesrune=:"`
}

// ToNotification renders the human-readable message and checks the references
// each kind of interaction must carry.
func (i Interaction) ToNotification(at time.Time) (Notification, error) {
	n := Notification{
		ID:          uuid.New(),
		RecipientID: i.RecipientID,
		SenderID:    i.ActorID,
		CreatedAt:   at,
	}
	switch i.Kind {
	case InteractionLike:
		if i.PostID == nil {
			return Notification{}, fmt.Errorf("like without post: %w", errors.ErrInvalidPayload)
		}
		n.Type, n.PostID = NotificationLike, i.PostID
		n.Message = fmt.Sprintf("%s liked your post", i.ActorName)
	case InteractionComment:
		if i.PostID == nil || i.CommentID == nil {
			return Notification{}, fmt.Errorf("comment without post or comment: %w", errors.ErrInvalidPayload)
		}
		n.Type, n.PostID, n.CommentID = NotificationComment, i.PostID, i.CommentID
		n.Message = fmt.Sprintf("%s commented on your post", i.ActorName)
	case InteractionReply:
		if i.CommentID == nil {
			return Notification{}, fmt.Errorf("reply without comment: %w", errors.ErrInvalidPayload)
		}
		n.Type, n.PostID, n.CommentID = NotificationComment, i.PostID, i.CommentID
		n.Message = fmt.Sprintf("%s replied to your comment", i.ActorName)
	case InteractionFollow:
		n.Type = NotificationFollow
		n.Message = fmt.Sprintf("%s started following you", i.ActorName)
	case InteractionShare:
		if i.PostID == nil {
			return Notification{}, fmt.Errorf("share without post: %w", errors.ErrInvalidPayload)
		}
		n.Type, n.PostID = NotificationShare, i.PostID
		n.Message = fmt.Sprintf("%s shared your post", i.ActorName)
	default:
		return Notification{}, fmt.Errorf("interaction %q: %w", i.Kind, errors.ErrInvalidPayload)
	}
	if !n.ValidReferences() {
		return Notification{}, fmt.Errorf("malformed post or comment id: %w", errors.ErrInvalidPayload)
	}
	return n, nil
}

// ValidReferences reports whether the post and comment ids, when set, can be
// stored as reference keys.
func (n Notification) ValidReferences() bool {
	return (n.PostID == nil || ValidReference(*n.PostID)) &&
		(n.CommentID == nil || ValidReference(*n.CommentID))
}
