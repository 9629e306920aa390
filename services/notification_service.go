//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"chat-delivery/repositories"
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type INotificationService interface {
	List(userID domain.UserID, unreadOnly bool, page domain.Page) (domain.NotificationPage, error)
	UnreadCount(userID domain.UserID) (int, error)
	MarkAsRead(userID domain.UserID, id uuid.UUID) (domain.Notification, error)
	MarkAllAsRead(userID domain.UserID) (int, error)
	Delete(userID domain.UserID, id uuid.UUID) error
	DeleteAll(userID domain.UserID) (int, error)
	Trigger(ctx context.Context, interaction domain.Interaction) (domain.Notification, bool, error)
	DeleteByPost(postID string) (int, error)
	DeleteByComment(commentID string) (int, error)
}

// INotifier records then pushes a notification.
type INotifier interface {
	Trigger(ctx context.Context, interaction domain.Interaction) (domain.Notification, bool, error)
}

type NotificationService struct {
	log           *slog.Logger
	notifications repositories.INotificationRepository
	notifier      INotifier
	validate      *validator.Validate
}

func NewNotificationService(
	log *slog.Logger,
	notifications repositories.INotificationRepository,
	notifier INotifier,
) *NotificationService {
	return &NotificationService{
		log:           log,
		notifications: notifications,
		notifier:      notifier,
		validate:      validator.New(),
	}
}

func (s *NotificationService) List(userID domain.UserID, unreadOnly bool, page domain.Page) (domain.NotificationPage, error) {
	notifications, pagination, err := s.notifications.List(userID, unreadOnly, page)
	if err != nil {
		return domain.NotificationPage{}, err
	}
	unread, err := s.notifications.UnreadCount(userID)
	if err != nil {
		return domain.NotificationPage{}, err
	}
	return domain.NotificationPage{Notifications: notifications, UnreadCount: unread, Pagination: pagination}, nil
}

func (s *NotificationService) UnreadCount(userID domain.UserID) (int, error) {
	return s.notifications.UnreadCount(userID)
}

func (s *NotificationService) MarkAsRead(userID domain.UserID, id uuid.UUID) (domain.Notification, error) {
	if err := s.checkRecipient(userID, id); err != nil {
		return domain.Notification{}, err
	}
	return s.notifications.MarkAsRead(id)
}

func (s *NotificationService) MarkAllAsRead(userID domain.UserID) (int, error) {
	return s.notifications.MarkAllAsRead(userID)
}

func (s *NotificationService) Delete(userID domain.UserID, id uuid.UUID) error {
	if err := s.checkRecipient(userID, id); err != nil {
		return err
	}
	return s.notifications.Delete(id)
}

func (s *NotificationService) DeleteAll(userID domain.UserID) (int, error) {
	return s.notifications.DeleteAll(userID)
}

func (s *NotificationService) Trigger(ctx context.Context, interaction domain.Interaction) (domain.Notification, bool, error) {
	if err := s.validate.Struct(interaction); err != nil {
		return domain.Notification{}, false, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return s.notifier.Trigger(ctx, interaction)
}

func (s *NotificationService) DeleteByPost(postID string) (int, error) {
	if !domain.ValidReference(postID) {
		return 0, fmt.Errorf("post id %q: %w", postID, errors.ErrInvalidPayload)
	}
	deleted, err := s.notifications.DeleteByPost(postID)
	if err == nil {
		s.log.Debug("Notifications cascaded", "post_id", postID, "deleted", deleted)
	}
	return deleted, err
}

func (s *NotificationService) DeleteByComment(commentID string) (int, error) {
	if !domain.ValidReference(commentID) {
		return 0, fmt.Errorf("comment id %q: %w", commentID, errors.ErrInvalidPayload)
	}
	deleted, err := s.notifications.DeleteByComment(commentID)
	if err == nil {
		s.log.Debug("Notifications cascaded", "comment_id", commentID, "deleted", deleted)
	}
	return deleted, err
}

// checkRecipient hides the notifications of other users behind a not found.
func (s *NotificationService) checkRecipient(userID domain.UserID, id uuid.UUID) error {
	notification, err := s.notifications.Get(id)
	if err != nil {
		return err
	}
	if notification.RecipientID != userID {
		return errors.ErrNotificationNotFound
	}
	return nil
}
