package services

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"chat-delivery/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNotificationService_Recipient_Only(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockINotificationRepository(ctrl)
	notifier := mocks.NewMockINotifier(ctrl)
	svc := NewNotificationService(logs.GetLoggerFromLevel(slog.LevelDebug), repository, notifier)
	notification := domain.Notification{
		ID:          uuid.New(),
		RecipientID: "bob",
		SenderID:    "alice",
		Type:        domain.NotificationFollow,
		Message:     "Alice started following you",
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("should hide other users notifications", func(t *testing.T) {
		req := require.New(t)
		repository.EXPECT().Get(notification.ID).Return(notification, nil).Times(2)
		repository.EXPECT().MarkAsRead(gomock.Any()).Times(0)
		repository.EXPECT().Delete(gomock.Any()).Times(0)

		_, err := svc.MarkAsRead("mallory", notification.ID)
		req.ErrorIs(err, errors.ErrNotFound)
		err = svc.Delete("mallory", notification.ID)
		req.ErrorIs(err, errors.ErrNotFound)
	})

	t.Run("should mark the recipient notification read", func(t *testing.T) {
		req := require.New(t)
		read := notification
		read.IsRead = true
		repository.EXPECT().Get(notification.ID).Return(notification, nil)
		repository.EXPECT().MarkAsRead(notification.ID).Return(read, nil)

		got, err := svc.MarkAsRead("bob", notification.ID)

		req.NoError(err)
		req.True(got.IsRead)
	})

	t.Run("should report a missing notification", func(t *testing.T) {
		req := require.New(t)
		missing := uuid.New()
		repository.EXPECT().Get(missing).Return(domain.Notification{}, errors.ErrNotificationNotFound)

		err := svc.Delete("bob", missing)

		req.ErrorIs(err, errors.ErrNotFound)
	})
}

func TestNotificationService_List_With_Unread_Count(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockINotificationRepository(ctrl)
	svc := NewNotificationService(logs.GetLoggerFromLevel(slog.LevelDebug), repository, mocks.NewMockINotifier(ctrl))
	page := domain.NewPage(1, 0, domain.DefaultNotificationLimit)
	pagination := domain.NewPagination(page, 3)

	repository.EXPECT().List(domain.UserID("bob"), false, page).Return([]domain.Notification{{}, {}, {}}, pagination, nil)
	repository.EXPECT().UnreadCount(domain.UserID("bob")).Return(2, nil)

	got, err := svc.List("bob", false, page)

	req.NoError(err)
	req.Len(got.Notifications, 3)
	req.Equal(2, got.UnreadCount)
	req.Equal(pagination, got.Pagination)
}

func TestNotificationService_Trigger_Validates(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockINotifier(ctrl)
	svc := NewNotificationService(logs.GetLoggerFromLevel(slog.LevelDebug), mocks.NewMockINotificationRepository(ctrl), notifier)

	tests := []struct {
		name        string
		interaction domain.Interaction
	}{
		{"missing actor", domain.Interaction{Kind: domain.InteractionFollow, ActorName: "Alice", RecipientID: "bob"}},
		{"unknown kind", domain.Interaction{Kind: "poke", ActorID: "alice", ActorName: "Alice", RecipientID: "bob"}},
		{"missing name", domain.Interaction{Kind: domain.InteractionFollow, ActorID: "alice", RecipientID: "bob"}},
		{"separator in post id", domain.Interaction{Kind: domain.InteractionLike, ActorID: "alice", ActorName: "Alice", RecipientID: "bob",
			PostID: lo.ToPtr("post:1")}},
		{"separator in comment id", domain.Interaction{Kind: domain.InteractionReply, ActorID: "alice", ActorName: "Alice", RecipientID: "bob",
			CommentID: lo.ToPtr("comment:1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			notifier.EXPECT().Trigger(gomock.Any(), gomock.Any()).Times(0)

			_, _, err := svc.Trigger(context.Background(), tt.interaction)

			req.ErrorIs(err, errors.ErrInvalidPayload)
		})
	}

	t.Run("should forward a valid interaction", func(t *testing.T) {
		req := require.New(t)
		interaction := domain.Interaction{
			Kind: domain.InteractionLike, ActorID: "alice", ActorName: "Alice", RecipientID: "bob",
			PostID: lo.ToPtr("post-1"),
		}
		notifier.EXPECT().Trigger(gomock.Any(), interaction).Return(domain.Notification{RecipientID: "bob"}, true, nil)

		_, created, err := svc.Trigger(context.Background(), interaction)

		req.NoError(err)
		req.True(created)
	})
}

func TestNotificationService_Cascade(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockINotificationRepository(ctrl)
	svc := NewNotificationService(logs.GetLoggerFromLevel(slog.LevelDebug), repository, mocks.NewMockINotifier(ctrl))

	repository.EXPECT().DeleteByPost("post-1").Return(3, nil)
	repository.EXPECT().DeleteByComment("comment-1").Return(1, nil)

	deleted, err := svc.DeleteByPost("post-1")
	req.NoError(err)
	req.Equal(3, deleted)
	deleted, err = svc.DeleteByComment("comment-1")
	req.NoError(err)
	req.Equal(1, deleted)
}

func TestNotificationService_Cascade_Rejects_Malformed_Ids(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	// No call is expected on the repository
	repository := mocks.NewMockINotificationRepository(ctrl)
	svc := NewNotificationService(logs.GetLoggerFromLevel(slog.LevelDebug), repository, mocks.NewMockINotifier(ctrl))

	// A post "a" must not cascade to the notifications of a post "a:b"
	_, err := svc.DeleteByPost("a:b")
	req.ErrorIs(err, errors.ErrInvalidPayload)
	_, err = svc.DeleteByComment("")
	req.ErrorIs(err, errors.ErrInvalidPayload)
}
