//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type INotificationRepository interface {
	Store(notification domain.Notification) error
	Get(id uuid.UUID) (domain.Notification, error)
	List(recipient domain.UserID, unreadOnly bool, page domain.Page) ([]domain.Notification, domain.Pagination, error)
	UnreadCount(recipient domain.UserID) (int, error)
	MarkAsRead(id uuid.UUID) (domain.Notification, error)
	MarkAllAsRead(recipient domain.UserID) (int, error)
	Delete(id uuid.UUID) error
	DeleteAll(recipient domain.UserID) (int, error)
	DeleteByPost(postID string) (int, error)
	DeleteByComment(commentID string) (int, error)
	DeleteReadBefore(cutoff time.Time) (int, error)
}

type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log}
}

type DiskNotification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID string    `json:"r"`
	SenderID    string    `json:"s"`
	Type        string    `json:"t"`
	Message     string    `json:"m"`
	PostID      *string   `json:"p,omitempty"`
	CommentID   *string   `json:"c,omitempty"`
	IsRead      bool      `json:"read,omitempty"`
	At          int64     `json:"at"`
}

// Store writes the notification with its id index and the post/comment
// references used by the cascade deletes, all in one transaction.
func (n *NotificationRepository) Store(notification domain.Notification) error {
	return update(n.db, n.log, func(txn *badger.Txn) error {
		key := notificationKey(notification.RecipientID, notification.CreatedAt, notification.ID)
		if err := setJSON(txn, key, fromNotification(notification)); err != nil {
			return err
		}
		if err := txn.Set(notificationIDKey(notification.ID), key); err != nil {
			return err
		}
		if notification.PostID != nil {
			if err := txn.Set(postRefKey(*notification.PostID, notification.ID), key); err != nil {
				return err
			}
		}
		if notification.CommentID != nil {
			if err := txn.Set(commentRefKey(*notification.CommentID, notification.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (n *NotificationRepository) Get(id uuid.UUID) (domain.Notification, error) {
	var notification domain.Notification
	err := view(n.db, func(txn *badger.Txn) error {
		var err error
		notification, _, err = getNotification(txn, id)
		return err
	})
	return notification, err
}

// List returns the newest notifications first.
func (n *NotificationRepository) List(recipient domain.UserID, unreadOnly bool,
	page domain.Page) ([]domain.Notification, domain.Pagination, error) {
	notifications := []domain.Notification{}
	total := 0
	err := view(n.db, func(txn *badger.Txn) error {
		prefix := notificationsPrefix(recipient)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		start, end := page.Offset(), page.Offset()+page.Limit
		for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix); it.Next() {
			notification, err := decodeNotification(it.Item())
			if err != nil {
				return err
			}
			if unreadOnly && notification.IsRead {
				continue
			}
			if total >= start && total < end {
				notifications = append(notifications, notification)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return notifications, domain.NewPagination(page, total), nil
}

func (n *NotificationRepository) UnreadCount(recipient domain.UserID) (int, error) {
	count := 0
	err := view(n.db, func(txn *badger.Txn) error {
		return scanNotifications(txn, notificationsPrefix(recipient), func(_ []byte, notification domain.Notification) error {
			if !notification.IsRead {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (n *NotificationRepository) MarkAsRead(id uuid.UUID) (domain.Notification, error) {
	var notification domain.Notification
	err := update(n.db, n.log, func(txn *badger.Txn) error {
		current, key, err := getNotification(txn, id)
		if err != nil {
			return err
		}
		notification = current
		if notification.IsRead {
			return nil
		}
		notification.IsRead = true
		return setJSON(txn, key, fromNotification(notification))
	})
	return notification, err
}

// MarkAllAsRead commits by chunks so that a long backlog never exceeds a
// single transaction.
func (n *NotificationRepository) MarkAllAsRead(recipient domain.UserID) (int, error) {
	unread, err := n.keysMatching(notificationsPrefix(recipient), func(notification domain.Notification) bool {
		return !notification.IsRead
	})
	if err != nil {
		return 0, err
	}
	return updateEach(n.db, n.log, unread, func(txn *badger.Txn, key []byte) (bool, error) {
		notification, found, err := getNotificationAt(txn, key)
		if err != nil || !found || notification.IsRead {
			return false, err
		}
		notification.IsRead = true
		return true, setJSON(txn, key, fromNotification(notification))
	})
}

func (n *NotificationRepository) Delete(id uuid.UUID) error {
	return update(n.db, n.log, func(txn *badger.Txn) error {
		notification, key, err := getNotification(txn, id)
		if err != nil {
			return err
		}
		return deleteNotification(txn, key, notification)
	})
}

func (n *NotificationRepository) DeleteAll(recipient domain.UserID) (int, error) {
	return n.deleteMatching(notificationsPrefix(recipient), func(domain.Notification) bool { return true })
}

// DeleteByPost cascades the deletion of a post to every notification referencing it.
func (n *NotificationRepository) DeleteByPost(postID string) (int, error) {
	return n.deleteReferenced(postRefsPrefix(postID))
}

// DeleteByComment cascades the deletion of a comment to every notification referencing it.
func (n *NotificationRepository) DeleteByComment(commentID string) (int, error) {
	return n.deleteReferenced(commentRefsPrefix(commentID))
}

// DeleteReadBefore purges read notifications created before cutoff.
// Unread notifications are kept whatever their age.
func (n *NotificationRepository) DeleteReadBefore(cutoff time.Time) (int, error) {
	return n.deleteMatching([]byte(notificationPrefix), func(notification domain.Notification) bool {
		return notification.IsRead && notification.CreatedAt.Before(cutoff)
	})
}

func (n *NotificationRepository) deleteMatching(prefix []byte, match func(domain.Notification) bool) (int, error) {
	keys, err := n.keysMatching(prefix, match)
	if err != nil {
		return 0, err
	}
	return updateEach(n.db, n.log, keys, func(txn *badger.Txn, key []byte) (bool, error) {
		// The notification may have changed since the scan, match it again.
		notification, found, err := getNotificationAt(txn, key)
		if err != nil || !found || !match(notification) {
			return false, err
		}
		return true, deleteNotification(txn, key, notification)
	})
}

func (n *NotificationRepository) deleteReferenced(refPrefix []byte) (int, error) {
	var refKeys [][]byte
	err := view(n.db, func(txn *badger.Txn) error {
		refKeys = keysWithPrefix(txn, refPrefix)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updateEach(n.db, n.log, refKeys, func(txn *badger.Txn, refKey []byte) (bool, error) {
		key, err := getPointer(txn, refKey, errors.ErrNotificationNotFound)
		if errors.Is(err, errors.ErrNotificationNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		notification, found, err := getNotificationAt(txn, key)
		if err != nil {
			return false, err
		}
		if !found {
			// Dangling reference, the notification went away on another path.
			return false, txn.Delete(refKey)
		}
		return true, deleteNotification(txn, key, notification)
	})
}

// keysMatching lists the keys of the notifications under prefix accepted by match.
func (n *NotificationRepository) keysMatching(prefix []byte, match func(domain.Notification) bool) ([][]byte, error) {
	var keys [][]byte
	err := view(n.db, func(txn *badger.Txn) error {
		return scanNotifications(txn, prefix, func(key []byte, notification domain.Notification) error {
			if match(notification) {
				keys = append(keys, key)
			}
			return nil
		})
	})
	return keys, err
}

func deleteNotification(txn *badger.Txn, key []byte, notification domain.Notification) error {
	keys := [][]byte{key, notificationIDKey(notification.ID)}
	if notification.PostID != nil {
		keys = append(keys, postRefKey(*notification.PostID, notification.ID))
	}
	if notification.CommentID != nil {
		keys = append(keys, commentRefKey(*notification.CommentID, notification.ID))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func scanNotifications(txn *badger.Txn, prefix []byte, fn func(key []byte, notification domain.Notification) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		notification, err := decodeNotification(it.Item())
		if err != nil {
			return err
		}
		if err = fn(it.Item().KeyCopy(nil), notification); err != nil {
			return err
		}
	}
	return nil
}

func getNotification(txn *badger.Txn, id uuid.UUID) (domain.Notification, []byte, error) {
	key, err := getPointer(txn, notificationIDKey(id), errors.ErrNotificationNotFound)
	if err != nil {
		return domain.Notification{}, nil, err
	}
	var disk DiskNotification
	if err = getJSON(txn, key, &disk, errors.ErrNotificationNotFound); err != nil {
		return domain.Notification{}, nil, err
	}
	return toNotification(disk), key, nil
}

func getNotificationAt(txn *badger.Txn, key []byte) (domain.Notification, bool, error) {
	var disk DiskNotification
	err := getJSON(txn, key, &disk, errors.ErrNotificationNotFound)
	if errors.Is(err, errors.ErrNotificationNotFound) {
		return domain.Notification{}, false, nil
	}
	if err != nil {
		return domain.Notification{}, false, err
	}
	return toNotification(disk), true, nil
}

func decodeNotification(item *badger.Item) (domain.Notification, error) {
	var disk DiskNotification
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	})
	return toNotification(disk), err
}

func fromNotification(notification domain.Notification) DiskNotification {
	return DiskNotification{
		ID:          notification.ID,
		RecipientID: string(notification.RecipientID),
		SenderID:    string(notification.SenderID),
		Type:        string(notification.Type),
		Message:     notification.Message,
		PostID:      notification.PostID,
		CommentID:   notification.CommentID,
		IsRead:      notification.IsRead,
		At:          notification.CreatedAt.UnixNano(),
	}
}

func toNotification(disk DiskNotification) domain.Notification {
	return domain.Notification{
		ID:          disk.ID,
		RecipientID: domain.UserID(disk.RecipientID),
		SenderID:    domain.UserID(disk.SenderID),
		Type:        domain.NotificationType(disk.Type),
		Message:     disk.Message,
		PostID:      disk.PostID,
		CommentID:   disk.CommentID,
		IsRead:      disk.IsRead,
		CreatedAt:   time.Unix(0, disk.At).UTC(),
	}
}
