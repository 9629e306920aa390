package repositories

import (
	"chat-delivery/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key layout. Timestamps are zero padded on 19 digits so that the
// lexicographical order of Badger keys is the chronological one.
//
//	conv:{conversation}                       -> DiskConversation
//	pair:{userA}:{userB}                      -> conversation id (direct only, users sorted)
//	uconv:{user}:{conversation}               -> empty, membership index
//	msg:{conversation}:{unixnano}:{message}   -> DiskMessage
//	msgid:{message}                           -> msg key
//	notif:{recipient}:{unixnano}:{notif}      -> DiskNotification
//	notifid:{notif}                           -> notif key
//	notifpost:{post}:{notif}                  -> notif key
//	notifcomment:{comment}:{notif}            -> notif key
const (
	conversationPrefix     = "conv:"
	pairPrefix             = "pair:"
	userConversationPrefix = "uconv:"
	messagePrefix          = "msg:"
	messageIDPrefix        = "msgid:"
	notificationPrefix     = "notif:"
	notificationIDPrefix   = "notifid:"
	postRefPrefix          = "notifpost:"
	commentRefPrefix       = "notifcomment:"

	// Highest possible padded timestamp, used to seek backward from the newest entry.
	maxPaddedTimestamp = "9999999999999999999"
)

func conversationKey(id domain.ConversationID) []byte {
	return []byte(conversationPrefix + string(id))
}

func pairKey(a, b domain.UserID) []byte {
	users := domain.NormalizeParticipants(a, b)
	return []byte(fmt.Sprintf("%s%s:%s", pairPrefix, users[0], users[1]))
}

func userConversationsPrefix(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%s:", userConversationPrefix, userID))
}

func userConversationKey(userID domain.UserID, id domain.ConversationID) []byte {
	return append(userConversationsPrefix(userID), id...)
}

func messagesPrefix(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%s:", messagePrefix, id))
}

func messageKey(id domain.ConversationID, at time.Time, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, id, at.UnixNano(), messageID))
}

func messageIDKey(messageID uuid.UUID) []byte {
	return []byte(messageIDPrefix + messageID.String())
}

func notificationsPrefix(recipient domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%s:", notificationPrefix, recipient))
}

func notificationKey(recipient domain.UserID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", notificationPrefix, recipient, at.UnixNano(), id))
}

func notificationIDKey(id uuid.UUID) []byte {
	return []byte(notificationIDPrefix + id.String())
}

func postRefsPrefix(postID string) []byte {
	return []byte(postRefPrefix + postID + ":")
}

func postRefKey(postID string, id uuid.UUID) []byte {
	return append(postRefsPrefix(postID), id.String()...)
}

func commentRefsPrefix(commentID string) []byte {
	return []byte(commentRefPrefix + commentID + ":")
}

func commentRefKey(commentID string, id uuid.UUID) []byte {
	return append(commentRefsPrefix(commentID), id.String()...)
}

func seekLast(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), maxPaddedTimestamp...)
}
