package httpapi

import (
	"bytes"
	"chat-delivery/auth"
	"chat-delivery/domain"
	"chat-delivery/errors"
	"chat-delivery/mocks"
	"chat-delivery/observability"
	"chat-delivery/repositories"
	"chat-delivery/runtime"
	"chat-delivery/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const internalKey = "internal-secret"

type apiFixture struct {
	engine        *gin.Engine
	tokens        *auth.TokenService
	notifications *mocks.MockINotificationService
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	messages := repositories.NewMessageRepository(db, log)
	index := repositories.NewMessageIndex(writer, log)
	registry := runtime.NewRegistry()
	rooms := runtime.NewRoomTracker(registry, messages)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := runtime.NewRouter(log, registry, rooms, messages, index, nil, metrics, runtime.RouterConfig{
		PushTimeout:  100 * time.Millisecond,
		TypingWindow: time.Minute,
	})
	notifications := mocks.NewMockINotificationService(gomock.NewController(t))
	tokens := auth.NewTokenService("secret")

	engine := NewEngine(log, Dependencies{
		Tokens:        tokens,
		InternalKey:   internalKey,
		Conversations: services.NewConversationService(log, messages, index, router),
		Notifications: notifications,
		Live:          registry,
		Metrics:       metrics.Handler(),
		StartedAt:     time.Now(),
	})
	return apiFixture{engine: engine, tokens: tokens, notifications: notifications}
}

// do sends an authenticated request as userID. An empty userID sends none.
func (f apiFixture) do(t *testing.T, userID domain.UserID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := f.tokens.GenerateToken(userID, nil, time.Hour)
		require.NoError(t, err)
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	return out
}

func TestAPI_Requires_Token(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	recorder := f.do(t, "", http.MethodGet, "/api/conversations", nil)

	req.Equal(http.StatusUnauthorized, recorder.Code)
	req.Equal(errors.CodeUnauthenticated, decode[ErrorBody](t, recorder).Code)
}

func TestAPI_Conversation_Flow(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	// Given alice opens a conversation with bob twice
	recorder := f.do(t, "alice", http.MethodPost, "/api/conversations/direct", gin.H{"participantId": "bob"})
	req.Equal(http.StatusCreated, recorder.Code)
	conversation := decode[domain.Conversation](t, recorder)
	recorder = f.do(t, "bob", http.MethodPost, "/api/conversations/direct", gin.H{"participantId": "alice"})
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal(conversation.ID, decode[domain.Conversation](t, recorder).ID)

	// When both exchange messages over HTTP
	base := "/api/conversations/" + string(conversation.ID)
	for _, m := range []struct {
		from domain.UserID
		text string
	}{{"alice", "hello"}, {"bob", "world"}, {"alice", "pizza tonight?"}} {
		recorder = f.do(t, m.from, http.MethodPost, base+"/messages", gin.H{"text": m.text})
		req.Equal(http.StatusCreated, recorder.Code)
	}

	// Then the page comes back oldest first with its pagination
	recorder = f.do(t, "bob", http.MethodGet, base+"/messages?limit=2&page=1", nil)
	req.Equal(http.StatusOK, recorder.Code)
	page := decode[struct {
		Messages   []domain.Message  `json:"messages"`
		Pagination domain.Pagination `json:"pagination"`
	}](t, recorder)
	req.Equal([]string{"world", "pizza tonight?"}, lo.Map(page.Messages, func(m domain.Message, _ int) string { return m.Text }))
	req.Equal(domain.Pagination{CurrentPage: 1, TotalPages: 2, Total: 3, HasNext: true}, page.Pagination)

	// And bob has two unread messages until he marks them read
	recorder = f.do(t, "bob", http.MethodGet, "/api/messages/unread-count", nil)
	req.Equal(2, decode[services.UnreadMessages](t, recorder).Total)
	recorder = f.do(t, "bob", http.MethodPut, base+"/read", nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal(2, decode[runtime.ReadResult](t, recorder).Marked)
	recorder = f.do(t, "bob", http.MethodGet, "/api/messages/unread-count", nil)
	req.Zero(decode[services.UnreadMessages](t, recorder).Total)

	// And search finds the pizza
	recorder = f.do(t, "bob", http.MethodGet, base+"/search?q=pizza", nil)
	req.Equal(http.StatusOK, recorder.Code)
	result := decode[services.SearchResult](t, recorder)
	req.Len(result.Messages, 1)
	req.Equal(domain.UserID("alice"), result.Messages[0].SenderID)

	// And the list shows the conversation
	recorder = f.do(t, "alice", http.MethodGet, "/api/conversations", nil)
	req.Equal(http.StatusOK, recorder.Code)
	list := decode[struct {
		Conversations []domain.Conversation `json:"conversations"`
	}](t, recorder)
	req.Len(list.Conversations, 1)
}

func TestAPI_Conversation_Errors(t *testing.T) {
	f := newAPIFixture(t)
	recorder := f.do(t, "alice", http.MethodPost, "/api/conversations/direct", gin.H{"participantId": "bob"})
	conversation := decode[domain.Conversation](t, recorder)
	base := "/api/conversations/" + string(conversation.ID)

	tests := []struct {
		name   string
		user   domain.UserID
		method string
		path   string
		body   any
		status int
		code   errors.Code
	}{
		{"self conversation", "alice", http.MethodPost, "/api/conversations/direct", gin.H{"participantId": "alice"}, http.StatusBadRequest, errors.CodeInvalidPayload},
		{"missing participant", "alice", http.MethodPost, "/api/conversations/direct", gin.H{}, http.StatusBadRequest, errors.CodeInvalidPayload},
		{"empty group", "alice", http.MethodPost, "/api/conversations/group", gin.H{"participants": []string{}}, http.StatusBadRequest, errors.CodeInvalidPayload},
		{"malformed id", "alice", http.MethodGet, "/api/conversations/nope", nil, http.StatusBadRequest, errors.CodeInvalidPayload},
		{"unknown conversation", "alice", http.MethodGet, "/api/conversations/" + uuid.NewString(), nil, http.StatusNotFound, errors.CodeNotFound},
		{"stranger reads", "mallory", http.MethodGet, base + "/messages", nil, http.StatusForbidden, errors.CodeForbidden},
		{"stranger sends", "mallory", http.MethodPost, base + "/messages", gin.H{"text": "hi"}, http.StatusForbidden, errors.CodeForbidden},
		{"empty message", "alice", http.MethodPost, base + "/messages", gin.H{"text": "   "}, http.StatusBadRequest, errors.CodeInvalidPayload},
		{"unknown message", "alice", http.MethodDelete, "/api/messages/" + uuid.NewString(), nil, http.StatusNotFound, errors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)

			recorder := f.do(t, tt.user, tt.method, tt.path, tt.body)

			req.Equal(tt.status, recorder.Code)
			req.Equal(tt.code, decode[ErrorBody](t, recorder).Code)
		})
	}
}

func TestAPI_Delete_Message(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	conversation := decode[domain.Conversation](t, f.do(t, "alice", http.MethodPost, "/api/conversations/direct", gin.H{"participantId": "bob"}))
	base := "/api/conversations/" + string(conversation.ID)
	message := decode[domain.Message](t, f.do(t, "alice", http.MethodPost, base+"/messages", gin.H{"text": "oops"}))

	// Bob cannot delete alice's message for everyone
	recorder := f.do(t, "bob", http.MethodDelete, "/api/messages/"+message.ID.String()+"?forEveryone=true", nil)
	req.Equal(http.StatusForbidden, recorder.Code)

	// Alice can, and the content is gone
	recorder = f.do(t, "alice", http.MethodDelete, "/api/messages/"+message.ID.String()+"?forEveryone=true", nil)
	req.Equal(http.StatusOK, recorder.Code)
	deleted := decode[domain.Message](t, recorder)
	req.True(deleted.DeletedForEveryone)
	req.Equal(domain.RedactedText, deleted.Text)
}

func TestAPI_Notifications(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	id := uuid.New()
	page := domain.NotificationPage{
		Notifications: []domain.Notification{{ID: id, RecipientID: "bob", SenderID: "alice", Type: domain.NotificationLike}},
		UnreadCount:   1,
		Pagination:    domain.Pagination{CurrentPage: 2, TotalPages: 2, Total: 6, HasPrev: true},
	}

	f.notifications.EXPECT().List(domain.UserID("bob"), true, domain.Page{Number: 2, Limit: 5}).Return(page, nil)
	f.notifications.EXPECT().UnreadCount(domain.UserID("bob")).Return(1, nil)
	f.notifications.EXPECT().MarkAsRead(domain.UserID("bob"), id).Return(domain.Notification{ID: id, IsRead: true}, nil)
	f.notifications.EXPECT().MarkAllAsRead(domain.UserID("bob")).Return(3, nil)
	f.notifications.EXPECT().Delete(domain.UserID("bob"), id).Return(errors.ErrNotificationNotFound)
	f.notifications.EXPECT().DeleteAll(domain.UserID("bob")).Return(4, nil)

	recorder := f.do(t, "bob", http.MethodGet, "/api/notifications?page=2&limit=5&unreadOnly=true", nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal(page, decode[domain.NotificationPage](t, recorder))

	recorder = f.do(t, "bob", http.MethodGet, "/api/notifications/unread-count", nil)
	req.JSONEq(`{"unreadCount":1}`, recorder.Body.String())

	recorder = f.do(t, "bob", http.MethodPut, "/api/notifications/"+id.String()+"/read", nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.True(decode[domain.Notification](t, recorder).IsRead)

	recorder = f.do(t, "bob", http.MethodPut, "/api/notifications/read-all", nil)
	req.JSONEq(`{"marked":3}`, recorder.Body.String())

	recorder = f.do(t, "bob", http.MethodDelete, "/api/notifications/"+id.String(), nil)
	req.Equal(http.StatusNotFound, recorder.Code)

	recorder = f.do(t, "bob", http.MethodDelete, "/api/notifications", nil)
	req.JSONEq(`{"deleted":4}`, recorder.Body.String())

	recorder = f.do(t, "bob", http.MethodPut, "/api/notifications/42/read", nil)
	req.Equal(http.StatusBadRequest, recorder.Code)
}

func TestAPI_Internal(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	postID := "post-1"
	like := domain.Interaction{Kind: domain.InteractionLike, ActorID: "alice", ActorName: "Alice", RecipientID: "bob", PostID: &postID}
	selfLike := like
	selfLike.RecipientID = "alice"

	f.notifications.EXPECT().Trigger(gomock.Any(), like).Return(domain.Notification{RecipientID: "bob"}, true, nil)
	f.notifications.EXPECT().Trigger(gomock.Any(), selfLike).Return(domain.Notification{}, false, nil)
	f.notifications.EXPECT().DeleteByPost(postID).Return(2, nil)
	f.notifications.EXPECT().DeleteByComment("comment-1").Return(0, nil)

	internal := func(method, path string, body any, key string) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		req.NoError(err)
		request := httptest.NewRequest(method, path, bytes.NewReader(raw))
		request.Header.Set("X-Internal-Key", key)
		recorder := httptest.NewRecorder()
		f.engine.ServeHTTP(recorder, request)
		return recorder
	}

	req.Equal(http.StatusUnauthorized, internal(http.MethodPost, "/internal/interactions", like, "wrong").Code)
	req.Equal(http.StatusCreated, internal(http.MethodPost, "/internal/interactions", like, internalKey).Code)
	req.Equal(http.StatusNoContent, internal(http.MethodPost, "/internal/interactions", selfLike, internalKey).Code)

	recorder := internal(http.MethodDelete, "/internal/posts/post-1/notifications", nil, internalKey)
	req.JSONEq(`{"deleted":2}`, recorder.Body.String())
	recorder = internal(http.MethodDelete, "/internal/comments/comment-1/notifications", nil, internalKey)
	req.JSONEq(`{"deleted":0}`, recorder.Body.String())
}

func TestAPI_Health_And_Metrics(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	recorder := f.do(t, "", http.MethodGet, "/healthz", nil)
	req.Equal(http.StatusOK, recorder.Code)
	body := decode[map[string]any](t, recorder)
	req.Equal("ok", body["status"])
	req.EqualValues(0, body["connections"])

	recorder = f.do(t, "", http.MethodGet, "/metrics", nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Contains(recorder.Body.String(), "chat_")
}
