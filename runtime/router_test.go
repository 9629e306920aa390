package runtime

import (
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"chat-delivery/errors"
	"chat-delivery/mocks"
	"chat-delivery/observability"
	"chat-delivery/repositories"
	"chat-delivery/sink"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type harness struct {
	router   *Router
	registry *Registry
	rooms    *RoomTracker
	messages *repositories.MessageRepository
	metrics  *observability.Metrics
}

func newHarness(t *testing.T, typingWindow time.Duration) harness {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	messages := repositories.NewMessageRepository(db, log)
	registry := NewRegistry()
	rooms := NewRoomTracker(registry, messages)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := NewRouter(log, registry, rooms, messages, nil, nil, metrics, RouterConfig{
		PushTimeout:      100 * time.Millisecond,
		TypingWindow:     typingWindow,
		MaxContentLength: 100,
	})
	return harness{router: router, registry: registry, rooms: rooms, messages: messages, metrics: metrics}
}

// connect opens a connection for userID, announces it and joins the conversations.
func (h harness) connect(t *testing.T, userID domain.UserID, conversations ...domain.ConversationID) (domain.ConnectionID, *sink.Timeline) {
	t.Helper()
	connID := domain.NewConnectionID()
	timeline := sink.NewTimeline(userID)
	h.registry.Connect(connID, timeline)
	require.NoError(t, h.router.Announce(connID, userID))
	for _, conversationID := range conversations {
		require.NoError(t, h.rooms.Join(context.Background(), conversationID, connID))
	}
	return connID, timeline
}

func acks(timeline *sink.Timeline) []event.Ack {
	var res []event.Ack
	for _, e := range timeline.Events() {
		if ack, ok := e.(event.Ack); ok {
			res = append(res, ack)
		}
	}
	return res
}

func failures(timeline *sink.Timeline) []event.Failure {
	var res []event.Failure
	for _, e := range timeline.Events() {
		if failure, ok := e.(event.Failure); ok {
			res = append(res, failure)
		}
	}
	return res
}

func TestRouter_Live_View_Matches_Fetch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)

	aliceConn, _ := h.connect(t, "alice", conversation.ID)
	_, bob := h.connect(t, "bob", conversation.ID)

	// When alice sends hello then world
	hello, err := h.router.SendMessage(ctx, aliceConn, "alice", conversation.ID, "hello", nil)
	req.NoError(err)
	world, err := h.router.SendMessage(ctx, aliceConn, "alice", conversation.ID, "world", nil)
	req.NoError(err)

	// Then bob received them in order, as stored
	live := bob.Messages()
	req.Len(live, 2)
	req.Equal(hello.ID, live[0].ID)
	req.Equal(world.ID, live[1].ID)
	req.True(live[1].CreatedAt.After(live[0].CreatedAt))

	fetched, pagination, err := h.messages.ListMessages(conversation.ID, "bob", domain.NewPage(1, 0, domain.DefaultMessageLimit))
	req.NoError(err)
	req.Equal(2, pagination.Total)
	req.Equal(live, fetched)
}

func TestRouter_Many_Messages_Keep_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	aliceConn, _ := h.connect(t, "alice", conversation.ID)
	bobConn, bob := h.connect(t, "bob", conversation.ID)

	// Given both participants writing at the same time
	done := make(chan error, 1)
	go func() {
		for i := range 20 {
			if _, err := h.router.SendMessage(ctx, aliceConn, "alice", conversation.ID, fmt.Sprintf("alice %d", i), nil); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := range 20 {
		_, err := h.router.SendMessage(ctx, bobConn, "bob", conversation.ID, fmt.Sprintf("bob %d", i), nil)
		req.NoError(err)
	}
	req.NoError(<-done)

	// Then the messages bob received from alice follow storage order
	fetched, _, err := h.messages.ListMessages(conversation.ID, "bob", domain.NewPage(1, 100, domain.DefaultMessageLimit))
	req.NoError(err)
	req.Len(fetched, 40)
	var fromAlice []domain.Message
	for _, m := range fetched {
		if m.SenderID == "alice" {
			fromAlice = append(fromAlice, m)
		}
	}
	req.Equal(fromAlice, bob.Messages())
	for i := 1; i < len(fetched); i++ {
		req.True(fetched[i].CreatedAt.After(fetched[i-1].CreatedAt))
	}
}

func TestRouter_Aborted_Request_Still_Broadcasts(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)

	// Given bob listening through a buffered connection
	bobConn := domain.NewConnectionID()
	bobSink := sink.NewConnectionSink(100)
	h.registry.Connect(bobConn, bobSink)
	req.NoError(h.router.Announce(bobConn, "bob"))
	req.NoError(h.rooms.Join(context.Background(), conversation.ID, bobConn))

	// When alice's request is already aborted while she sends
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sent []domain.Message
	for i := range 40 {
		message, err := h.router.SendMessage(ctx, "", "alice", conversation.ID, fmt.Sprintf("message %d", i), nil)
		req.NoError(err)
		sent = append(sent, message)
	}

	// Then bob got every persisted message live, in order
	req.Len(bobSink.Events, len(sent))
	for _, message := range sent {
		received, ok := (<-bobSink.Events).(event.MessageReceived)
		req.True(ok)
		req.Equal(message.ID, received.Message.ID)
	}
}

func TestRouter_Forbidden_Sender_Persists_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	_, bob := h.connect(t, "bob", conversation.ID)
	malloryConn, mallory := h.connect(t, "mallory")

	// When mallory sends into a conversation she is not part of
	h.router.Handle(ctx, malloryConn, event.SendMessage{
		Meta:           event.Meta{Ref: "1"},
		ConversationID: conversation.ID,
		Text:           "spam",
	})

	// Then only mallory gets an error frame and nothing is stored
	req.Equal([]event.Failure{{Ref: "1", Code: errors.CodeForbidden, Message: errors.ErrNotParticipant.Error()}}, failures(mallory))
	req.Empty(bob.Events())
	fetched, _, err := h.messages.ListMessages(conversation.ID, "bob", domain.NewPage(1, 0, domain.DefaultMessageLimit))
	req.NoError(err)
	req.Empty(fetched)
	req.Equal(1.0, testutil.ToFloat64(h.metrics.EventsRejected.WithLabelValues(string(errors.CodeForbidden))))
}

func TestRouter_Unannounced_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	connID := domain.NewConnectionID()
	timeline := sink.NewTimeline("")
	h.registry.Connect(connID, timeline)

	h.router.Handle(ctx, connID, event.JoinConversation{Meta: event.Meta{Ref: "j"}, ConversationID: conversation.ID})
	h.router.Handle(ctx, connID, event.SendMessage{Meta: event.Meta{Ref: "s"}, ConversationID: conversation.ID, Text: "hi"})

	got := failures(timeline)
	req.Len(got, 2)
	req.Equal(errors.CodeUnauthenticated, got[0].Code)
	req.Equal(errors.CodeUnauthenticated, got[1].Code)
	req.Equal("s", got[1].Ref)
}

func TestRouter_Handle_Acks_With_Persisted_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	aliceConn, alice := h.connect(t, "alice", conversation.ID)

	h.router.Handle(ctx, aliceConn, event.SendMessage{Meta: event.Meta{Ref: "42"}, ConversationID: conversation.ID, Text: "  hi bob  "})

	got := acks(alice)
	req.Len(got, 1)
	req.Equal("42", got[0].Ref)
	message, ok := got[0].Data.(domain.Message)
	req.True(ok)
	req.Equal("hi bob", message.Text)
	req.Equal(domain.KindText, message.Kind)
	// The origin connection gets the ack, not a copy of its own message
	req.Empty(alice.Messages())
}

func TestRouter_Invalid_Content(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)

	_, err = h.router.SendMessage(ctx, "", "alice", conversation.ID, "   ", nil)
	req.ErrorIs(err, errors.ErrEmptyMessage)

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, err = h.router.SendMessage(ctx, "", "alice", conversation.ID, string(long), nil)
	req.ErrorIs(err, errors.ErrContentTooLong)

	_, err = h.router.SendMessage(ctx, "", "alice", conversation.ID, "", &domain.FileDescriptor{Name: "a.png"})
	req.ErrorIs(err, errors.ErrInvalidPayload)

	_, err = h.router.SendMessage(ctx, "", "alice", "not-a-conversation", "hi", nil)
	req.ErrorIs(err, errors.ErrInvalidPayload)

	_, err = h.router.SendMessage(ctx, "", "alice", domain.NewConversationID(), "hi", nil)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRouter_File_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	_, bob := h.connect(t, "bob", conversation.ID)

	message, err := h.router.SendMessage(ctx, "", "alice", conversation.ID, "", &domain.FileDescriptor{
		Name: "holidays.jpg", Size: 2048, MediaType: "image/jpeg", Path: "uploads/holidays.jpg",
	})

	req.NoError(err)
	req.Equal(domain.KindImage, message.Kind)
	req.Equal([]domain.Message{message}, bob.Messages())
}

func TestRouter_Mark_Read_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	_, alice := h.connect(t, "alice", conversation.ID)
	bobConn, _ := h.connect(t, "bob", conversation.ID)

	_, err = h.router.SendMessage(ctx, "", "alice", conversation.ID, "hello", nil)
	req.NoError(err)
	_, err = h.router.SendMessage(ctx, "", "alice", conversation.ID, "world", nil)
	req.NoError(err)

	// When bob marks the conversation read twice
	first, err := h.router.MarkRead(ctx, bobConn, "bob", conversation.ID)
	req.NoError(err)
	second, err := h.router.MarkRead(ctx, bobConn, "bob", conversation.ID)
	req.NoError(err)

	// Then markers are added once and broadcast once
	req.Equal(2, first.Marked)
	req.Zero(second.Marked)
	var reads []event.MessagesRead
	for _, e := range alice.Events() {
		if read, ok := e.(event.MessagesRead); ok {
			reads = append(reads, read)
		}
	}
	req.Equal([]event.MessagesRead{{ConversationID: conversation.ID, ReadBy: "bob", Timestamp: first.Timestamp}}, reads)

	total, _, err := h.messages.UnreadCount("bob")
	req.NoError(err)
	req.Zero(total)
}

func TestRouter_Delete_For_Everyone_Redacts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	bobConn, bob := h.connect(t, "bob", conversation.ID)

	message, err := h.router.SendMessage(ctx, "", "alice", conversation.ID, "secret", nil)
	req.NoError(err)

	// Bob cannot redact alice's message
	_, err = h.router.DeleteMessage(ctx, bobConn, "bob", message.ID, true)
	req.ErrorIs(err, errors.ErrNotSender)

	// When alice redacts it
	redacted, err := h.router.DeleteMessage(ctx, "", "alice", message.ID, true)
	req.NoError(err)

	// Then bob's live view and the store both show the redacted text only
	req.True(redacted.DeletedForEveryone)
	req.Equal(domain.RedactedText, redacted.Text)
	live := bob.Messages()
	req.Len(live, 1)
	req.Equal(domain.RedactedText, live[0].Text)
	stored, err := h.messages.GetMessage(message.ID)
	req.NoError(err)
	req.Equal(domain.RedactedText, stored.Text)
	req.NotContains(fmt.Sprint(stored), "secret")
}

func TestRouter_Delete_For_Me_Is_Isolated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	_, alice := h.connect(t, "alice", conversation.ID)
	bobConn, _ := h.connect(t, "bob", conversation.ID)

	message, err := h.router.SendMessage(ctx, bobConn, "bob", conversation.ID, "hello", nil)
	req.NoError(err)
	before := len(alice.Events())

	// When bob deletes the message for himself
	_, err = h.router.DeleteMessage(ctx, bobConn, "bob", message.ID, false)
	req.NoError(err)

	// Then nothing is broadcast, bob no longer sees it and alice still does
	req.Len(alice.Events(), before)
	forBob, _, err := h.messages.ListMessages(conversation.ID, "bob", domain.NewPage(1, 0, domain.DefaultMessageLimit))
	req.NoError(err)
	req.Empty(forBob)
	forAlice, _, err := h.messages.ListMessages(conversation.ID, "alice", domain.NewPage(1, 0, domain.DefaultMessageLimit))
	req.NoError(err)
	req.Len(forAlice, 1)
	req.Equal("hello", forAlice[0].Text)

	// And a stranger cannot even hide it
	_, err = h.router.DeleteMessage(ctx, "", "mallory", message.ID, false)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestRouter_Typing_Broadcast_And_Expiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, 50*time.Millisecond)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	aliceConn, alice := h.connect(t, "alice", conversation.ID)
	_, bob := h.connect(t, "bob", conversation.ID)

	// When alice starts typing
	req.NoError(h.router.SetTyping(ctx, aliceConn, "alice", conversation.ID, true))

	// Then bob sees it, then sees it stop once the window elapsed
	req.Eventually(func() bool { return len(bob.Typing()) == 2 }, time.Second, 10*time.Millisecond)
	req.Equal([]event.UserTyping{
		{ConversationID: conversation.ID, UserID: "alice", IsTyping: true},
		{ConversationID: conversation.ID, UserID: "alice", IsTyping: false},
	}, bob.Typing())
	// alice's own connection only gets the expiry
	req.Len(alice.Typing(), 1)

	// A stranger cannot type there
	err = h.router.SetTyping(ctx, "", "mallory", conversation.ID, true)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestRouter_Disconnect_Clears_Rooms_And_Typing(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, time.Minute)
	conversation, _, err := h.messages.CreateOrGetDirect("alice", "bob", time.Now())
	req.NoError(err)
	_, bob := h.connect(t, "bob", conversation.ID)

	aliceConn := domain.NewConnectionID()
	h.registry.Connect(aliceConn, sink.NewTimeline("alice"))
	inbound := make(chan event.Inbound)
	served := make(chan struct{})
	go func() {
		h.router.Serve(ctx, aliceConn, inbound)
		close(served)
	}()

	// Given alice announced, joined and typing through the event loop
	inbound <- event.Announce{UserID: "alice"}
	inbound <- event.JoinConversation{ConversationID: conversation.ID}
	inbound <- event.Typing{ConversationID: conversation.ID, IsTyping: true}

	// When her connection goes away
	close(inbound)
	<-served
	cancel()

	// Then she left the room and bob saw her stop typing
	req.NotContains(h.rooms.MembersOf(conversation.ID), aliceConn)
	req.False(h.registry.IsOnline("alice"))
	req.Equal([]event.UserTyping{
		{ConversationID: conversation.ID, UserID: "alice", IsTyping: true},
		{ConversationID: conversation.ID, UserID: "alice", IsTyping: false},
	}, bob.Typing())
}

func TestRouter_Storage_Failure_Broadcasts_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	rooms := NewRoomTracker(registry, messages)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := NewRouter(log, registry, rooms, messages, nil, nil, metrics, RouterConfig{
		PushTimeout:  100 * time.Millisecond,
		TypingWindow: time.Minute,
	})
	conversation := domain.NewDirectConversation("alice", "bob", time.Now())

	bobConn := domain.NewConnectionID()
	bob := sink.NewTimeline("bob")
	registry.Connect(bobConn, bob)
	req.NoError(router.Announce(bobConn, "bob"))
	messages.EXPECT().GetConversation(conversation.ID).Return(conversation, nil).AnyTimes()
	req.NoError(rooms.Join(ctx, conversation.ID, bobConn))

	// Given a store refusing writes
	messages.EXPECT().AppendMessage(gomock.Any()).Return(domain.Message{}, fmt.Errorf("disk full"))

	// When alice sends a message
	_, err := router.SendMessage(ctx, "", "alice", conversation.ID, "hello", nil)

	// Then she gets a storage error and bob nothing
	req.ErrorIs(err, errors.ErrStorage)
	req.Equal(errors.CodeStorage, errors.ToCode(err))
	req.Empty(bob.Events())
}
