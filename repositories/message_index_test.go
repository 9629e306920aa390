package repositories

import (
	"chat-delivery/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newMessageIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func Test_Message_Index_Search(t *testing.T) {
	req := require.New(t)
	index := newMessageIndex(t)
	ctx := context.Background()
	conversationID, otherID := domain.NewConversationID(), domain.NewConversationID()

	// Given messages spread over two conversations
	launch := domain.NewMessage(conversationID, "alice", "The Rocket launch is tomorrow", nil, time.Now())
	lunch := domain.NewMessage(conversationID, "bob", "lunch at noon?", nil, time.Now())
	report := domain.NewMessage(conversationID, "bob", "", &domain.FileDescriptor{Name: "rocket-report.pdf", Path: "/f/1"}, time.Now())
	elsewhere := domain.NewMessage(otherID, "carol", "rocket science", nil, time.Now())
	for _, message := range []domain.Message{launch, lunch, report, elsewhere} {
		req.NoError(index.Index(message))
	}

	// When searching one conversation, case does not matter
	ids, total, err := index.Search(ctx, conversationID, "ROCKET", 10)
	req.NoError(err)

	// Then only its own messages match, file names included
	req.EqualValues(2, total)
	req.ElementsMatch([]uuid.UUID{launch.ID, report.ID}, ids)

	ids, _, err = index.Search(ctx, otherID, "rocket", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{elsewhere.ID}, ids)

	// Blank terms match nothing
	ids, total, err = index.Search(ctx, conversationID, "   ", 10)
	req.NoError(err)
	req.Empty(ids)
	req.Zero(total)
}

func Test_Message_Index_Drops_Redacted(t *testing.T) {
	req := require.New(t)
	index := newMessageIndex(t)
	ctx := context.Background()
	conversationID := domain.NewConversationID()

	secret := domain.NewMessage(conversationID, "alice", "the secret password", nil, time.Now())
	other := domain.NewMessage(conversationID, "alice", "a secret plan", nil, time.Now())
	req.NoError(index.Index(secret))
	req.NoError(index.Index(other))

	// A redacted message is reindexed out
	secret.Redact()
	req.NoError(index.Index(secret))
	ids, _, err := index.Search(ctx, conversationID, "password", 10)
	req.NoError(err)
	req.Empty(ids)

	// Remove deletes the document
	req.NoError(index.Remove(other.ID))
	ids, total, err := index.Search(ctx, conversationID, "secret", 10)
	req.NoError(err)
	req.Empty(ids)
	req.Zero(total)
}
