package repositories

import (
	"chat-delivery/domain"
	"context"
	"log/slog"
	"strings"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldConversation = "conversation"
	fieldContent      = "content"
	fieldSender       = "sender"
	defaultSearchSize = 20
)

// MessageIndex keeps a Bluge full-text index of message contents next to the
// Badger log. Badger stays the source of truth: search only returns ids that
// the caller resolves, and filters, against the message store.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds or replaces the document of a message. Redacted messages and
// messages without searchable text are removed instead.
func (i *MessageIndex) Index(message domain.Message) error {
	content := searchableContent(message)
	if message.DeletedForEveryone || content == "" {
		return i.Remove(message.ID)
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldConversation, string(message.ConversationID))).
		AddField(bluge.NewKeywordField(fieldSender, string(message.SenderID)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, content))
	return i.writer.Update(doc.ID(), doc)
}

func (i *MessageIndex) Remove(messageID uuid.UUID) error {
	return i.writer.Delete(bluge.Identifier(messageID.String()))
}

// Search returns the ids of the best matching messages of one conversation
// and the total number of hits.
func (i *MessageIndex) Search(ctx context.Context, conversationID domain.ConversationID,
	terms string, limit int) ([]uuid.UUID, uint64, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = defaultSearchSize
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(conversationID)).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(strings.ToLower(terms)).SetField(fieldContent))
	request := bluge.NewTopNSearch(limit, query).WithStandardAggregations()

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, err
	}

	var ids []uuid.UUID
	match, err := matches.Next()
	for err == nil && match != nil {
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := uuid.ParseBytes(value)
			if parseErr != nil {
				visitErr = parseErr
				return false
			}
			ids = append(ids, id)
			return false
		})
		if err == nil {
			err = visitErr
		}
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, 0, err
	}
	return ids, matches.Aggregations().Count(), nil
}

func searchableContent(message domain.Message) string {
	parts := []string{message.Text}
	if message.File != nil {
		parts = append(parts, message.File.Name)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
