// Package search keeps a full text index of message content with bluge.
// The index is derived data: it can be rebuilt from the message store.
package search

import (
	"circles/domain"
	"context"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
)

const (
	fieldContent      = "content"
	fieldConversation = "conversation"
	fieldSender       = "sender"
)

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Open creates or reopens the on-disk index at path.
func Open(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return NewMessageIndex(writer, log), nil
}

// IndexBatch upserts messages keyed by their id.
func (i *MessageIndex) IndexBatch(messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := bluge.NewBatch()
	for _, m := range messages {
		doc := bluge.NewDocument(strconv.FormatInt(m.ID, 10)).
			AddField(bluge.NewTextField(fieldContent, m.Content)).
			AddField(bluge.NewKeywordField(fieldConversation, strconv.FormatInt(m.ConversationID, 10))).
			AddField(bluge.NewKeywordField(fieldSender, strconv.FormatInt(m.SenderID, 10)).StoreValue())
		batch.Update(doc.ID(), doc)
	}
	if err := i.writer.Batch(batch); err != nil {
		return err
	}
	i.log.Debug("Messages indexed", "count", len(messages))
	return nil
}

// Search matches text against one conversation and returns message ids by relevance.
func (i *MessageIndex) Search(ctx context.Context, conversationID int64, text string, limit int) ([]int64, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(strconv.FormatInt(conversationID, 10)).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(text).SetField(fieldContent))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []int64
	match, err := matches.Next()
	for err == nil && match != nil {
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := strconv.ParseInt(string(value), 10, 64)
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
	return ids, err
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}
