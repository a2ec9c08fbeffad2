package sqlstore

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/quka-ai/supportchat/pkg/register"
	"github.com/quka-ai/supportchat/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.MessageStore = NewMessageStore(provider)
	})
}

type MessageStore struct {
	CommonFields
}

func NewMessageStore(provider SqlProviderAchieve) *MessageStore {
	return &MessageStore{
		CommonFields: newCommonFields(provider, types.TABLE_MESSAGES,
			"id", "conversation_id", "sender", "text", "channel", "channel_user_id", "created_at", "metadata"),
	}
}

func (s *MessageStore) Create(ctx context.Context, data types.Message) error {
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	if data.Channel == "" {
		data.Channel = types.CHANNEL_WEB
	}

	var channelUserID any
	if data.ChannelUserID != "" {
		channelUserID = data.ChannelUserID
	}

	query := sq.Insert(s.GetTable()).
		Columns(s.GetAllColumns()...).
		Values(data.ID, data.ConversationID, data.Sender, data.Text, data.Channel, channelUserID, data.CreatedAt, data.Metadata)
	return s.exec(ctx, query)
}

func (s *MessageStore) selectColumns() []string {
	// channel_user_id is nullable
	cols := append([]string(nil), s.GetAllColumns()...)
	for i, c := range cols {
		if c == "channel_user_id" {
			cols[i] = "COALESCE(channel_user_id, '') AS channel_user_id"
		}
	}
	return cols
}

func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string, limit uint64) ([]*types.Message, error) {
	if limit == types.NO_PAGINATION {
		query := sq.Select(s.selectColumns()...).From(s.GetTable()).
			Where(sq.Eq{"conversation_id": conversationID}).
			OrderBy("created_at ASC", "id ASC")
		return s.messages(ctx, query)
	}

	// most recent limit messages, returned oldest first
	recent := sq.Select(s.selectColumns()...).From(s.GetTable()).
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit)
	query := sq.Select("*").FromSelect(recent, "recent").OrderBy("created_at ASC", "id ASC")
	return s.messages(ctx, query)
}

func (s *MessageStore) ListRecent(ctx context.Context, conversationID string, limit uint64) ([]*types.Message, error) {
	query := sq.Select(s.selectColumns()...).From(s.GetTable()).
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC", "id DESC")
	if limit != types.NO_PAGINATION {
		query = query.Limit(limit)
	}
	return s.messages(ctx, query)
}

func (s *MessageStore) messages(ctx context.Context, query sq.SelectBuilder) ([]*types.Message, error) {
	var res []*types.Message
	if err := s.list(ctx, &res, query); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *MessageStore) Count(ctx context.Context, conversationID string) (uint64, error) {
	return s.total(ctx, sq.Eq{"conversation_id": conversationID})
}
