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
		provider.stores.ConversationStore = NewConversationStore(provider)
	})
}

type ConversationStore struct {
	CommonFields
}

func NewConversationStore(provider SqlProviderAchieve) *ConversationStore {
	return &ConversationStore{
		CommonFields: newCommonFields(provider, types.TABLE_CONVERSATIONS,
			"id", "created_at", "updated_at", "metadata", "status"),
	}
}

func (s *ConversationStore) Create(ctx context.Context, data types.Conversation) error {
	now := time.Now()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = data.CreatedAt
	}
	if data.Status == "" {
		data.Status = types.CONVERSATION_STATUS_ACTIVE
	}

	query := sq.Insert(s.GetTable()).
		Columns(s.GetAllColumns()...).
		Values(data.ID, data.CreatedAt, data.UpdatedAt, data.Metadata, data.Status)
	return s.exec(ctx, query)
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var res types.Conversation
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"id": id})
	if err := s.get(ctx, &res, query); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *ConversationStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := sq.Select("1").Prefix("SELECT EXISTS (").From(s.GetTable()).Where(sq.Eq{"id": id}).Suffix(")")
	if err := s.get(ctx, &exists, query); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *ConversationStore) Touch(ctx context.Context, id string) error {
	return s.update(ctx, id, sq.Eq{})
}

func (s *ConversationStore) UpdateStatus(ctx context.Context, id string, status types.ConversationStatus) error {
	return s.update(ctx, id, sq.Eq{"status": status})
}

func (s *ConversationStore) UpdateMetadata(ctx context.Context, id string, metadata types.Metadata) error {
	return s.update(ctx, id, sq.Eq{"metadata": metadata})
}

func (s *ConversationStore) update(ctx context.Context, id string, fields sq.Eq) error {
	query := sq.Update(s.GetTable()).Where(sq.Eq{"id": id}).Set("updated_at", time.Now())
	for k, v := range fields {
		query = query.Set(k, v)
	}
	return s.exec(ctx, query)
}
