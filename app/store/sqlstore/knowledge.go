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
		provider.stores.KnowledgeStore = NewKnowledgeStore(provider)
	})
}

type KnowledgeStore struct {
	CommonFields
}

// NewKnowledgeStore creates a new KnowledgeStore.
func NewKnowledgeStore(provider SqlProviderAchieve) *KnowledgeStore {
	return &KnowledgeStore{
		CommonFields: newCommonFields(provider, types.TABLE_KNOWLEDGE_ENTRIES,
			"id", "category", "title", "content", "priority", "is_active", "created_at", "updated_at"),
	}
}

func (s *KnowledgeStore) Create(ctx context.Context, data types.KnowledgeEntry) error {
	now := time.Now()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = data.CreatedAt
	}

	query := sq.Insert(s.GetTable()).
		Columns(s.GetAllColumns()...).
		Values(data.ID, data.Category, data.Title, data.Content, data.Priority, data.IsActive, data.CreatedAt, data.UpdatedAt)
	return s.exec(ctx, query)
}

func (s *KnowledgeStore) Get(ctx context.Context, id string) (*types.KnowledgeEntry, error) {
	var res types.KnowledgeEntry
	if err := s.get(ctx, &res, sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *KnowledgeStore) Update(ctx context.Context, id string, patch types.KnowledgeEntryPatch) error {
	query := sq.Update(s.GetTable()).Where(sq.Eq{"id": id}).Set("updated_at", time.Now())
	if patch.Category != nil {
		query = query.Set("category", *patch.Category)
	}
	if patch.Title != nil {
		query = query.Set("title", *patch.Title)
	}
	if patch.Content != nil {
		query = query.Set("content", *patch.Content)
	}
	if patch.Priority != nil {
		query = query.Set("priority", *patch.Priority)
	}
	if patch.IsActive != nil {
		query = query.Set("is_active", *patch.IsActive)
	}
	return s.exec(ctx, query)
}

func (s *KnowledgeStore) Delete(ctx context.Context, id string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"id": id})
	return s.exec(ctx, query)
}

// ListActive returns the active entries ordered by priority, highest first.
func (s *KnowledgeStore) ListActive(ctx context.Context) ([]*types.KnowledgeEntry, error) {
	return s.List(ctx, types.ListKnowledgeOptions{})
}

func (s *KnowledgeStore) List(ctx context.Context, opts types.ListKnowledgeOptions) ([]*types.KnowledgeEntry, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		OrderBy("priority DESC", "category ASC", "created_at ASC")
	for _, w := range knowledgeFilters(opts) {
		query = query.Where(w)
	}

	var res []*types.KnowledgeEntry
	if err := s.list(ctx, &res, query); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeStore) Total(ctx context.Context, opts types.ListKnowledgeOptions) (uint64, error) {
	return s.total(ctx, knowledgeFilters(opts)...)
}

func knowledgeFilters(opts types.ListKnowledgeOptions) []sq.Sqlizer {
	var where []sq.Sqlizer
	if !opts.IncludeInactive {
		where = append(where, sq.Eq{"is_active": true})
	}
	if opts.Category != "" {
		where = append(where, sq.Eq{"category": opts.Category})
	}
	return where
}
