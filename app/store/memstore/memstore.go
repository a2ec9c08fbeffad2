// Package memstore is an in-memory store provider. It backs the logic and
// handler tests and mirrors the ordering rules of the sql stores.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/quka-ai/supportchat/app/store"
	"github.com/quka-ai/supportchat/pkg/types"
)

type Provider struct {
	mu            sync.RWMutex
	conversations map[string]types.Conversation
	messages      []types.Message
	knowledge     map[string]types.KnowledgeEntry
	knowledgeSeq  map[string]int
	nextSeq       int
	failures      map[string]error
	pingErr       error
	closed        bool
}

func New() *Provider {
	return &Provider{
		conversations: make(map[string]types.Conversation),
		knowledge:     make(map[string]types.KnowledgeEntry),
		knowledgeSeq:  make(map[string]int),
		failures:      make(map[string]error),
	}
}

// FailOn makes op (for example "MessageStore.Create") return err until it
// is cleared with a nil err.
func (p *Provider) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

func (p *Provider) SetPingError(err error) {
	p.mu.Lock()
	p.pingErr = err
	p.mu.Unlock()
}

func (p *Provider) failure(op string) error {
	return p.failures[op]
}

func (p *Provider) ConversationStore() store.ConversationStore {
	return &conversationStore{p: p}
}

func (p *Provider) MessageStore() store.MessageStore {
	return &messageStore{p: p}
}

func (p *Provider) KnowledgeStore() store.KnowledgeStore {
	return &knowledgeStore{p: p}
}

func (p *Provider) Ping(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pingErr
}

func (p *Provider) Transaction(ctx context.Context, next func(ctx context.Context) error) error {
	return next(ctx)
}

func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *Provider) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

type conversationStore struct {
	p *Provider
}

func (s *conversationStore) GetTable() string {
	return types.TABLE_CONVERSATIONS.Name()
}

func (s *conversationStore) Create(_ context.Context, data types.Conversation) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if err := s.p.failure("ConversationStore.Create"); err != nil {
		return err
	}
	if data.Status == "" {
		data.Status = types.CONVERSATION_STATUS_ACTIVE
	}
	if data.Metadata == nil {
		data.Metadata = types.Metadata{}
	}
	s.p.conversations[data.ID] = data
	return nil
}

func (s *conversationStore) Get(_ context.Context, id string) (*types.Conversation, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if err := s.p.failure("ConversationStore.Get"); err != nil {
		return nil, err
	}
	c, ok := s.p.conversations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *conversationStore) Exists(_ context.Context, id string) (bool, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if err := s.p.failure("ConversationStore.Exists"); err != nil {
		return false, err
	}
	_, ok := s.p.conversations[id]
	return ok, nil
}

func (s *conversationStore) update(op, id string, fn func(*types.Conversation)) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if err := s.p.failure(op); err != nil {
		return err
	}
	c, ok := s.p.conversations[id]
	if !ok {
		return nil
	}
	fn(&c)
	c.UpdatedAt = time.Now()
	s.p.conversations[id] = c
	return nil
}

func (s *conversationStore) Touch(_ context.Context, id string) error {
	return s.update("ConversationStore.Touch", id, func(*types.Conversation) {})
}

func (s *conversationStore) UpdateStatus(_ context.Context, id string, status types.ConversationStatus) error {
	return s.update("ConversationStore.UpdateStatus", id, func(c *types.Conversation) {
		c.Status = status
	})
}

func (s *conversationStore) UpdateMetadata(_ context.Context, id string, metadata types.Metadata) error {
	return s.update("ConversationStore.UpdateMetadata", id, func(c *types.Conversation) {
		c.Metadata = metadata
	})
}

type messageStore struct {
	p *Provider
}

func (s *messageStore) GetTable() string {
	return types.TABLE_MESSAGES.Name()
}

func (s *messageStore) Create(_ context.Context, data types.Message) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if err := s.p.failure("MessageStore.Create"); err != nil {
		return err
	}
	if data.Channel == "" {
		data.Channel = types.CHANNEL_WEB
	}
	s.p.messages = append(s.p.messages, data)
	return nil
}

// byConversation keeps insertion order, which is creation order.
func (s *messageStore) byConversation(conversationID string) []*types.Message {
	return lo.FilterMap(s.p.messages, func(item types.Message, _ int) (*types.Message, bool) {
		if item.ConversationID != conversationID {
			return nil, false
		}
		m := item
		return &m, true
	})
}

func (s *messageStore) ListByConversation(_ context.Context, conversationID string, limit uint64) ([]*types.Message, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if err := s.p.failure("MessageStore.ListByConversation"); err != nil {
		return nil, err
	}
	list := s.byConversation(conversationID)
	if limit > 0 && uint64(len(list)) > limit {
		list = list[uint64(len(list))-limit:]
	}
	return list, nil
}

func (s *messageStore) ListRecent(_ context.Context, conversationID string, limit uint64) ([]*types.Message, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if err := s.p.failure("MessageStore.ListRecent"); err != nil {
		return nil, err
	}
	list := lo.Reverse(s.byConversation(conversationID))
	if limit > 0 && uint64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *messageStore) Count(_ context.Context, conversationID string) (uint64, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	return uint64(len(s.byConversation(conversationID))), nil
}

type knowledgeStore struct {
	p *Provider
}

func (s *knowledgeStore) GetTable() string {
	return types.TABLE_KNOWLEDGE_ENTRIES.Name()
}

func (s *knowledgeStore) Create(_ context.Context, data types.KnowledgeEntry) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if err := s.p.failure("KnowledgeStore.Create"); err != nil {
		return err
	}
	s.p.knowledge[data.ID] = data
	s.p.nextSeq++
	s.p.knowledgeSeq[data.ID] = s.p.nextSeq
	return nil
}

func (s *knowledgeStore) Get(_ context.Context, id string) (*types.KnowledgeEntry, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	entry, ok := s.p.knowledge[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &entry, nil
}

func (s *knowledgeStore) Update(_ context.Context, id string, patch types.KnowledgeEntryPatch) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if err := s.p.failure("KnowledgeStore.Update"); err != nil {
		return err
	}
	entry, ok := s.p.knowledge[id]
	if !ok {
		return nil
	}
	if patch.Category != nil {
		entry.Category = *patch.Category
	}
	if patch.Title != nil {
		entry.Title = *patch.Title
	}
	if patch.Content != nil {
		entry.Content = *patch.Content
	}
	if patch.Priority != nil {
		entry.Priority = *patch.Priority
	}
	if patch.IsActive != nil {
		entry.IsActive = *patch.IsActive
	}
	entry.UpdatedAt = time.Now()
	s.p.knowledge[id] = entry
	return nil
}

func (s *knowledgeStore) Delete(_ context.Context, id string) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if err := s.p.failure("KnowledgeStore.Delete"); err != nil {
		return err
	}
	delete(s.p.knowledge, id)
	delete(s.p.knowledgeSeq, id)
	return nil
}

func (s *knowledgeStore) ListActive(ctx context.Context) ([]*types.KnowledgeEntry, error) {
	return s.List(ctx, types.ListKnowledgeOptions{})
}

// List orders by priority desc, category asc, then creation order.
func (s *knowledgeStore) List(_ context.Context, opts types.ListKnowledgeOptions) ([]*types.KnowledgeEntry, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if err := s.p.failure("KnowledgeStore.List"); err != nil {
		return nil, err
	}
	list := s.filter(opts)
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return s.p.knowledgeSeq[a.ID] < s.p.knowledgeSeq[b.ID]
	})
	return list, nil
}

func (s *knowledgeStore) Total(_ context.Context, opts types.ListKnowledgeOptions) (uint64, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if err := s.p.failure("KnowledgeStore.Total"); err != nil {
		return 0, err
	}
	return uint64(len(s.filter(opts))), nil
}

func (s *knowledgeStore) filter(opts types.ListKnowledgeOptions) []*types.KnowledgeEntry {
	var list []*types.KnowledgeEntry
	for _, entry := range s.p.knowledge {
		if !opts.IncludeInactive && !entry.IsActive {
			continue
		}
		if opts.Category != "" && entry.Category != opts.Category {
			continue
		}
		e := entry
		list = append(list, &e)
	}
	return list
}
