package store

import (
	"context"

	"github.com/quka-ai/supportchat/pkg/sqlstore"
	"github.com/quka-ai/supportchat/pkg/types"
)

// ConversationStore persists conversation rows.
type ConversationStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.Conversation) error
	// Get returns sql.ErrNoRows when the conversation does not exist
	Get(ctx context.Context, id string) (*types.Conversation, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Touch bumps updated_at
	Touch(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status types.ConversationStatus) error
	UpdateMetadata(ctx context.Context, id string, metadata types.Metadata) error
}

// MessageStore persists the messages of a conversation.
type MessageStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.Message) error
	// ListByConversation returns messages oldest first. limit <= 0 means all.
	ListByConversation(ctx context.Context, conversationID string, limit uint64) ([]*types.Message, error)
	// ListRecent returns the newest limit messages, newest first.
	ListRecent(ctx context.Context, conversationID string, limit uint64) ([]*types.Message, error)
	Count(ctx context.Context, conversationID string) (uint64, error)
}

// KnowledgeStore persists knowledge base entries.
type KnowledgeStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.KnowledgeEntry) error
	Get(ctx context.Context, id string) (*types.KnowledgeEntry, error)
	Update(ctx context.Context, id string, patch types.KnowledgeEntryPatch) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*types.KnowledgeEntry, error)
	List(ctx context.Context, opts types.ListKnowledgeOptions) ([]*types.KnowledgeEntry, error)
	Total(ctx context.Context, opts types.ListKnowledgeOptions) (uint64, error)
}
