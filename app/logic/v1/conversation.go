package v1

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/quka-ai/supportchat/app/core"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
	"github.com/quka-ai/supportchat/pkg/types"
)

// ConversationLogic is the only writer of conversation and message rows.
type ConversationLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewConversationLogic(ctx context.Context, core *core.Core) *ConversationLogic {
	return &ConversationLogic{
		ctx:  ctx,
		core: core,
	}
}

func isUUID(id string) bool {
	return uuid.Validate(id) == nil
}

func (l *ConversationLogic) CreateConversation(metadata types.Metadata) (*types.Conversation, error) {
	now := time.Now()
	conversation := types.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		Status:    types.CONVERSATION_STATUS_ACTIVE,
	}
	if err := l.core.Store().ConversationStore().Create(l.ctx, conversation); err != nil {
		return nil, errors.Database("ConversationLogic.CreateConversation.ConversationStore.Create", i18n.ERROR_DATABASE, err)
	}
	return &conversation, nil
}

func (l *ConversationLogic) GetConversation(id string) (*types.Conversation, error) {
	if !isUUID(id) {
		return nil, errors.NotFound("ConversationLogic.GetConversation.isUUID", i18n.ERROR_CONVERSATION_NOT_FOUND)
	}
	conversation, err := l.core.Store().ConversationStore().Get(l.ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("ConversationLogic.GetConversation.ConversationStore.Get", i18n.ERROR_CONVERSATION_NOT_FOUND)
	}
	if err != nil {
		return nil, errors.Database("ConversationLogic.GetConversation.ConversationStore.Get", i18n.ERROR_DATABASE, err)
	}
	return conversation, nil
}

func (l *ConversationLogic) ConversationExists(id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	exists, err := l.core.Store().ConversationStore().Exists(l.ctx, id)
	if err != nil {
		return false, errors.Database("ConversationLogic.ConversationExists.ConversationStore.Exists", i18n.ERROR_DATABASE, err)
	}
	return exists, nil
}

type AddMessageArgs struct {
	ConversationID string
	Sender         types.MessageSender
	Text           string
	Channel        types.ChannelType
	ChannelUserID  string
	Metadata       types.MessageMetadata
}

// AddMessage appends a message and bumps the conversation's updated_at in
// the same transaction.
func (l *ConversationLogic) AddMessage(args AddMessageArgs) (*types.Message, error) {
	exists, err := l.ConversationExists(args.ConversationID)
	if err != nil {
		return nil, errors.Trace("ConversationLogic.AddMessage", err)
	}
	if !exists {
		return nil, errors.NotFound("ConversationLogic.AddMessage.ConversationExists", i18n.ERROR_CONVERSATION_NOT_FOUND)
	}

	msg := types.Message{
		ID:             uuid.NewString(),
		ConversationID: args.ConversationID,
		Sender:         args.Sender,
		Text:           args.Text,
		Channel:        lo.Ternary(args.Channel == "", types.CHANNEL_WEB, args.Channel),
		ChannelUserID:  args.ChannelUserID,
		CreatedAt:      time.Now(),
		Metadata:       args.Metadata,
	}

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().MessageStore().Create(ctx, msg); err != nil {
			return errors.Database("ConversationLogic.AddMessage.MessageStore.Create", i18n.ERROR_DATABASE, err)
		}
		if err := l.core.Store().ConversationStore().Touch(ctx, args.ConversationID); err != nil {
			return errors.Database("ConversationLogic.AddMessage.ConversationStore.Touch", i18n.ERROR_DATABASE, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetHistory returns the conversation oldest first. limit <= 0 returns
// every message, otherwise the most recent limit messages.
func (l *ConversationLogic) GetHistory(id string, limit int) ([]*types.Message, error) {
	if !isUUID(id) {
		return nil, errors.NotFound("ConversationLogic.GetHistory.isUUID", i18n.ERROR_CONVERSATION_NOT_FOUND)
	}
	var page uint64 = types.NO_PAGINATION
	if limit > 0 {
		page = uint64(limit)
	}
	list, err := l.core.Store().MessageStore().ListByConversation(l.ctx, id, page)
	if err != nil {
		return nil, errors.Database("ConversationLogic.GetHistory.MessageStore.ListByConversation", i18n.ERROR_DATABASE, err)
	}
	return list, nil
}

// GetRecentMessagesForContext returns the newest limit messages in
// chronological order, ready to be sent to the llm.
func (l *ConversationLogic) GetRecentMessagesForContext(id string, limit int) ([]types.ContextMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	list, err := l.core.Store().MessageStore().ListRecent(l.ctx, id, uint64(limit))
	if err != nil {
		return nil, errors.Database("ConversationLogic.GetRecentMessagesForContext.MessageStore.ListRecent", i18n.ERROR_DATABASE, err)
	}

	return lo.Reverse(lo.Map(list, func(item *types.Message, _ int) types.ContextMessage {
		return types.ContextMessage{
			Sender:    item.Sender,
			Text:      item.Text,
			Timestamp: item.CreatedAt,
		}
	})), nil
}

func (l *ConversationLogic) CloseConversation(id string) error {
	if _, err := l.GetConversation(id); err != nil {
		return err
	}
	if err := l.core.Store().ConversationStore().UpdateStatus(l.ctx, id, types.CONVERSATION_STATUS_CLOSED); err != nil {
		return errors.Database("ConversationLogic.CloseConversation.ConversationStore.UpdateStatus", i18n.ERROR_DATABASE, err)
	}
	return nil
}

// UpdateMetadata merges metadata into the stored object.
func (l *ConversationLogic) UpdateMetadata(id string, metadata types.Metadata) error {
	conversation, err := l.GetConversation(id)
	if err != nil {
		return err
	}
	merged := types.Metadata{}
	for k, v := range conversation.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	if err := l.core.Store().ConversationStore().UpdateMetadata(l.ctx, id, merged); err != nil {
		return errors.Database("ConversationLogic.UpdateMetadata.ConversationStore.UpdateMetadata", i18n.ERROR_DATABASE, err)
	}
	return nil
}
