package v1

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/quka-ai/supportchat/app/core"
	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/eventbus"
	"github.com/quka-ai/supportchat/pkg/i18n"
	"github.com/quka-ai/supportchat/pkg/types"
)

// ChatLogic runs one inbound message through the reply pipeline.
type ChatLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewChatLogic(ctx context.Context, core *core.Core) *ChatLogic {
	return &ChatLogic{
		ctx:  ctx,
		core: core,
	}
}

type SendMessageRequest struct {
	Message       string
	SessionID     string
	Channel       types.ChannelType
	ChannelUserID string
}

type SendMessageResponse struct {
	Reply          string `json:"reply"`
	SessionID      string `json:"sessionId"`
	ProcessingTime int64  `json:"processingTime"`
}

type ToolResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (l *ChatLogic) validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.Validation("ChatLogic.validateMessage.empty", i18n.ERROR_MESSAGE_EMPTY)
	}
	if limit := l.core.Cfg().Chat.MaxMessageLength; utf8.RuneCountInString(message) > limit {
		return errors.Validation("ChatLogic.validateMessage.tooLong", i18n.ERROR_MESSAGE_TOO_LONG).
			WithData(map[string]interface{}{"Max": limit})
	}
	return nil
}

func (l *ChatLogic) SendMessage(req SendMessageRequest) (*SendMessageResponse, error) {
	start := time.Now()

	if err := l.validateMessage(req.Message); err != nil {
		return nil, err
	}
	if req.Channel == "" {
		req.Channel = types.CHANNEL_WEB
	}

	conversationID, err := l.resolveConversation(req.SessionID)
	if err != nil {
		return nil, l.fail("", err)
	}

	unlock, err := l.core.Locks().Lock(l.ctx, conversationID)
	if err != nil {
		return nil, l.fail(conversationID, errors.New("ChatLogic.SendMessage.Lock", i18n.ERROR_INTERNAL, err))
	}
	defer unlock()

	slog.Info("processing chat message",
		slog.String("conversation_id", conversationID),
		slog.String("channel", string(req.Channel)),
		slog.Int("message_length", utf8.RuneCountInString(req.Message)))

	res, err := l.process(start, conversationID, req)
	if err != nil {
		return nil, l.fail(conversationID, err)
	}
	return res, nil
}

func (l *ChatLogic) process(start time.Time, conversationID string, req SendMessageRequest) (*SendMessageResponse, error) {
	conversations := NewConversationLogic(l.ctx, l.core)

	userMessage, err := conversations.AddMessage(AddMessageArgs{
		ConversationID: conversationID,
		Sender:         types.MESSAGE_SENDER_USER,
		Text:           req.Message,
		Channel:        req.Channel,
		ChannelUserID:  req.ChannelUserID,
	})
	if err != nil {
		return nil, errors.Trace("ChatLogic.process.AddMessage.user", err)
	}
	l.core.Bus().Publish(l.ctx, eventbus.NewEvent(eventbus.MESSAGE_RECEIVED, eventbus.MessageReceivedPayload{
		ConversationID: conversationID,
		MessageID:      userMessage.ID,
		Text:           req.Message,
		Sender:         string(types.MESSAGE_SENDER_USER),
	}))

	history, err := conversations.GetRecentMessagesForContext(conversationID, l.core.Cfg().Chat.MaxConversationHistory)
	if err != nil {
		return nil, errors.Trace("ChatLogic.process.GetRecentMessagesForContext", err)
	}

	knowledge, err := NewKnowledgeLogic(l.ctx, l.core).FormatForPrompt()
	if err != nil {
		return nil, errors.Trace("ChatLogic.process.FormatForPrompt", err)
	}

	toolDefs, err := l.toolDefinitions()
	if err != nil {
		return nil, err
	}

	reply, err := l.core.Srv().AI().GenerateReply(l.ctx, ai.Context{
		ConversationID: conversationID,
		Messages:       history,
		Knowledge:      knowledge,
		Tools:          toolDefs,
	})
	if err != nil {
		return nil, errors.Trace("ChatLogic.process.GenerateReply", err)
	}

	text := reply.Text
	if len(reply.ToolCalls) > 0 {
		text = SummarizeToolResults(l.executeTools(reply.ToolCalls))
	}

	aiMessage, err := conversations.AddMessage(AddMessageArgs{
		ConversationID: conversationID,
		Sender:         types.MESSAGE_SENDER_AI,
		Text:           text,
		Channel:        req.Channel,
		ChannelUserID:  req.ChannelUserID,
		Metadata: types.MessageMetadata{
			LLMModel:       reply.Metadata.Model,
			Tokens:         reply.Metadata.Tokens,
			ProcessingTime: reply.Metadata.ProcessingTime,
			ToolCalls:      len(reply.ToolCalls),
		},
	})
	if err != nil {
		return nil, errors.Trace("ChatLogic.process.AddMessage.ai", err)
	}

	processingTime := time.Since(start).Milliseconds()
	l.core.Bus().Publish(l.ctx, eventbus.NewEvent(eventbus.MESSAGE_SENT, eventbus.MessageSentPayload{
		ConversationID: conversationID,
		MessageID:      aiMessage.ID,
		Text:           text,
		ProcessingTime: processingTime,
	}))

	slog.Info("chat message processed",
		slog.String("conversation_id", conversationID),
		slog.Int64("processing_time_ms", processingTime))

	return &SendMessageResponse{
		Reply:          text,
		SessionID:      conversationID,
		ProcessingTime: processingTime,
	}, nil
}

// resolveConversation returns the conversation to append to. An unknown
// session id starts a new conversation and keeps the supplied id in its
// metadata.
func (l *ChatLogic) resolveConversation(sessionID string) (string, error) {
	conversations := NewConversationLogic(l.ctx, l.core)

	var metadata types.Metadata
	if sessionID != "" {
		exists, err := conversations.ConversationExists(sessionID)
		if err != nil {
			return "", errors.Trace("ChatLogic.resolveConversation", err)
		}
		if exists {
			return sessionID, nil
		}
		slog.Warn("session id not found, creating new conversation", slog.String("session_id", sessionID))
		metadata = types.Metadata{"originalSessionId": sessionID}
	}

	conversation, err := conversations.CreateConversation(metadata)
	if err != nil {
		return "", errors.Trace("ChatLogic.resolveConversation", err)
	}
	l.core.Bus().Publish(l.ctx, eventbus.NewEvent(eventbus.CONVERSATION_STARTED, eventbus.ConversationStartedPayload{
		ConversationID: conversation.ID,
	}))
	return conversation.ID, nil
}

func (l *ChatLogic) toolDefinitions() ([]ai.ToolDefinition, error) {
	if !l.core.Cfg().Tools.Enabled || l.core.Tools().Count() == 0 {
		return nil, nil
	}
	defs, err := l.core.Tools().Definitions(l.ctx)
	if err != nil {
		return nil, errors.New("ChatLogic.toolDefinitions", i18n.ERROR_INTERNAL, err)
	}
	return defs, nil
}

// executeTools runs every requested call independently; failures are
// captured in the result instead of aborting the request.
func (l *ChatLogic) executeTools(calls []ai.ToolCall) []ToolResult {
	return lo.Map(calls, func(call ai.ToolCall, _ int) ToolResult {
		output, err := l.core.Tools().Execute(l.ctx, call.Name, call.Arguments)
		if err != nil {
			return ToolResult{Name: call.Name, Success: false, Error: err.Error()}
		}
		return ToolResult{Name: call.Name, Success: true, Output: output}
	})
}

// SummarizeToolResults renders tool outcomes as the customer facing reply.
func SummarizeToolResults(results []ToolResult) string {
	var sb strings.Builder
	sb.WriteString("Here is what I found:")
	for _, r := range results {
		if r.Success {
			sb.WriteString(fmt.Sprintf("\n\n- %s: %s", r.Name, r.Output))
		} else {
			sb.WriteString(fmt.Sprintf("\n\n- %s failed: %s", r.Name, r.Error))
		}
	}
	return sb.String()
}

func (l *ChatLogic) fail(conversationID string, err error) error {
	slog.Error("failed to process chat message",
		slog.String("conversation_id", conversationID),
		slog.String("kind", string(errors.KindOf(err))),
		slog.String("error", err.Error()))

	l.core.Bus().Publish(l.ctx, eventbus.NewEvent(eventbus.LLM_REQUEST_FAILED, eventbus.RequestFailedPayload{
		ConversationID: conversationID,
		Error:          publicMessage(err),
	}))
	return err
}

// publicMessage is the support safe text of err.
func publicMessage(err error) string {
	ce, ok := errors.As(err)
	if !ok {
		return i18n.Default().Get(i18n.DEFAULT_LANG, i18n.ERROR_INTERNAL)
	}
	return i18n.Default().GetWithData(i18n.DEFAULT_LANG, ce.Message(), ce.Data())
}

type HistoryMessage struct {
	ID        string              `json:"id"`
	Sender    types.MessageSender `json:"sender"`
	Text      string              `json:"text"`
	Timestamp time.Time           `json:"timestamp"`
}

type ConversationHistory struct {
	SessionID string           `json:"sessionId"`
	Messages  []HistoryMessage `json:"messages"`
}

func (l *ChatLogic) GetConversationHistory(id string) (*ConversationHistory, error) {
	conversations := NewConversationLogic(l.ctx, l.core)
	conversation, err := conversations.GetConversation(id)
	if err != nil {
		return nil, errors.Trace("ChatLogic.GetConversationHistory", err)
	}
	list, err := conversations.GetHistory(id, 0)
	if err != nil {
		return nil, errors.Trace("ChatLogic.GetConversationHistory", err)
	}
	return &ConversationHistory{
		SessionID: conversation.ID,
		Messages: lo.Map(list, func(item *types.Message, _ int) HistoryMessage {
			return HistoryMessage{
				ID:        item.ID,
				Sender:    item.Sender,
				Text:      item.Text,
				Timestamp: item.CreatedAt,
			}
		}),
	}, nil
}
