package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type MessageSender string

const (
	MESSAGE_SENDER_USER MessageSender = "user"
	MESSAGE_SENDER_AI   MessageSender = "ai"
)

func (s MessageSender) Valid() bool {
	return s == MESSAGE_SENDER_USER || s == MESSAGE_SENDER_AI
}

type ChannelType string

const (
	CHANNEL_WEB      ChannelType = "WEB"
	CHANNEL_TELEGRAM ChannelType = "TELEGRAM"
	CHANNEL_WHATSAPP ChannelType = "WHATSAPP"
)

func ParseChannelType(s string) (ChannelType, bool) {
	switch ChannelType(strings.ToUpper(s)) {
	case CHANNEL_WEB:
		return CHANNEL_WEB, true
	case CHANNEL_TELEGRAM:
		return CHANNEL_TELEGRAM, true
	case CHANNEL_WHATSAPP:
		return CHANNEL_WHATSAPP, true
	}
	return "", false
}

type Message struct {
	ID             string          `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversation_id"`
	Sender         MessageSender   `db:"sender" json:"sender"`
	Text           string          `db:"text" json:"text"`
	Channel        ChannelType     `db:"channel" json:"channel"`
	ChannelUserID  string          `db:"channel_user_id" json:"channel_user_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Metadata       MessageMetadata `db:"metadata" json:"metadata"`
}

// MessageMetadata describes how an ai reply was produced.
type MessageMetadata struct {
	LLMModel       string `json:"llmModel,omitempty"`
	Tokens         int    `json:"tokens,omitempty"`
	ProcessingTime int64  `json:"processingTime,omitempty"`
	ToolCalls      int    `json:"toolCalls,omitempty"`
}

func (m MessageMetadata) IsZero() bool {
	return m == MessageMetadata{}
}

func (m MessageMetadata) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface.
func (m *MessageMetadata) Scan(src interface{}) error {
	switch src := src.(type) {
	case []byte:
		return m.scanBytes(src)
	case string:
		return m.scanBytes([]byte(src))
	case nil:
		*m = MessageMetadata{}
		return nil
	}

	return fmt.Errorf("pq: cannot convert %T to MessageMetadata", src)
}

func (m *MessageMetadata) scanBytes(src []byte) error {
	if len(src) == 0 {
		*m = MessageMetadata{}
		return nil
	}
	return json.Unmarshal(src, m)
}

// ContextMessage is the shape of a history entry handed to the llm.
type ContextMessage struct {
	Sender    MessageSender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}
