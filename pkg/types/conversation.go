package types

import "time"

type ConversationStatus string

const (
	CONVERSATION_STATUS_ACTIVE ConversationStatus = "active"
	CONVERSATION_STATUS_CLOSED ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	return s == CONVERSATION_STATUS_ACTIVE || s == CONVERSATION_STATUS_CLOSED
}

type Conversation struct {
	ID        string             `db:"id" json:"id"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
	Metadata  Metadata           `db:"metadata" json:"metadata"`
	Status    ConversationStatus `db:"status" json:"status"`
}
