package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "sc_"

const (
	TABLE_CONVERSATIONS     = TableName("conversations")
	TABLE_MESSAGES          = TableName("messages")
	TABLE_KNOWLEDGE_ENTRIES = TableName("knowledge_entries")
)
