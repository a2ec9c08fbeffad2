package types

import "time"

type KnowledgeEntry struct {
	ID        string    `db:"id" json:"id"`
	Category  string    `db:"category" json:"category"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Priority  int       `db:"priority" json:"priority"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// KnowledgeEntryPatch carries the fields an update may change; nil means untouched.
type KnowledgeEntryPatch struct {
	Category *string `json:"category"`
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Priority *int    `json:"priority"`
	IsActive *bool   `json:"is_active"`
}

func (p KnowledgeEntryPatch) IsEmpty() bool {
	return p.Category == nil && p.Title == nil && p.Content == nil && p.Priority == nil && p.IsActive == nil
}

type ListKnowledgeOptions struct {
	Category        string
	IncludeInactive bool
}
