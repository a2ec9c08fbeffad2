package v1

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/quka-ai/supportchat/app/core"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
	"github.com/quka-ai/supportchat/pkg/types"
	"github.com/quka-ai/supportchat/pkg/utils"
)

const (
	MAX_KNOWLEDGE_CATEGORY_LENGTH = 100
	MAX_KNOWLEDGE_TITLE_LENGTH    = 255
)

// KnowledgeLogic manages knowledge entries. Every mutation invalidates the
// prompt cache before it returns.
type KnowledgeLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewKnowledgeLogic(ctx context.Context, core *core.Core) *KnowledgeLogic {
	return &KnowledgeLogic{
		ctx:  ctx,
		core: core,
	}
}

type CreateKnowledgeArgs struct {
	Category string `json:"category" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Priority int    `json:"priority"`
	IsActive *bool  `json:"is_active"`
}

func validateKnowledgeFields(category, title, content *string) []utils.FieldError {
	var problems []utils.FieldError
	check := func(field string, v *string, max int) {
		if v == nil {
			return
		}
		if strings.TrimSpace(*v) == "" {
			problems = append(problems, utils.FieldError{Field: field, Message: field + " is required"})
			return
		}
		if max > 0 && utf8.RuneCountInString(*v) > max {
			problems = append(problems, utils.FieldError{Field: field, Message: field + " is too long"})
		}
	}
	check("category", category, MAX_KNOWLEDGE_CATEGORY_LENGTH)
	check("title", title, MAX_KNOWLEDGE_TITLE_LENGTH)
	check("content", content, 0)
	return problems
}

func (l *KnowledgeLogic) List(includeInactive bool) ([]*types.KnowledgeEntry, uint64, error) {
	opts := types.ListKnowledgeOptions{IncludeInactive: includeInactive}
	list, err := l.core.Store().KnowledgeStore().List(l.ctx, opts)
	if err != nil {
		return nil, 0, errors.Database("KnowledgeLogic.List.KnowledgeStore.List", i18n.ERROR_DATABASE, err)
	}
	total, err := l.core.Store().KnowledgeStore().Total(l.ctx, opts)
	if err != nil {
		return nil, 0, errors.Database("KnowledgeLogic.List.KnowledgeStore.Total", i18n.ERROR_DATABASE, err)
	}
	return list, total, nil
}

func (l *KnowledgeLogic) Get(id string) (*types.KnowledgeEntry, error) {
	if !isUUID(id) {
		return nil, errors.NotFound("KnowledgeLogic.Get.isUUID", i18n.ERROR_KNOWLEDGE_NOT_FOUND)
	}
	entry, err := l.core.Store().KnowledgeStore().Get(l.ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("KnowledgeLogic.Get.KnowledgeStore.Get", i18n.ERROR_KNOWLEDGE_NOT_FOUND)
	}
	if err != nil {
		return nil, errors.Database("KnowledgeLogic.Get.KnowledgeStore.Get", i18n.ERROR_DATABASE, err)
	}
	return entry, nil
}

func (l *KnowledgeLogic) Create(args CreateKnowledgeArgs) (*types.KnowledgeEntry, error) {
	if problems := validateKnowledgeFields(&args.Category, &args.Title, &args.Content); len(problems) > 0 {
		return nil, errors.Validation("KnowledgeLogic.Create.validate", i18n.ERROR_INVALIDARGUMENT).WithDetails(problems)
	}

	now := time.Now()
	entry := types.KnowledgeEntry{
		ID:        uuid.NewString(),
		Category:  strings.TrimSpace(args.Category),
		Title:     strings.TrimSpace(args.Title),
		Content:   args.Content,
		Priority:  args.Priority,
		IsActive:  args.IsActive == nil || *args.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.core.Store().KnowledgeStore().Create(l.ctx, entry); err != nil {
		return nil, errors.Database("KnowledgeLogic.Create.KnowledgeStore.Create", i18n.ERROR_DATABASE, err)
	}
	l.core.Knowledge().Invalidate(l.ctx)
	return &entry, nil
}

func (l *KnowledgeLogic) Update(id string, patch types.KnowledgeEntryPatch) (*types.KnowledgeEntry, error) {
	if patch.IsEmpty() {
		return nil, errors.Validation("KnowledgeLogic.Update.IsEmpty", i18n.ERROR_INVALIDARGUMENT)
	}
	if problems := validateKnowledgeFields(patch.Category, patch.Title, patch.Content); len(problems) > 0 {
		return nil, errors.Validation("KnowledgeLogic.Update.validate", i18n.ERROR_INVALIDARGUMENT).WithDetails(problems)
	}
	if _, err := l.Get(id); err != nil {
		return nil, err
	}

	if err := l.core.Store().KnowledgeStore().Update(l.ctx, id, patch); err != nil {
		return nil, errors.Database("KnowledgeLogic.Update.KnowledgeStore.Update", i18n.ERROR_DATABASE, err)
	}
	l.core.Knowledge().Invalidate(l.ctx)
	return l.Get(id)
}

func (l *KnowledgeLogic) Delete(id string) error {
	if _, err := l.Get(id); err != nil {
		return err
	}
	if err := l.core.Store().KnowledgeStore().Delete(l.ctx, id); err != nil {
		return errors.Database("KnowledgeLogic.Delete.KnowledgeStore.Delete", i18n.ERROR_DATABASE, err)
	}
	l.core.Knowledge().Invalidate(l.ctx)
	return nil
}

// FormatForPrompt returns the cached knowledge document.
func (l *KnowledgeLogic) FormatForPrompt() (string, error) {
	doc, err := l.core.Knowledge().FormatForPrompt(l.ctx)
	if err != nil {
		return "", errors.Database("KnowledgeLogic.FormatForPrompt", i18n.ERROR_DATABASE, err)
	}
	return doc, nil
}

// Seed inserts the default entries when the table is empty and reports how
// many rows were written.
func (l *KnowledgeLogic) Seed() (int, error) {
	total, err := l.core.Store().KnowledgeStore().Total(l.ctx, types.ListKnowledgeOptions{IncludeInactive: true})
	if err != nil {
		return 0, errors.Database("KnowledgeLogic.Seed.KnowledgeStore.Total", i18n.ERROR_DATABASE, err)
	}
	if total > 0 {
		slog.Info("knowledge base already populated, skip seeding", slog.Uint64("total", total))
		return 0, nil
	}

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		now := time.Now()
		for _, item := range DefaultKnowledge() {
			item.ID = uuid.NewString()
			item.IsActive = true
			item.CreatedAt = now
			item.UpdatedAt = now
			if err := l.core.Store().KnowledgeStore().Create(ctx, item); err != nil {
				return errors.Database("KnowledgeLogic.Seed.KnowledgeStore.Create", i18n.ERROR_DATABASE, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.core.Knowledge().Invalidate(l.ctx)
	return len(DefaultKnowledge()), nil
}

func DefaultKnowledge() []types.KnowledgeEntry {
	return []types.KnowledgeEntry{
		{Category: "shipping", Title: "Delivery Areas", Priority: 10,
			Content: "We deliver to the United States, Canada, the United Kingdom and Australia. International orders usually arrive within 7 to 14 business days."},
		{Category: "shipping", Title: "Shipping Rates", Priority: 9,
			Content: "Standard shipping is free above $50 and costs $5.99 otherwise. Express delivery takes 2 to 3 business days and costs $12.99."},
		{Category: "shipping", Title: "Tracking", Priority: 8,
			Content: "A tracking number is emailed as soon as the parcel leaves the warehouse."},
		{Category: "returns", Title: "Return Policy", Priority: 10,
			Content: "Unused items in their original packaging can be returned within 30 days of delivery."},
		{Category: "returns", Title: "Refunds", Priority: 9,
			Content: "Refunds go back to the original payment method within 5 to 7 business days after the return arrives."},
		{Category: "payment", Title: "Accepted Payment Methods", Priority: 10,
			Content: "We accept Visa, Mastercard, American Express, PayPal and Apple Pay."},
		{Category: "customer_support", Title: "Contact", Priority: 10,
			Content: "Support is reachable by email at support@example.com, Monday to Friday from 9 AM to 6 PM EST."},
	}
}
