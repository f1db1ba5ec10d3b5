// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/cursor"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// ConversationReader defines the conversation read use cases.
type ConversationReader interface {
	// GetConversation retrieves a conversation visible to the principal.
	GetConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) (*model.ConversationDetail, uint64, error)

	// ListConversations lists conversations visible to the principal.
	ListConversations(ctx context.Context, principal model.Principal, query model.ConversationListQuery) (*model.PagedConversations, error)

	// ListForks lists the fork tree of the conversation's group.
	ListForks(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) ([]model.ConversationForkSummary, error)

	// AdminListConversations lists conversations across all tenants,
	// optionally including soft-deleted ones. Admin credential only.
	AdminListConversations(ctx context.Context, principal model.Principal, query model.AdminConversationListQuery) (*model.PagedConversations, error)
}

// conversationReaderOrchestratorOption configures the reader orchestrator.
type conversationReaderOrchestratorOption func(*conversationReaderOrchestrator)

// WithConversationStorage sets the conversation storage reader.
func WithConversationStorage(reader port.ConversationReader) conversationReaderOrchestratorOption {
	return func(r *conversationReaderOrchestrator) {
		r.conversations = reader
	}
}

// WithMembershipReader sets the membership reader.
func WithMembershipReader(reader port.MembershipReader) conversationReaderOrchestratorOption {
	return func(r *conversationReaderOrchestrator) {
		r.memberships = reader
		r.access = accessChecker{memberships: reader}
	}
}

// WithLocatorReader sets the locator store used to flag in-flight responses.
func WithLocatorReader(locators port.LocatorStore) conversationReaderOrchestratorOption {
	return func(r *conversationReaderOrchestrator) {
		r.locators = locators
	}
}

// conversationReaderOrchestrator implements the conversation read use cases.
type conversationReaderOrchestrator struct {
	conversations port.ConversationReader
	memberships   port.MembershipReader
	locators      port.LocatorStore
	access        accessChecker
}

// NewConversationReaderOrchestrator creates the reader orchestrator using
// the option pattern.
func NewConversationReaderOrchestrator(opts ...conversationReaderOrchestratorOption) ConversationReader {
	rc := &conversationReaderOrchestrator{}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// GetConversation retrieves a conversation visible to the principal.
func (cr *conversationReaderOrchestrator) GetConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) (*model.ConversationDetail, uint64, error) {
	slog.DebugContext(ctx, "executing get conversation use case",
		"conversation_uid", conversationUID,
	)

	conversation, revision, err := cr.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, 0, err
	}
	if conversation.DeletedAt != nil {
		return nil, 0, errs.NewNotFound("conversation not found")
	}

	level, err := cr.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessReader)
	if err != nil {
		return nil, 0, err
	}

	detail := &model.ConversationDetail{
		ConversationSummary: model.ConversationSummary{
			Conversation: *conversation,
			AccessLevel:  level,
		},
	}

	// Best-effort flag: a locator lookup failure never fails the read.
	if cr.locators != nil {
		if _, locErr := cr.locators.GetLocator(ctx, conversationUID); locErr == nil {
			detail.HasResponseInProgress = true
		}
	}

	return detail, revision, nil
}

// ListConversations lists conversations visible to the principal across
// all groups the user belongs to.
func (cr *conversationReaderOrchestrator) ListConversations(ctx context.Context, principal model.Principal, query model.ConversationListQuery) (*model.PagedConversations, error) {
	if query.Mode == "" {
		query.Mode = model.ListModeAll
	}
	if !query.Mode.Valid() {
		return nil, errs.NewValidation("unknown conversation list mode")
	}
	limit := normalizeLimit(query.Limit)

	if !principal.IsUser() && !principal.Admin {
		return nil, errs.NewForbidden("caller has no user identity")
	}

	slog.DebugContext(ctx, "executing list conversations use case",
		"mode", query.Mode,
		"limit", limit,
		"has_query", query.Query != "",
	)

	groupUIDs, err := cr.memberships.ListUserGroups(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	// The title filter works on decrypted titles, so matching over-fetches
	// a bounded number of candidates rather than scanning everything.
	scanBudget := limit * constants.TitleSearchOverFetchFactor
	if scanBudget > constants.TitleSearchOverFetchCap {
		scanBudget = constants.TitleSearchOverFetchCap
	}

	var summaries []model.ConversationSummary
	needle := strings.ToLower(strings.TrimSpace(query.Query))

	for _, groupUID := range groupUIDs {
		level, err := cr.access.effectiveAccess(ctx, principal, groupUID)
		if err != nil {
			// Skip groups that vanished between the index scan and now.
			continue
		}

		conversations, err := cr.conversations.ListGroupConversations(ctx, groupUID)
		if err != nil {
			return nil, err
		}

		selected := selectByMode(conversations, query.Mode)
		for _, conversation := range selected {
			if needle != "" {
				if len(summaries) >= scanBudget {
					break
				}
				if !strings.Contains(strings.ToLower(conversation.Title), needle) {
					continue
				}
			}
			summaries = append(summaries, model.ConversationSummary{
				Conversation: *conversation,
				AccessLevel:  level,
			})
		}
	}

	// Most recently updated first; id breaks ties so pagination is stable.
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UID.String() < summaries[j].UID.String()
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	page, nextPosition, err := paginateConversations(summaries, query.After, limit)
	if err != nil {
		return nil, err
	}

	return &model.PagedConversations{
		Data:        page,
		AfterCursor: cursor.EncodePtr(nextPosition),
	}, nil
}

// ListForks lists the fork tree of the conversation's group.
func (cr *conversationReaderOrchestrator) ListForks(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) ([]model.ConversationForkSummary, error) {
	conversation, _, err := cr.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if conversation.DeletedAt != nil {
		return nil, errs.NewNotFound("conversation not found")
	}

	if _, err := cr.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessReader); err != nil {
		return nil, err
	}

	conversations, err := cr.conversations.ListGroupConversations(ctx, conversation.GroupUID)
	if err != nil {
		return nil, err
	}

	forks := make([]model.ConversationForkSummary, 0, len(conversations))
	for _, c := range conversations {
		forks = append(forks, model.ConversationForkSummary{
			UID:                     c.UID,
			Title:                   c.Title,
			ForkedAtConversationUID: c.ForkedAtConversationUID,
			ForkedAtEntryUID:        c.ForkedAtEntryUID,
			CreatedAt:               c.CreatedAt,
		})
	}
	return forks, nil
}

// AdminListConversations lists conversations across all tenants. No
// membership scoping applies; the caller's admin credential is the only
// gate.
func (cr *conversationReaderOrchestrator) AdminListConversations(ctx context.Context, principal model.Principal, query model.AdminConversationListQuery) (*model.PagedConversations, error) {
	if !principal.Admin {
		return nil, errs.NewForbidden("operation requires an admin credential")
	}
	limit := normalizeLimit(query.Limit)

	conversations, err := cr.conversations.ListAllConversations(ctx)
	if err != nil {
		return nil, err
	}

	var summaries []model.ConversationSummary
	for _, conversation := range conversations {
		if conversation.DeletedAt == nil {
			if query.OnlyDeleted {
				continue
			}
		} else {
			if !query.IncludeDeleted && !query.OnlyDeleted {
				continue
			}
			if query.DeletedBefore != nil && !conversation.DeletedAt.Before(*query.DeletedBefore) {
				continue
			}
			if query.DeletedAfter != nil && !conversation.DeletedAt.After(*query.DeletedAfter) {
				continue
			}
		}
		summaries = append(summaries, model.ConversationSummary{
			Conversation: *conversation,
			AccessLevel:  model.AccessOwner,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UID.String() < summaries[j].UID.String()
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	page, nextPosition, err := paginateConversations(summaries, query.After, limit)
	if err != nil {
		return nil, err
	}
	return &model.PagedConversations{
		Data:        page,
		AfterCursor: cursor.EncodePtr(nextPosition),
	}, nil
}

// selectByMode applies the list mode to a group's conversations.
func selectByMode(conversations []*model.Conversation, mode model.ConversationListMode) []*model.Conversation {
	switch mode {
	case model.ListModeRoots:
		var roots []*model.Conversation
		for _, c := range conversations {
			if c.IsRoot() {
				roots = append(roots, c)
			}
		}
		return roots
	case model.ListModeLatestFork:
		var latest *model.Conversation
		for _, c := range conversations {
			if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
				latest = c
			}
		}
		if latest == nil {
			return nil
		}
		return []*model.Conversation{latest}
	default:
		return conversations
	}
}

// paginateConversations applies the after-cursor and limit to the sorted
// summaries, returning the page and the position for the next one.
func paginateConversations(summaries []model.ConversationSummary, after *string, limit int) ([]model.ConversationSummary, string, error) {
	position, err := cursor.DecodePtr(after)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if position != "" {
		found := false
		for i, summary := range summaries {
			if summary.UID.String() == position {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			// The anchor was deleted; restart from the top rather than fail.
			start = 0
		}
	}

	end := start + limit
	if end > len(summaries) {
		end = len(summaries)
	}
	page := summaries[start:end]

	nextPosition := ""
	if end < len(summaries) && len(page) > 0 {
		nextPosition = page[len(page)-1].UID.String()
	}
	return page, nextPosition, nil
}

// normalizeLimit clamps a caller-supplied limit into the allowed range.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultPageLimit
	}
	if limit > constants.MaxPageLimit {
		return constants.MaxPageLimit
	}
	return limit
}
