// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/cursor"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// EntryReader defines the entry read use cases.
type EntryReader interface {
	// GetEntries lists the entries visible to a conversation with channel,
	// epoch and ancestry filtering applied.
	GetEntries(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, query model.EntryListQuery) (*model.PagedEntries, error)

	// GetEntry retrieves a single entry the principal can read.
	GetEntry(ctx context.Context, principal model.Principal, entryUID uuid.UUID) (*model.Entry, error)

	// GetEntryGroupID resolves the group an entry belongs to.
	GetEntryGroupID(ctx context.Context, principal model.Principal, entryUID uuid.UUID) (uuid.UUID, error)
}

// entryReaderOrchestratorOption configures the entry reader orchestrator.
type entryReaderOrchestratorOption func(*entryReaderOrchestrator)

// WithEntryStorage sets the entry storage reader.
func WithEntryStorage(reader port.EntryReader) entryReaderOrchestratorOption {
	return func(r *entryReaderOrchestrator) {
		r.entries = reader
	}
}

// WithEntryConversationReader sets the conversation storage reader.
func WithEntryConversationReader(reader port.ConversationReader) entryReaderOrchestratorOption {
	return func(r *entryReaderOrchestrator) {
		r.conversations = reader
	}
}

// WithEntryMembershipReader sets the membership reader.
func WithEntryMembershipReader(reader port.MembershipReader) entryReaderOrchestratorOption {
	return func(r *entryReaderOrchestrator) {
		r.access = accessChecker{memberships: reader}
	}
}

// WithMemoryCache sets the latest-epoch memory cache.
func WithMemoryCache(cache port.MemoryCache) entryReaderOrchestratorOption {
	return func(r *entryReaderOrchestrator) {
		r.cache = cache
	}
}

// entryReaderOrchestrator implements the entry read use cases.
type entryReaderOrchestrator struct {
	entries       port.EntryReader
	conversations port.ConversationReader
	cache         port.MemoryCache
	access        accessChecker
}

// NewEntryReaderOrchestrator creates the entry reader orchestrator using
// the option pattern.
func NewEntryReaderOrchestrator(opts ...entryReaderOrchestratorOption) EntryReader {
	rc := &entryReaderOrchestrator{}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// GetEntries lists the entries visible to a conversation.
func (er *entryReaderOrchestrator) GetEntries(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, query model.EntryListQuery) (*model.PagedEntries, error) {
	conversation, _, err := er.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if conversation.DeletedAt != nil {
		return nil, errs.NewNotFound("conversation not found")
	}
	if _, err := er.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessReader); err != nil {
		return nil, err
	}

	epochFilter, err := model.ParseMemoryEpochFilter(query.Epoch)
	if err != nil {
		return nil, errs.NewValidation(err.Error())
	}
	if query.Channel != nil && !query.Channel.Valid() {
		return nil, errs.NewValidation("unknown entry channel")
	}
	// MEMORY listings are agent-scoped; without a client id there is no
	// agent whose view this could be.
	if query.Channel != nil && *query.Channel == model.ChannelMemory && query.ClientID == nil {
		return nil, errs.NewForbidden("listing MEMORY entries requires a client id")
	}
	limit := normalizeLimit(query.Limit)

	slog.DebugContext(ctx, "executing get entries use case",
		"conversation_uid", conversationUID,
		"epoch_mode", epochFilter.Mode,
		"all_forks", query.AllForks,
	)

	// The latest-epoch agent view is the hot path; serve it from the cache
	// when the query matches the cached shape exactly.
	cacheable := er.cache != nil &&
		query.ClientID != nil &&
		query.Channel != nil && *query.Channel == model.ChannelMemory &&
		epochFilter.Mode == model.EpochModeLatest &&
		!query.AllForks && query.AfterEntryUID == nil
	if cacheable {
		if cached, cacheErr := er.cache.GetMemoryEntries(ctx, conversationUID, *query.ClientID); cacheErr == nil && cached != nil {
			slog.DebugContext(ctx, "memory cache hit", "conversation_uid", conversationUID)
			return pageCachedEntries(cached.Entries, limit), nil
		} else if cacheErr != nil {
			slog.WarnContext(ctx, "memory cache read failed, falling back to storage", "error", cacheErr)
		}
	}

	visible, err := er.visibleEntries(ctx, conversation, query.AllForks)
	if err != nil {
		return nil, err
	}

	filtered := filterEntries(visible, query.Channel, query.ClientID, epochFilter)

	if cacheable {
		cached := &model.CachedMemoryEntries{Entries: entriesValue(filtered), Epoch: latestEpochOf(filtered)}
		if cacheErr := er.cache.PutMemoryEntries(ctx, conversationUID, *query.ClientID, cached); cacheErr != nil {
			slog.WarnContext(ctx, "memory cache write failed", "error", cacheErr)
		}
	}

	return paginateEntries(filtered, query.AfterEntryUID, limit)
}

// GetEntry retrieves a single entry the principal can read.
func (er *entryReaderOrchestrator) GetEntry(ctx context.Context, principal model.Principal, entryUID uuid.UUID) (*model.Entry, error) {
	entry, err := er.entries.GetEntry(ctx, entryUID)
	if err != nil {
		return nil, err
	}
	if _, err := er.access.requireAccess(ctx, principal, entry.GroupUID, model.AccessReader); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetEntryGroupID resolves the group an entry belongs to.
func (er *entryReaderOrchestrator) GetEntryGroupID(ctx context.Context, principal model.Principal, entryUID uuid.UUID) (uuid.UUID, error) {
	groupUID, err := er.entries.GetEntryGroup(ctx, entryUID)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := er.access.requireAccess(ctx, principal, groupUID, model.AccessReader); err != nil {
		return uuid.Nil, err
	}
	return groupUID, nil
}

// visibleEntries returns the group's entries restricted to the
// conversation's ancestry, in group order.
func (er *entryReaderOrchestrator) visibleEntries(ctx context.Context, conversation *model.Conversation, allForks bool) ([]*model.Entry, error) {
	entries, err := er.entries.ListGroupEntries(ctx, conversation.GroupUID)
	if err != nil {
		return nil, err
	}
	if allForks {
		return entries, nil
	}

	steps, err := computeAncestry(ctx, er.conversations, conversation)
	if err != nil {
		return nil, err
	}
	return filterByAncestry(entries, steps), nil
}

// computeAncestry walks the fork chain up from the target and returns the
// root-first ancestry stack. Each ancestor's fence comes from its child in
// the chain; a nil fence on a fork means a blank-slate fork, which cuts
// the ancestry off entirely.
func computeAncestry(ctx context.Context, conversations port.ConversationReader, target *model.Conversation) ([]model.AncestryStep, error) {
	steps := []model.AncestryStep{{ConversationUID: target.UID}}
	visited := map[uuid.UUID]bool{target.UID: true}

	current := target
	for current.ForkedAtConversationUID != nil {
		if current.ForkedAtEntryUID == nil {
			break
		}
		parentUID := *current.ForkedAtConversationUID
		if visited[parentUID] {
			return nil, errs.NewUnexpected("conversation fork ancestry contains a cycle")
		}
		visited[parentUID] = true
		parent, _, err := conversations.GetConversation(ctx, parentUID)
		if err != nil {
			return nil, err
		}
		steps = append(steps, model.AncestryStep{
			ConversationUID: parent.UID,
			StopAtEntryUID:  current.ForkedAtEntryUID,
		})
		current = parent
	}

	// Reverse into root-first order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}

// filterByAncestry keeps the entries belonging to the ancestry, applying
// each step's inclusive fence. The input must be in group order; the
// output stays in group order.
func filterByAncestry(entries []*model.Entry, steps []model.AncestryStep) []*model.Entry {
	byUID := make(map[uuid.UUID]*model.Entry, len(entries))
	for _, entry := range entries {
		byUID[entry.UID] = entry
	}

	fences := make(map[uuid.UUID]*model.Entry, len(steps))
	included := make(map[uuid.UUID]bool, len(steps))
	for _, step := range steps {
		included[step.ConversationUID] = true
		if step.StopAtEntryUID != nil {
			fences[step.ConversationUID] = byUID[*step.StopAtEntryUID]
		}
	}

	var visible []*model.Entry
	for _, entry := range entries {
		if !included[entry.ConversationUID] {
			continue
		}
		if fence, fenced := fences[entry.ConversationUID]; fenced {
			if fence == nil || !entryAtOrBefore(entry, fence) {
				continue
			}
		}
		visible = append(visible, entry)
	}
	return visible
}

// entryAtOrBefore reports whether e sorts at or before the fence in group
// order: (CreatedAt, UID) ascending, fence inclusive.
func entryAtOrBefore(e, fence *model.Entry) bool {
	if e.CreatedAt.Before(fence.CreatedAt) {
		return true
	}
	if e.CreatedAt.Equal(fence.CreatedAt) {
		return e.UID.String() <= fence.UID.String()
	}
	return false
}

// filterEntries applies the channel, client and epoch filters. The epoch
// filter only applies to explicit MEMORY listings; a combined listing keeps
// every epoch alongside the HISTORY entries.
func filterEntries(entries []*model.Entry, channel *model.Channel, clientID *string, epochFilter *model.MemoryEpochFilter) []*model.Entry {
	var selected []*model.Entry
	for _, entry := range entries {
		if channel != nil && entry.Channel != *channel {
			continue
		}
		if entry.Channel == model.ChannelMemory && clientID != nil {
			if entry.ClientID == nil || *entry.ClientID != *clientID {
				continue
			}
		}
		selected = append(selected, entry)
	}

	if channel == nil || *channel != model.ChannelMemory {
		return selected
	}

	switch epochFilter.Mode {
	case model.EpochModeAll:
		return selected
	case model.EpochModeSpecific:
		return keepMemoryEpoch(selected, epochFilter.Epoch)
	default:
		return keepMemoryEpoch(selected, latestEpochOf(selected))
	}
}

// keepMemoryEpoch drops MEMORY entries whose epoch differs from the given
// one. A nil epoch drops every MEMORY entry.
func keepMemoryEpoch(entries []*model.Entry, epoch *int64) []*model.Entry {
	var kept []*model.Entry
	for _, entry := range entries {
		if entry.Channel == model.ChannelMemory {
			if epoch == nil || entry.Epoch == nil || *entry.Epoch != *epoch {
				continue
			}
		}
		kept = append(kept, entry)
	}
	return kept
}

// latestEpochOf returns the highest epoch among the MEMORY entries, nil
// when there are none.
func latestEpochOf(entries []*model.Entry) *int64 {
	var latest *int64
	for _, entry := range entries {
		if entry.Channel != model.ChannelMemory || entry.Epoch == nil {
			continue
		}
		if latest == nil || *entry.Epoch > *latest {
			epoch := *entry.Epoch
			latest = &epoch
		}
	}
	return latest
}

// paginateEntries applies the after-anchor and limit, encoding the cursor
// for the next page.
func paginateEntries(entries []*model.Entry, after *uuid.UUID, limit int) (*model.PagedEntries, error) {
	start := 0
	if after != nil {
		found := false
		for i, entry := range entries {
			if entry.UID == *after {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, errs.NewValidation("after entry is not visible to this conversation")
		}
	}

	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}

	page := make([]model.Entry, 0, end-start)
	for _, entry := range entries[start:end] {
		page = append(page, *entry)
	}

	result := &model.PagedEntries{Data: page}
	if end < len(entries) && len(page) > 0 {
		result.AfterCursor = cursor.EncodePtr(page[len(page)-1].UID.String())
	}
	return result, nil
}

// limitEntries truncates a cached slice to the requested page size.
func limitEntries(entries []model.Entry, limit int) []model.Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// pageCachedEntries pages a cached slice the same way paginateEntries pages
// the storage view. Cacheable queries never carry an after anchor.
func pageCachedEntries(entries []model.Entry, limit int) *model.PagedEntries {
	page := limitEntries(entries, limit)
	result := &model.PagedEntries{Data: page}
	if len(page) < len(entries) && len(page) > 0 {
		result.AfterCursor = cursor.EncodePtr(page[len(page)-1].UID.String())
	}
	return result
}

// entriesValue converts a pointer slice into the value slice cached values
// carry.
func entriesValue(entries []*model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, *entry)
	}
	return out
}
