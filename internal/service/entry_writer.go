// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// EntryWriter defines the entry write use cases.
type EntryWriter interface {
	// AppendEntries appends entries to a conversation, creating the
	// conversation on first write.
	AppendEntries(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, requests []model.CreateEntryRequest) ([]model.Entry, error)

	// SyncAgentEntry reconciles an agent's full working-memory state
	// against the stored latest epoch.
	SyncAgentEntry(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, contentType string, content json.RawMessage) (*model.SyncResult, error)
}

// entryWriterOrchestratorOption configures the entry writer orchestrator.
type entryWriterOrchestratorOption func(*entryWriterOrchestrator)

// WithEntryWriterStorage sets the entry storage.
func WithEntryWriterStorage(storage port.EntryReaderWriter) entryWriterOrchestratorOption {
	return func(w *entryWriterOrchestrator) {
		w.entries = storage
	}
}

// WithEntryWriterConversations sets the conversation storage.
func WithEntryWriterConversations(storage port.ConversationReaderWriter) entryWriterOrchestratorOption {
	return func(w *entryWriterOrchestrator) {
		w.conversations = storage
	}
}

// WithEntryWriterMemberships sets the membership storage.
func WithEntryWriterMemberships(storage port.MembershipReaderWriter) entryWriterOrchestratorOption {
	return func(w *entryWriterOrchestrator) {
		w.memberships = storage
		w.access = accessChecker{memberships: storage}
	}
}

// WithEntryWriterCache sets the latest-epoch memory cache.
func WithEntryWriterCache(cache port.MemoryCache) entryWriterOrchestratorOption {
	return func(w *entryWriterOrchestrator) {
		w.cache = cache
	}
}

// WithEntryWriterTasks sets the background task queue.
func WithEntryWriterTasks(tasks port.TaskQueue) entryWriterOrchestratorOption {
	return func(w *entryWriterOrchestrator) {
		w.tasks = tasks
	}
}

// WithEntryWriterPublisher sets the message publisher.
func WithEntryWriterPublisher(publisher port.MessagePublisher) entryWriterOrchestratorOption {
	return func(w *entryWriterOrchestrator) {
		w.publisher = publisher
	}
}

// entryWriterOrchestrator implements the entry write use cases.
type entryWriterOrchestrator struct {
	entries       port.EntryReaderWriter
	conversations port.ConversationReaderWriter
	memberships   port.MembershipReaderWriter
	cache         port.MemoryCache
	tasks         port.TaskQueue
	publisher     port.MessagePublisher
	access        accessChecker
}

// NewEntryWriterOrchestrator creates the entry writer orchestrator using
// the option pattern.
func NewEntryWriterOrchestrator(opts ...entryWriterOrchestratorOption) EntryWriter {
	uc := &entryWriterOrchestrator{}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// AppendEntries appends entries to a conversation, creating the
// conversation on first write.
func (ew *entryWriterOrchestrator) AppendEntries(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, requests []model.CreateEntryRequest) ([]model.Entry, error) {
	if len(requests) == 0 {
		return nil, errs.NewValidation("no entries to append")
	}
	for _, request := range requests {
		if !request.Channel.Valid() {
			return nil, errs.NewValidation("unknown entry channel")
		}
		if request.Channel == model.ChannelMemory && !principal.IsAgent() {
			return nil, errs.NewValidation("MEMORY entries require an agent credential")
		}
	}

	conversation, revision, err := ew.conversations.GetConversation(ctx, conversationUID)
	switch {
	case err == nil:
		if conversation.DeletedAt != nil {
			return nil, errs.NewNotFound("conversation not found")
		}
		if _, err := ew.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessWriter); err != nil {
			return nil, err
		}
	case isNotFound(err):
		conversation, revision, err = ew.autoCreateConversation(ctx, principal, conversationUID, requests)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	slog.DebugContext(ctx, "executing append entries use case",
		"conversation_uid", conversation.UID,
		"count", len(requests),
	)

	// Latest epoch is resolved once per batch for MEMORY appends without an
	// explicit epoch.
	var latestEpoch *int64
	needLatest := false
	for _, request := range requests {
		if request.Channel == model.ChannelMemory && request.Epoch == nil {
			needLatest = true
			break
		}
	}
	if needLatest {
		visible, err := ew.visibleMemoryEntries(ctx, conversation, principal.ClientID)
		if err != nil {
			return nil, err
		}
		latestEpoch = latestEpochOfPtr(visible)
	}

	// Distinct creation nanos preserve request order in the group ordering.
	base := time.Now().UTC()
	created := make([]model.Entry, 0, len(requests))
	memoryTouched := false

	for i, request := range requests {
		entry := model.Entry{
			UID:             uuid.New(),
			ConversationUID: conversation.UID,
			GroupUID:        conversation.GroupUID,
			Channel:         request.Channel,
			ContentType:     request.ContentType,
			Content:         request.Content,
			IndexedContent:  request.IndexedContent,
			CreatedAt:       base.Add(time.Duration(i)),
		}

		switch request.Channel {
		case model.ChannelHistory:
			if request.UserID != nil {
				entry.UserID = request.UserID
			} else if principal.IsUser() {
				userID := principal.UserID
				entry.UserID = &userID
			}
			if principal.IsAgent() {
				clientID := principal.ClientID
				entry.ClientID = &clientID
			}
		case model.ChannelMemory:
			clientID := principal.ClientID
			entry.ClientID = &clientID
			if request.Epoch != nil {
				entry.Epoch = request.Epoch
			} else {
				next := int64(1)
				if latestEpoch != nil {
					next = *latestEpoch + 1
				}
				entry.Epoch = &next
				latestEpoch = &next
			}
			memoryTouched = true
		}

		if err := ew.entries.CreateEntry(ctx, &entry); err != nil {
			return created, err
		}
		created = append(created, entry)
		ew.publishIndexerCreate(ctx, &entry)
	}

	ew.touchConversation(ctx, conversation, revision)
	ew.enqueueVectorIndexTask(ctx)

	if memoryTouched && ew.cache != nil && principal.IsAgent() {
		ew.refreshMemoryCache(ctx, conversation, principal.ClientID)
	}

	return created, nil
}

// refreshMemoryCache recomputes the latest-epoch view after an append and
// warms the cache with it. Recompute failures fall back to invalidation so
// a stale view is never served.
func (ew *entryWriterOrchestrator) refreshMemoryCache(ctx context.Context, conversation *model.Conversation, clientID string) {
	visible, err := ew.visibleMemoryEntries(ctx, conversation, clientID)
	if err != nil || len(visible) == 0 {
		if err != nil {
			slog.WarnContext(ctx, "memory cache refresh failed", "error", err)
		}
		if delErr := ew.cache.DeleteMemoryEntries(ctx, conversation.UID, clientID); delErr != nil {
			slog.WarnContext(ctx, "memory cache invalidation failed", "error", delErr)
		}
		return
	}
	cached := &model.CachedMemoryEntries{Entries: entriesValue(visible), Epoch: latestEpochOf(visible)}
	if err := ew.cache.PutMemoryEntries(ctx, conversation.UID, clientID, cached); err != nil {
		slog.WarnContext(ctx, "memory cache warm failed", "error", err)
	}
}

// SyncAgentEntry reconciles an agent's full working-memory state against
// the stored latest epoch. The decision table:
//
//	new == current                  -> no-op
//	current is a proper prefix      -> append the suffix at the same epoch
//	anything else                   -> write the full state at a new epoch
func (ew *entryWriterOrchestrator) SyncAgentEntry(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, contentType string, content json.RawMessage) (*model.SyncResult, error) {
	if !principal.IsAgent() {
		return nil, errs.NewForbidden("memory sync requires an agent credential")
	}

	newItems, err := model.ParseContentItems(content)
	if err != nil {
		return nil, errs.NewValidation(err.Error())
	}

	autoCreated := false
	conversation, revision, err := ew.conversations.GetConversation(ctx, conversationUID)
	switch {
	case err == nil:
		if conversation.DeletedAt != nil {
			return nil, errs.NewNotFound("conversation not found")
		}
		if _, err := ew.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessWriter); err != nil {
			return nil, err
		}
	case isNotFound(err):
		conversation, revision, err = ew.autoCreateConversation(ctx, principal, conversationUID, nil)
		if err != nil {
			return nil, err
		}
		autoCreated = true
	default:
		return nil, err
	}

	current, err := ew.visibleMemoryEntries(ctx, conversation, principal.ClientID)
	if err != nil {
		return nil, err
	}
	currentEpoch := latestEpochOfPtr(current)

	var currentItems []any
	for _, entry := range current {
		items, err := model.ParseContentItems(entry.Content)
		if err != nil {
			return nil, errs.NewUnexpected("stored memory entry is not an item array", err)
		}
		currentItems = append(currentItems, items...)
	}

	slog.DebugContext(ctx, "executing sync agent entry use case",
		"conversation_uid", conversationUID,
		"current_items", len(currentItems),
		"new_items", len(newItems),
	)

	if itemsEqual(currentItems, newItems) {
		return &model.SyncResult{NoOp: true, Epoch: currentEpoch}, nil
	}

	var (
		entryItems       []any
		epoch            int64
		epochIncremented bool
	)
	if len(currentItems) > 0 && len(newItems) > len(currentItems) && itemsPrefix(currentItems, newItems) {
		// Extension: the stored state survives, only the suffix is appended.
		entryItems = newItems[len(currentItems):]
		epoch = *currentEpoch
	} else {
		// Divergence, shrink, clear or first write: the new state replaces
		// everything under a fresh epoch. A first write into an existing
		// conversation starts at epoch 1 without counting as an increment.
		entryItems = newItems
		epoch = 1
		epochIncremented = autoCreated
		if currentEpoch != nil {
			epoch = *currentEpoch + 1
			epochIncremented = true
		}
	}

	entryContent, err := model.MarshalContentItems(entryItems)
	if err != nil {
		return nil, errs.NewUnexpected("failed to encode memory entry", err)
	}

	clientID := principal.ClientID
	entry := model.Entry{
		UID:             uuid.New(),
		ConversationUID: conversation.UID,
		GroupUID:        conversation.GroupUID,
		ClientID:        &clientID,
		Channel:         model.ChannelMemory,
		Epoch:           &epoch,
		ContentType:     contentType,
		Content:         entryContent,
		CreatedAt:       time.Now().UTC(),
	}
	if err := ew.entries.CreateEntry(ctx, &entry); err != nil {
		return nil, err
	}

	ew.touchConversation(ctx, conversation, revision)
	ew.warmMemoryCache(ctx, conversation.UID, clientID, current, &entry, epochIncremented)

	slog.InfoContext(ctx, "agent memory synced",
		"conversation_uid", conversationUID,
		"epoch", epoch,
		"epoch_incremented", epochIncremented,
	)

	return &model.SyncResult{
		Entry:            &entry,
		Epoch:            &epoch,
		EpochIncremented: epochIncremented,
	}, nil
}

// autoCreateConversation creates the conversation on first append. Fork
// metadata on the first entry creates a fork in the parent's group; plain
// appends create a root with a fresh group.
func (ew *entryWriterOrchestrator) autoCreateConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, requests []model.CreateEntryRequest) (*model.Conversation, uint64, error) {
	now := time.Now().UTC()
	title := inferTitle(requests)

	var first model.CreateEntryRequest
	if len(requests) > 0 {
		first = requests[0]
	}

	if first.ForkedAtConversationUID != nil {
		parent, _, err := ew.conversations.GetConversation(ctx, *first.ForkedAtConversationUID)
		if err != nil {
			return nil, 0, err
		}
		// Forking never mutates the parent, so read access suffices.
		if _, err := ew.access.requireAccess(ctx, principal, parent.GroupUID, model.AccessReader); err != nil {
			return nil, 0, err
		}

		fork := &model.Conversation{
			UID:                     conversationUID,
			GroupUID:                parent.GroupUID,
			OwnerUserID:             parent.OwnerUserID,
			Title:                   title,
			ForkedAtConversationUID: first.ForkedAtConversationUID,
			ForkedAtEntryUID:        first.ForkedAtEntryUID,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		revision, err := ew.conversations.CreateConversation(ctx, fork)
		if err != nil {
			return nil, 0, err
		}
		slog.InfoContext(ctx, "conversation auto-created as fork",
			"conversation_uid", conversationUID,
			"parent_uid", parent.UID,
		)
		return fork, revision, nil
	}

	ownerUserID := principal.UserID
	if first.UserID != nil {
		ownerUserID = *first.UserID
	}
	if ownerUserID == "" {
		return nil, 0, errs.NewValidation("creating a conversation requires a user identity")
	}

	group := &model.ConversationGroup{UID: conversationUID, CreatedAt: now}
	if err := ew.conversations.CreateGroup(ctx, group); err != nil {
		return nil, 0, err
	}
	conversation := &model.Conversation{
		UID:         conversationUID,
		GroupUID:    conversationUID,
		OwnerUserID: ownerUserID,
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	revision, err := ew.conversations.CreateConversation(ctx, conversation)
	if err != nil {
		return nil, 0, err
	}
	membership := &model.ConversationMembership{
		GroupUID:    conversationUID,
		UserID:      ownerUserID,
		AccessLevel: model.AccessOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ew.memberships.PutMembership(ctx, membership); err != nil {
		if delErr := ew.conversations.HardDeleteGroup(ctx, conversationUID); delErr != nil {
			slog.ErrorContext(ctx, "failed to roll back auto-create", "error", delErr, "group_uid", conversationUID)
		}
		return nil, 0, err
	}

	slog.InfoContext(ctx, "conversation auto-created",
		"conversation_uid", conversationUID,
	)
	return conversation, revision, nil
}

// visibleMemoryEntries returns the latest-epoch MEMORY entries of one
// client visible along the conversation's ancestry, in group order.
func (ew *entryWriterOrchestrator) visibleMemoryEntries(ctx context.Context, conversation *model.Conversation, clientID string) ([]*model.Entry, error) {
	entries, err := ew.entries.ListGroupEntries(ctx, conversation.GroupUID)
	if err != nil {
		return nil, err
	}
	steps, err := computeAncestry(ctx, ew.conversations, conversation)
	if err != nil {
		return nil, err
	}
	visible := filterByAncestry(entries, steps)

	channel := model.ChannelMemory
	filter := &model.MemoryEpochFilter{Mode: model.EpochModeLatest}
	return filterEntries(visible, &channel, &clientID, filter), nil
}

// warmMemoryCache replaces the cached latest-epoch view after a sync.
func (ew *entryWriterOrchestrator) warmMemoryCache(ctx context.Context, conversationUID uuid.UUID, clientID string, current []*model.Entry, appended *model.Entry, epochIncremented bool) {
	if ew.cache == nil {
		return
	}

	var entries []model.Entry
	if !epochIncremented {
		entries = entriesValue(current)
	}
	entries = append(entries, *appended)

	cached := &model.CachedMemoryEntries{Entries: entries, Epoch: appended.Epoch}
	if err := ew.cache.PutMemoryEntries(ctx, conversationUID, clientID, cached); err != nil {
		slog.WarnContext(ctx, "memory cache warm failed", "error", err)
	}
}

// touchConversation bumps UpdatedAt so latest-fork listings track writes.
// Best-effort: a lost touch only affects ordering, never data.
func (ew *entryWriterOrchestrator) touchConversation(ctx context.Context, conversation *model.Conversation, revision uint64) {
	conversation.UpdatedAt = time.Now().UTC()
	if _, err := ew.conversations.UpdateConversation(ctx, conversation, revision); err != nil {
		slog.DebugContext(ctx, "conversation touch skipped", "error", err, "conversation_uid", conversation.UID)
	}
}

// enqueueVectorIndexTask queues the singleton vector indexing sweep. A
// conflict means one is already queued.
func (ew *entryWriterOrchestrator) enqueueVectorIndexTask(ctx context.Context) {
	if ew.tasks == nil {
		return
	}
	name := model.TaskTypeVectorIndex
	task := &model.Task{
		UID:       uuid.New(),
		Type:      model.TaskTypeVectorIndex,
		Name:      &name,
		RetryAt:   time.Now(),
		CreatedAt: time.Now(),
	}
	if err := ew.tasks.CreateTask(ctx, task); err != nil {
		var conflict errs.Conflict
		if stderrors.As(err, &conflict) {
			return
		}
		slog.WarnContext(ctx, "failed to enqueue vector index task", "error", err)
	}
}

// publishIndexerCreate emits an indexer message for a new entry.
func (ew *entryWriterOrchestrator) publishIndexerCreate(ctx context.Context, entry *model.Entry) {
	if ew.publisher == nil || entry.Channel != model.ChannelHistory {
		return
	}
	message, err := (&model.IndexerMessage{Action: model.ActionCreated}).Build(ctx, entry)
	if err != nil {
		return
	}
	if err := ew.publisher.Indexer(ctx, constants.IndexEntrySubject, message); err != nil {
		slog.ErrorContext(ctx, "failed to publish indexer message",
			"error", err,
			"entry_uid", entry.UID,
		)
	}
}

// inferTitle derives an auto-create title from the first HISTORY entry's
// first text item, truncated to a sane length. A batch with no HISTORY
// entries, or a first HISTORY entry with no text, yields an empty title.
func inferTitle(requests []model.CreateEntryRequest) string {
	title := ""
	for _, request := range requests {
		if request.Channel != model.ChannelHistory {
			continue
		}
		if items, err := model.ParseContentItems(request.Content); err == nil {
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					if text, ok := m["text"].(string); ok && text != "" {
						title = text
						break
					}
				}
			}
		}
		break
	}
	if len(title) > constants.AutoCreateTitleMaxLen {
		title = title[:constants.AutoCreateTitleMaxLen]
	}
	return title
}

// isNotFound reports whether the error is the storage NotFound value.
func isNotFound(err error) bool {
	var notFound errs.NotFound
	return stderrors.As(err, &notFound)
}

// latestEpochOfPtr is latestEpochOf for the writer's pointer slices.
func latestEpochOfPtr(entries []*model.Entry) *int64 {
	return latestEpochOf(entries)
}

// itemsEqual compares two parsed item arrays structurally.
func itemsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// itemsPrefix reports whether a is a prefix of b.
func itemsPrefix(a, b []any) bool {
	if len(a) > len(b) {
		return false
	}
	return itemsEqual(a, b[:len(a)])
}
