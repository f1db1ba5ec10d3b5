// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// ConversationWriter defines the conversation write use cases.
type ConversationWriter interface {
	// CreateConversation creates a root conversation with a fresh group
	// owned by the principal.
	CreateConversation(ctx context.Context, principal model.Principal, title string, metadata map[string]any) (*model.ConversationDetail, uint64, error)

	// UpdateConversation updates title and metadata under a revision check.
	UpdateConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, title *string, metadata map[string]any, expectedRevision uint64) (*model.ConversationDetail, uint64, error)

	// DeleteConversation soft-deletes the whole group of the conversation.
	DeleteConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) error

	// ForkConversation creates a fork of a conversation inside its group.
	// A nil fork entry forks at the current end of the conversation; a set
	// one forks immediately before that entry.
	ForkConversation(ctx context.Context, principal model.Principal, sourceUID uuid.UUID, beforeEntryUID *uuid.UUID, title string) (*model.ConversationDetail, uint64, error)
}

// conversationWriterOrchestratorOption configures the writer orchestrator.
type conversationWriterOrchestratorOption func(*conversationWriterOrchestrator)

// WithConversationWriterStorage sets the conversation storage.
func WithConversationWriterStorage(storage port.ConversationReaderWriter) conversationWriterOrchestratorOption {
	return func(w *conversationWriterOrchestrator) {
		w.conversations = storage
	}
}

// WithConversationWriterMemberships sets the membership storage.
func WithConversationWriterMemberships(storage port.MembershipReaderWriter) conversationWriterOrchestratorOption {
	return func(w *conversationWriterOrchestrator) {
		w.memberships = storage
		w.access = accessChecker{memberships: storage}
	}
}

// WithConversationWriterEntries sets the entry reader used for fork fences.
func WithConversationWriterEntries(entries port.EntryReader) conversationWriterOrchestratorOption {
	return func(w *conversationWriterOrchestrator) {
		w.entries = entries
	}
}

// WithConversationWriterTransfers sets the transfer storage. Deleting a
// group discards its pending ownership transfer.
func WithConversationWriterTransfers(storage port.TransferReaderWriter) conversationWriterOrchestratorOption {
	return func(w *conversationWriterOrchestrator) {
		w.transfers = storage
	}
}

// WithConversationWriterPublisher sets the message publisher.
func WithConversationWriterPublisher(publisher port.MessagePublisher) conversationWriterOrchestratorOption {
	return func(w *conversationWriterOrchestrator) {
		w.publisher = publisher
	}
}

// conversationWriterOrchestrator implements the conversation write use cases.
type conversationWriterOrchestrator struct {
	conversations port.ConversationReaderWriter
	memberships   port.MembershipReaderWriter
	entries       port.EntryReader
	transfers     port.TransferReaderWriter
	publisher     port.MessagePublisher
	access        accessChecker
}

// NewConversationWriterOrchestrator creates the writer orchestrator using
// the option pattern.
func NewConversationWriterOrchestrator(opts ...conversationWriterOrchestratorOption) ConversationWriter {
	uc := &conversationWriterOrchestrator{}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// CreateConversation creates a root conversation with a fresh group.
func (cw *conversationWriterOrchestrator) CreateConversation(ctx context.Context, principal model.Principal, title string, metadata map[string]any) (*model.ConversationDetail, uint64, error) {
	if !principal.IsUser() {
		return nil, 0, errs.NewForbidden("creating a conversation requires a user identity")
	}

	now := time.Now().UTC()
	conversationUID := uuid.New()

	slog.DebugContext(ctx, "executing create conversation use case",
		"conversation_uid", conversationUID,
	)

	// The group id equals the root conversation id.
	group := &model.ConversationGroup{UID: conversationUID, CreatedAt: now}
	if err := cw.conversations.CreateGroup(ctx, group); err != nil {
		return nil, 0, err
	}

	conversation := &model.Conversation{
		UID:         conversationUID,
		GroupUID:    conversationUID,
		OwnerUserID: principal.UserID,
		Title:       title,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	revision, err := cw.conversations.CreateConversation(ctx, conversation)
	if err != nil {
		return nil, 0, err
	}

	membership := &model.ConversationMembership{
		GroupUID:    conversationUID,
		UserID:      principal.UserID,
		AccessLevel: model.AccessOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := cw.memberships.PutMembership(ctx, membership); err != nil {
		// Compensate so a retry starts from nothing.
		if delErr := cw.conversations.HardDeleteGroup(ctx, conversationUID); delErr != nil {
			slog.ErrorContext(ctx, "failed to roll back conversation create", "error", delErr, "group_uid", conversationUID)
		}
		return nil, 0, err
	}

	cw.publishAudit(ctx, &model.MembershipAudit{
		Action:       model.AuditActionAdd,
		Actor:        principal.UserID,
		Conversation: conversationUID,
		Target:       principal.UserID,
		OccurredAt:   now,
	})

	slog.InfoContext(ctx, "conversation created",
		"conversation_uid", conversationUID,
	)

	return &model.ConversationDetail{
		ConversationSummary: model.ConversationSummary{
			Conversation: *conversation,
			AccessLevel:  model.AccessOwner,
		},
	}, revision, nil
}

// UpdateConversation updates title and metadata under a revision check.
func (cw *conversationWriterOrchestrator) UpdateConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, title *string, metadata map[string]any, expectedRevision uint64) (*model.ConversationDetail, uint64, error) {
	conversation, revision, err := cw.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, 0, err
	}
	if conversation.DeletedAt != nil {
		return nil, 0, errs.NewNotFound("conversation not found")
	}

	level, err := cw.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessWriter)
	if err != nil {
		return nil, 0, err
	}
	if expectedRevision != 0 && expectedRevision != revision {
		return nil, 0, errs.NewConflict("conversation was modified concurrently")
	}

	if title != nil {
		conversation.Title = *title
	}
	if metadata != nil {
		conversation.Metadata = metadata
	}
	conversation.UpdatedAt = time.Now().UTC()

	newRevision, err := cw.conversations.UpdateConversation(ctx, conversation, revision)
	if err != nil {
		return nil, 0, err
	}

	return &model.ConversationDetail{
		ConversationSummary: model.ConversationSummary{
			Conversation: *conversation,
			AccessLevel:  level,
		},
	}, newRevision, nil
}

// DeleteConversation soft-deletes the whole group of the conversation.
// Hard eviction happens later once the retention window has passed.
func (cw *conversationWriterOrchestrator) DeleteConversation(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) error {
	conversation, _, err := cw.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return err
	}
	if conversation.DeletedAt != nil {
		return errs.NewNotFound("conversation not found")
	}

	if _, err := cw.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessOwner); err != nil {
		return err
	}

	memberships, err := cw.memberships.ListGroupMemberships(ctx, conversation.GroupUID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := cw.conversations.MarkGroupDeleted(ctx, conversation.GroupUID, now); err != nil {
		return err
	}

	// Memberships go immediately, one audit record per removal. The rest
	// of the group's data waits for retention-based eviction.
	for _, membership := range memberships {
		if err := cw.memberships.DeleteMembership(ctx, membership.GroupUID, membership.UserID); err != nil {
			slog.ErrorContext(ctx, "failed to delete membership during group delete",
				"error", err,
				"group_uid", membership.GroupUID,
			)
			continue
		}
		cw.publishAudit(ctx, &model.MembershipAudit{
			Action:       model.AuditActionRemove,
			Actor:        principal.UserID,
			Conversation: conversation.GroupUID,
			Target:       membership.UserID,
			From:         string(membership.AccessLevel),
			OccurredAt:   now,
		})
	}

	// A pending transfer on a deleted group could otherwise still be
	// accepted, recreating memberships.
	if cw.transfers != nil {
		if pending, getErr := cw.transfers.GetPendingTransfer(ctx, conversation.GroupUID); getErr == nil {
			if delErr := cw.transfers.DeleteTransfer(ctx, pending); delErr != nil {
				slog.WarnContext(ctx, "failed to discard pending transfer", "error", delErr, "group_uid", conversation.GroupUID)
			}
		}
	}

	cw.publishIndexerDelete(ctx, conversation.GroupUID)

	slog.InfoContext(ctx, "conversation group deleted",
		"group_uid", conversation.GroupUID,
	)
	return nil
}

// ForkConversation creates a fork of a conversation inside its group.
func (cw *conversationWriterOrchestrator) ForkConversation(ctx context.Context, principal model.Principal, sourceUID uuid.UUID, beforeEntryUID *uuid.UUID, title string) (*model.ConversationDetail, uint64, error) {
	source, _, err := cw.conversations.GetConversation(ctx, sourceUID)
	if err != nil {
		return nil, 0, err
	}
	if source.DeletedAt != nil {
		return nil, 0, errs.NewNotFound("conversation not found")
	}

	// Forking never mutates the source, so read access suffices.
	level, err := cw.access.requireAccess(ctx, principal, source.GroupUID, model.AccessReader)
	if err != nil {
		return nil, 0, err
	}

	fence, err := cw.computeForkFence(ctx, source, beforeEntryUID)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	if title == "" {
		title = source.Title
	}

	fork := &model.Conversation{
		UID:                     uuid.New(),
		GroupUID:                source.GroupUID,
		OwnerUserID:             source.OwnerUserID,
		Title:                   title,
		ForkedAtConversationUID: &source.UID,
		ForkedAtEntryUID:        fence,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	revision, err := cw.conversations.CreateConversation(ctx, fork)
	if err != nil {
		return nil, 0, err
	}

	slog.InfoContext(ctx, "conversation forked",
		"source_uid", sourceUID,
		"fork_uid", fork.UID,
		"blank_slate", fence == nil,
	)

	return &model.ConversationDetail{
		ConversationSummary: model.ConversationSummary{
			Conversation: *fork,
			AccessLevel:  level,
		},
	}, revision, nil
}

// computeForkFence resolves the stored fork fence: the last source-visible
// entry the fork inherits. Forking before the first visible entry yields a
// nil fence, a blank-slate fork.
func (cw *conversationWriterOrchestrator) computeForkFence(ctx context.Context, source *model.Conversation, beforeEntryUID *uuid.UUID) (*uuid.UUID, error) {
	entries, err := cw.entries.ListGroupEntries(ctx, source.GroupUID)
	if err != nil {
		return nil, err
	}
	steps, err := computeAncestry(ctx, cw.conversations, source)
	if err != nil {
		return nil, err
	}
	visible := filterByAncestry(entries, steps)

	if beforeEntryUID == nil {
		// Fork at the current end.
		if len(visible) == 0 {
			return nil, nil
		}
		fence := visible[len(visible)-1].UID
		return &fence, nil
	}

	for i, entry := range visible {
		if entry.UID == *beforeEntryUID {
			if i == 0 {
				return nil, nil
			}
			fence := visible[i-1].UID
			return &fence, nil
		}
	}
	return nil, errs.NewValidation("fork entry is not visible to the source conversation")
}

// publishAudit emits a membership audit record, logging on failure without
// failing the mutation.
func (cw *conversationWriterOrchestrator) publishAudit(ctx context.Context, audit *model.MembershipAudit) {
	if cw.publisher == nil {
		return
	}
	if err := cw.publisher.Audit(ctx, constants.AuditMembershipSubject, audit); err != nil {
		slog.ErrorContext(ctx, "failed to publish membership audit",
			"error", err,
			"audit", audit.String(),
		)
		return
	}
	slog.InfoContext(ctx, "membership audit published", audit.LogAttrs()...)
}

// publishIndexerDelete tells the external indexer a group's content is gone.
func (cw *conversationWriterOrchestrator) publishIndexerDelete(ctx context.Context, groupUID uuid.UUID) {
	if cw.publisher == nil {
		return
	}
	message, err := (&model.IndexerMessage{Action: model.ActionDeleted}).Build(ctx, groupUID.String())
	if err != nil {
		return
	}
	if err := cw.publisher.Indexer(ctx, constants.IndexEntrySubject, message); err != nil {
		slog.ErrorContext(ctx, "failed to publish indexer delete",
			"error", err,
			"group_uid", groupUID,
		)
	}
}
