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

// MembershipWriter defines the membership management use cases.
type MembershipWriter interface {
	// ListMemberships returns the memberships of the conversation's group.
	ListMemberships(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) ([]model.ConversationMembership, error)

	// PutMembership grants or changes a user's access level on the
	// conversation's group. Ownership cannot be granted this way.
	PutMembership(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, userID string, level model.AccessLevel) (*model.ConversationMembership, error)

	// RemoveMembership revokes a user's access on the conversation's group.
	RemoveMembership(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, userID string) error
}

// membershipWriterOrchestratorOption configures the membership orchestrator.
type membershipWriterOrchestratorOption func(*membershipWriterOrchestrator)

// WithMembershipStorage sets the membership storage.
func WithMembershipStorage(storage port.MembershipReaderWriter) membershipWriterOrchestratorOption {
	return func(w *membershipWriterOrchestrator) {
		w.memberships = storage
		w.access = accessChecker{memberships: storage}
	}
}

// WithMembershipConversations sets the conversation reader used to resolve
// groups.
func WithMembershipConversations(reader port.ConversationReader) membershipWriterOrchestratorOption {
	return func(w *membershipWriterOrchestrator) {
		w.conversations = reader
	}
}

// WithMembershipTransfers sets the transfer storage. Removing a member
// discards a pending transfer addressed to them.
func WithMembershipTransfers(storage port.TransferReaderWriter) membershipWriterOrchestratorOption {
	return func(w *membershipWriterOrchestrator) {
		w.transfers = storage
	}
}

// WithMembershipPublisher sets the message publisher.
func WithMembershipPublisher(publisher port.MessagePublisher) membershipWriterOrchestratorOption {
	return func(w *membershipWriterOrchestrator) {
		w.publisher = publisher
	}
}

// membershipWriterOrchestrator implements the membership management use cases.
type membershipWriterOrchestrator struct {
	memberships   port.MembershipReaderWriter
	conversations port.ConversationReader
	transfers     port.TransferReaderWriter
	publisher     port.MessagePublisher
	access        accessChecker
}

// NewMembershipWriterOrchestrator creates the membership orchestrator using
// the option pattern.
func NewMembershipWriterOrchestrator(opts ...membershipWriterOrchestratorOption) MembershipWriter {
	uc := &membershipWriterOrchestrator{}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ListMemberships returns the memberships of the conversation's group.
func (mw *membershipWriterOrchestrator) ListMemberships(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) ([]model.ConversationMembership, error) {
	conversation, err := mw.resolveConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if _, err := mw.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessReader); err != nil {
		return nil, err
	}

	memberships, err := mw.memberships.ListGroupMemberships(ctx, conversation.GroupUID)
	if err != nil {
		return nil, err
	}

	out := make([]model.ConversationMembership, 0, len(memberships))
	for _, membership := range memberships {
		out = append(out, *membership)
	}
	return out, nil
}

// PutMembership grants or changes a user's access level. Ownership moves
// only through the transfer flow, so the owner level can neither be granted
// here nor taken away from the current owner.
func (mw *membershipWriterOrchestrator) PutMembership(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, userID string, level model.AccessLevel) (*model.ConversationMembership, error) {
	if userID == "" {
		return nil, errs.NewValidation("membership user id is required")
	}
	if !level.Valid() {
		return nil, errs.NewValidation("unknown access level")
	}
	if level == model.AccessOwner {
		return nil, errs.NewValidation("ownership is granted through transfer, not membership")
	}

	conversation, err := mw.resolveConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if _, err := mw.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessManager); err != nil {
		return nil, err
	}
	if userID == conversation.OwnerUserID {
		return nil, errs.NewValidation("the owner's membership cannot be changed")
	}

	slog.DebugContext(ctx, "executing put membership use case",
		"group_uid", conversation.GroupUID,
		"level", level,
	)

	now := time.Now().UTC()
	action := model.AuditActionAdd
	from := ""

	existing, err := mw.memberships.GetMembership(ctx, conversation.GroupUID, userID)
	switch {
	case err == nil:
		if existing.AccessLevel == level {
			return existing, nil
		}
		action = model.AuditActionUpdate
		from = string(existing.AccessLevel)
	case isNotFound(err):
	default:
		return nil, err
	}

	membership := &model.ConversationMembership{
		GroupUID:    conversation.GroupUID,
		UserID:      userID,
		AccessLevel: level,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		membership.CreatedAt = existing.CreatedAt
	}
	if err := mw.memberships.PutMembership(ctx, membership); err != nil {
		return nil, err
	}

	mw.publishAudit(ctx, &model.MembershipAudit{
		Action:       action,
		Actor:        principal.UserID,
		Conversation: conversationUID,
		Target:       userID,
		From:         from,
		To:           string(level),
		OccurredAt:   now,
	})

	return membership, nil
}

// RemoveMembership revokes a user's access on the conversation's group.
// The owner's membership cannot be removed; ownership moves via transfer.
func (mw *membershipWriterOrchestrator) RemoveMembership(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, userID string) error {
	conversation, err := mw.resolveConversation(ctx, conversationUID)
	if err != nil {
		return err
	}
	if _, err := mw.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessManager); err != nil {
		return err
	}
	if userID == conversation.OwnerUserID {
		return errs.NewValidation("the owner's membership cannot be removed")
	}

	existing, err := mw.memberships.GetMembership(ctx, conversation.GroupUID, userID)
	if err != nil {
		return err
	}

	if err := mw.memberships.DeleteMembership(ctx, conversation.GroupUID, userID); err != nil {
		return err
	}

	// A transfer addressed to a removed member can never be accepted;
	// discard it so the group is free to start another.
	if mw.transfers != nil {
		if pending, getErr := mw.transfers.GetPendingTransfer(ctx, conversation.GroupUID); getErr == nil && pending.ToUserID == userID {
			if delErr := mw.transfers.DeleteTransfer(ctx, pending); delErr != nil {
				slog.WarnContext(ctx, "failed to discard pending transfer", "error", delErr, "group_uid", conversation.GroupUID)
			}
		}
	}

	mw.publishAudit(ctx, &model.MembershipAudit{
		Action:       model.AuditActionRemove,
		Actor:        principal.UserID,
		Conversation: conversationUID,
		Target:       userID,
		From:         string(existing.AccessLevel),
		OccurredAt:   time.Now().UTC(),
	})

	return nil
}

// resolveConversation loads a live conversation.
func (mw *membershipWriterOrchestrator) resolveConversation(ctx context.Context, conversationUID uuid.UUID) (*model.Conversation, error) {
	conversation, _, err := mw.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if conversation.DeletedAt != nil {
		return nil, errs.NewNotFound("conversation not found")
	}
	return conversation, nil
}

// publishAudit emits a membership audit record, logging on failure without
// failing the mutation.
func (mw *membershipWriterOrchestrator) publishAudit(ctx context.Context, audit *model.MembershipAudit) {
	if mw.publisher == nil {
		return
	}
	if err := mw.publisher.Audit(ctx, constants.AuditMembershipSubject, audit); err != nil {
		slog.ErrorContext(ctx, "failed to publish membership audit",
			"error", err,
			"audit", audit.String(),
		)
		return
	}
	slog.InfoContext(ctx, "membership audit published", audit.LogAttrs()...)
}
