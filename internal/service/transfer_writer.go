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

// TransferWriter defines the ownership transfer use cases.
type TransferWriter interface {
	// RequestTransfer opens a pending ownership transfer of the
	// conversation's group to another user. At most one pending transfer
	// exists per group.
	RequestTransfer(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, toUserID string) (*model.OwnershipTransfer, error)

	// AcceptTransfer completes a pending transfer: the recipient becomes
	// the owner and the previous owner is demoted to manager.
	AcceptTransfer(ctx context.Context, principal model.Principal, transferUID uuid.UUID) error

	// RejectTransfer discards a pending transfer. Either side can reject.
	RejectTransfer(ctx context.Context, principal model.Principal, transferUID uuid.UUID) error
}

// transferWriterOrchestratorOption configures the transfer orchestrator.
type transferWriterOrchestratorOption func(*transferWriterOrchestrator)

// WithTransferStorage sets the transfer storage.
func WithTransferStorage(storage port.TransferReaderWriter) transferWriterOrchestratorOption {
	return func(w *transferWriterOrchestrator) {
		w.transfers = storage
	}
}

// WithTransferConversations sets the conversation storage. Accepting a
// transfer rewrites the owner on every conversation of the group.
func WithTransferConversations(storage port.ConversationReaderWriter) transferWriterOrchestratorOption {
	return func(w *transferWriterOrchestrator) {
		w.conversations = storage
	}
}

// WithTransferMemberships sets the membership storage.
func WithTransferMemberships(storage port.MembershipReaderWriter) transferWriterOrchestratorOption {
	return func(w *transferWriterOrchestrator) {
		w.memberships = storage
		w.access = accessChecker{memberships: storage}
	}
}

// WithTransferPublisher sets the message publisher.
func WithTransferPublisher(publisher port.MessagePublisher) transferWriterOrchestratorOption {
	return func(w *transferWriterOrchestrator) {
		w.publisher = publisher
	}
}

// transferWriterOrchestrator implements the ownership transfer use cases.
type transferWriterOrchestrator struct {
	transfers     port.TransferReaderWriter
	conversations port.ConversationReaderWriter
	memberships   port.MembershipReaderWriter
	publisher     port.MessagePublisher
	access        accessChecker
}

// NewTransferWriterOrchestrator creates the transfer orchestrator using the
// option pattern.
func NewTransferWriterOrchestrator(opts ...transferWriterOrchestratorOption) TransferWriter {
	uc := &transferWriterOrchestrator{}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RequestTransfer opens a pending ownership transfer.
func (tw *transferWriterOrchestrator) RequestTransfer(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, toUserID string) (*model.OwnershipTransfer, error) {
	if toUserID == "" {
		return nil, errs.NewValidation("transfer recipient is required")
	}

	conversation, _, err := tw.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if conversation.DeletedAt != nil {
		return nil, errs.NewNotFound("conversation not found")
	}
	if _, err := tw.access.requireAccess(ctx, principal, conversation.GroupUID, model.AccessOwner); err != nil {
		return nil, err
	}
	if toUserID == conversation.OwnerUserID {
		return nil, errs.NewValidation("the recipient already owns this conversation")
	}
	// Ownership only moves inside the group; the recipient must already
	// hold a membership.
	if _, err := tw.memberships.GetMembership(ctx, conversation.GroupUID, toUserID); err != nil {
		if isNotFound(err) {
			return nil, errs.NewValidation("the recipient is not a member of this conversation")
		}
		return nil, err
	}

	transfer := &model.OwnershipTransfer{
		UID:        uuid.New(),
		GroupUID:   conversation.GroupUID,
		FromUserID: conversation.OwnerUserID,
		ToUserID:   toUserID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tw.transfers.CreatePendingTransfer(ctx, transfer); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "ownership transfer requested",
		"group_uid", conversation.GroupUID,
		"transfer_uid", transfer.UID,
	)
	return transfer, nil
}

// AcceptTransfer completes a pending transfer. Only the recipient, or an
// admin, can accept.
func (tw *transferWriterOrchestrator) AcceptTransfer(ctx context.Context, principal model.Principal, transferUID uuid.UUID) error {
	transfer, err := tw.resolveTransferParty(ctx, principal, transferUID, false)
	if err != nil {
		return err
	}

	// The group's root conversation carries the soft-delete mark. A
	// transfer that outlived its group must not recreate memberships.
	root, _, err := tw.conversations.GetConversation(ctx, transfer.GroupUID)
	if err != nil {
		return err
	}
	if root.DeletedAt != nil {
		return errs.NewNotFound("conversation not found")
	}

	now := time.Now().UTC()

	// New owner first. If the demotion below fails the group briefly has
	// two owner-level memberships, which is safe; the reverse order could
	// leave it with none.
	newOwner := &model.ConversationMembership{
		GroupUID:    transfer.GroupUID,
		UserID:      transfer.ToUserID,
		AccessLevel: model.AccessOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, getErr := tw.memberships.GetMembership(ctx, transfer.GroupUID, transfer.ToUserID); getErr == nil {
		newOwner.CreatedAt = existing.CreatedAt
	}
	if err := tw.memberships.PutMembership(ctx, newOwner); err != nil {
		return err
	}

	if previous, getErr := tw.memberships.GetMembership(ctx, transfer.GroupUID, transfer.FromUserID); getErr == nil {
		previous.AccessLevel = model.AccessManager
		previous.UpdatedAt = now
		if err := tw.memberships.PutMembership(ctx, previous); err != nil {
			return err
		}
	}

	if err := tw.rewriteOwner(ctx, transfer.GroupUID, transfer.ToUserID); err != nil {
		return err
	}

	if err := tw.transfers.DeleteTransfer(ctx, transfer); err != nil {
		return err
	}

	tw.publishAudit(ctx, &model.MembershipAudit{
		Action:       model.AuditActionTransfer,
		Actor:        principal.UserID,
		Conversation: transfer.GroupUID,
		From:         transfer.FromUserID,
		To:           transfer.ToUserID,
		OccurredAt:   now,
	})

	slog.InfoContext(ctx, "ownership transfer accepted",
		"group_uid", transfer.GroupUID,
		"transfer_uid", transfer.UID,
	)
	return nil
}

// RejectTransfer discards a pending transfer. The recipient declines it or
// the current owner withdraws it.
func (tw *transferWriterOrchestrator) RejectTransfer(ctx context.Context, principal model.Principal, transferUID uuid.UUID) error {
	transfer, err := tw.resolveTransferParty(ctx, principal, transferUID, true)
	if err != nil {
		return err
	}

	if err := tw.transfers.DeleteTransfer(ctx, transfer); err != nil {
		return err
	}

	slog.InfoContext(ctx, "ownership transfer rejected",
		"group_uid", transfer.GroupUID,
		"transfer_uid", transfer.UID,
	)
	return nil
}

// resolveTransferParty loads a transfer and checks the principal is a party
// to it. Non-parties get NotFound so transfer ids leak nothing.
func (tw *transferWriterOrchestrator) resolveTransferParty(ctx context.Context, principal model.Principal, transferUID uuid.UUID, allowSender bool) (*model.OwnershipTransfer, error) {
	transfer, err := tw.transfers.GetTransfer(ctx, transferUID)
	if err != nil {
		return nil, err
	}
	if principal.Admin {
		return transfer, nil
	}
	if principal.UserID == transfer.ToUserID {
		return transfer, nil
	}
	if allowSender && principal.UserID == transfer.FromUserID {
		return transfer, nil
	}
	return nil, errs.NewNotFound("transfer not found")
}

// rewriteOwner updates the denormalized owner on every conversation of the
// group.
func (tw *transferWriterOrchestrator) rewriteOwner(ctx context.Context, groupUID uuid.UUID, ownerUserID string) error {
	conversations, err := tw.conversations.ListGroupConversations(ctx, groupUID)
	if err != nil {
		return err
	}
	for _, listed := range conversations {
		conversation, revision, err := tw.conversations.GetConversation(ctx, listed.UID)
		if err != nil {
			return err
		}
		conversation.OwnerUserID = ownerUserID
		if _, err := tw.conversations.UpdateConversation(ctx, conversation, revision); err != nil {
			return err
		}
	}
	return nil
}

// publishAudit emits a membership audit record, logging on failure without
// failing the mutation.
func (tw *transferWriterOrchestrator) publishAudit(ctx context.Context, audit *model.MembershipAudit) {
	if tw.publisher == nil {
		return
	}
	if err := tw.publisher.Audit(ctx, constants.AuditMembershipSubject, audit); err != nil {
		slog.ErrorContext(ctx, "failed to publish membership audit",
			"error", err,
			"audit", audit.String(),
		)
		return
	}
	slog.InfoContext(ctx, "membership audit published", audit.LogAttrs()...)
}
