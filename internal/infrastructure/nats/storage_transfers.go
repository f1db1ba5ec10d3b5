// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// The pending transfer row lives at a fixed per-group key, so kv.Create
// doubles as the at-most-one-pending unique constraint. A transfer id
// index points back at the group for lookups by id.

// GetPendingTransfer retrieves the pending transfer of a group, if any.
func (s *storage) GetPendingTransfer(ctx context.Context, groupUID uuid.UUID) (*model.OwnershipTransfer, error) {
	transfer := &model.OwnershipTransfer{}
	_, err := s.get(ctx, constants.KVBucketNameTransfers, fmt.Sprintf(constants.KVKeyPendingTransfer, groupUID), transfer)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errs.NewNotFound("no pending transfer for group")
		}
		slog.ErrorContext(ctx, "failed to get pending transfer", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to get pending transfer")
	}
	return transfer, nil
}

// GetTransfer retrieves a transfer by id through the id index.
func (s *storage) GetTransfer(ctx context.Context, transferUID uuid.UUID) (*model.OwnershipTransfer, error) {
	var groupUID uuid.UUID
	_, err := s.get(ctx, constants.KVBucketNameTransfers, fmt.Sprintf(constants.KVKeyTransferIndex, transferUID), &groupUID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errs.NewNotFound("ownership transfer not found")
		}
		return nil, errs.NewServiceUnavailable("failed to get ownership transfer")
	}

	transfer, err := s.GetPendingTransfer(ctx, groupUID)
	if err != nil {
		return nil, err
	}
	if transfer.UID != transferUID {
		return nil, errs.NewNotFound("ownership transfer not found")
	}
	return transfer, nil
}

// CreatePendingTransfer stores a new pending transfer, enforcing the
// at-most-one-pending constraint per group.
func (s *storage) CreatePendingTransfer(ctx context.Context, transfer *model.OwnershipTransfer) error {
	key := fmt.Sprintf(constants.KVKeyPendingTransfer, transfer.GroupUID)
	if _, err := s.create(ctx, constants.KVBucketNameTransfers, key, transfer); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			existing, getErr := s.GetPendingTransfer(ctx, transfer.GroupUID)
			existingID := ""
			if getErr == nil {
				existingID = existing.UID.String()
			}
			slog.WarnContext(ctx, "pending transfer already exists",
				"group_uid", transfer.GroupUID,
				"existing_transfer_uid", existingID)
			return errs.NewConflictWithCode("a pending transfer already exists for this group",
				model.ConflictCodeTransferAlreadyPending, existingID)
		}
		slog.ErrorContext(ctx, "failed to create pending transfer", "error", err, "group_uid", transfer.GroupUID)
		return errs.NewServiceUnavailable("failed to create ownership transfer")
	}

	indexKey := fmt.Sprintf(constants.KVKeyTransferIndex, transfer.UID)
	if _, err := s.put(ctx, constants.KVBucketNameTransfers, indexKey, transfer.GroupUID); err != nil {
		if delErr := s.delete(ctx, constants.KVBucketNameTransfers, key); delErr != nil {
			slog.ErrorContext(ctx, "failed to roll back transfer create", "error", delErr, "key", key)
		}
		slog.ErrorContext(ctx, "failed to create transfer index", "error", err, "transfer_uid", transfer.UID)
		return errs.NewServiceUnavailable("failed to create ownership transfer")
	}

	slog.DebugContext(ctx, "nats storage: pending transfer created",
		"transfer_uid", transfer.UID,
		"group_uid", transfer.GroupUID)
	return nil
}

// DeleteTransfer removes a transfer row and its id index.
func (s *storage) DeleteTransfer(ctx context.Context, transfer *model.OwnershipTransfer) error {
	if err := s.delete(ctx, constants.KVBucketNameTransfers, fmt.Sprintf(constants.KVKeyPendingTransfer, transfer.GroupUID)); err != nil {
		slog.ErrorContext(ctx, "failed to delete pending transfer", "error", err, "group_uid", transfer.GroupUID)
		return errs.NewServiceUnavailable("failed to delete ownership transfer")
	}
	if err := s.delete(ctx, constants.KVBucketNameTransfers, fmt.Sprintf(constants.KVKeyTransferIndex, transfer.UID)); err != nil {
		slog.ErrorContext(ctx, "failed to delete transfer index", "error", err, "transfer_uid", transfer.UID)
		return errs.NewServiceUnavailable("failed to delete ownership transfer")
	}
	return nil
}
