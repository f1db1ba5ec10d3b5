// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Attachment records carry metadata only; the blobs live in external
// storage. An id lookup walks the group prefix because attachments are
// always reached through their group.

// GetAttachment retrieves an attachment record by id.
func (s *storage) GetAttachment(ctx context.Context, attachmentUID uuid.UUID) (*model.Attachment, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameAttachments, fmt.Sprintf("group.*.attach.%s", attachmentUID))
	if err != nil || len(keys) == 0 {
		return nil, errs.NewNotFound("attachment not found")
	}

	attachment := &model.Attachment{}
	if _, err := s.get(ctx, constants.KVBucketNameAttachments, keys[0], attachment); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errs.NewNotFound("attachment not found")
		}
		return nil, errs.NewServiceUnavailable("failed to get attachment")
	}
	return attachment, nil
}

// ListGroupAttachments returns the non-deleted attachment records of a group.
func (s *storage) ListGroupAttachments(ctx context.Context, groupUID uuid.UUID) ([]*model.Attachment, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameAttachments, fmt.Sprintf(constants.KVKeyAttachmentPrefix, groupUID))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list group attachments", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to list attachments")
	}

	attachments := make([]*model.Attachment, 0, len(keys))
	for _, key := range keys {
		attachment := &model.Attachment{}
		if _, err := s.get(ctx, constants.KVBucketNameAttachments, key, attachment); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list attachments")
		}
		if attachment.DeletedAt != nil {
			continue
		}
		attachments = append(attachments, attachment)
	}
	return attachments, nil
}

// CreateAttachment stores a new attachment record.
func (s *storage) CreateAttachment(ctx context.Context, attachment *model.Attachment) error {
	key := fmt.Sprintf(constants.KVKeyAttachment, attachment.GroupUID, attachment.UID)
	if _, err := s.create(ctx, constants.KVBucketNameAttachments, key, attachment); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return errs.NewConflict("attachment already exists")
		}
		slog.ErrorContext(ctx, "failed to create attachment", "error", err, "attachment_uid", attachment.UID)
		return errs.NewServiceUnavailable("failed to create attachment")
	}
	return nil
}

// MarkAttachmentDeleted soft-deletes an attachment record.
func (s *storage) MarkAttachmentDeleted(ctx context.Context, attachmentUID, groupUID uuid.UUID, deletedAt time.Time) error {
	key := fmt.Sprintf(constants.KVKeyAttachment, groupUID, attachmentUID)
	attachment := &model.Attachment{}
	rev, err := s.get(ctx, constants.KVBucketNameAttachments, key, attachment)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return errs.NewNotFound("attachment not found")
		}
		return errs.NewServiceUnavailable("failed to delete attachment")
	}

	attachment.DeletedAt = &deletedAt
	if _, err := s.putWithRevision(ctx, constants.KVBucketNameAttachments, key, attachment, rev); err != nil {
		return errs.NewConflict("attachment was modified concurrently")
	}
	return nil
}
