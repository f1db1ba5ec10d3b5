// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// AttachmentReaderWriter defines the boundary operations on attachment
// records. Blob storage is external; records exist so group deletion can
// cascade and the reaper can honor expiry.
type AttachmentReaderWriter interface {
	// GetAttachment retrieves an attachment record by id.
	GetAttachment(ctx context.Context, attachmentUID uuid.UUID) (*model.Attachment, error)

	// ListGroupAttachments returns the non-deleted attachment records of a group.
	ListGroupAttachments(ctx context.Context, groupUID uuid.UUID) ([]*model.Attachment, error)

	// CreateAttachment stores a new attachment record.
	CreateAttachment(ctx context.Context, attachment *model.Attachment) error

	// MarkAttachmentDeleted soft-deletes an attachment record.
	MarkAttachmentDeleted(ctx context.Context, attachmentUID, groupUID uuid.UUID, deletedAt time.Time) error
}
