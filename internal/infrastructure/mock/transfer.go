// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// GetPendingTransfer retrieves the pending transfer of a group, if any.
func (m *MockRepository) GetPendingTransfer(ctx context.Context, groupUID uuid.UUID) (*model.OwnershipTransfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transferUID, ok := m.pendingByGroup[groupUID]
	if !ok {
		return nil, errs.NewNotFound("no pending transfer for this group")
	}
	copied := *m.transfers[transferUID]
	return &copied, nil
}

// GetTransfer retrieves a transfer by id.
func (m *MockRepository) GetTransfer(ctx context.Context, transferUID uuid.UUID) (*model.OwnershipTransfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transfer, ok := m.transfers[transferUID]
	if !ok {
		return nil, errs.NewNotFound("transfer not found")
	}
	copied := *transfer
	return &copied, nil
}

// CreatePendingTransfer stores a new pending transfer, enforcing the
// at-most-one pending constraint per group.
func (m *MockRepository) CreatePendingTransfer(ctx context.Context, transfer *model.OwnershipTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingUID, exists := m.pendingByGroup[transfer.GroupUID]; exists {
		return errs.NewConflictWithCode(
			"a pending transfer already exists for this group",
			model.ConflictCodeTransferAlreadyPending,
			existingUID.String(),
		)
	}
	copied := *transfer
	m.transfers[transfer.UID] = &copied
	m.pendingByGroup[transfer.GroupUID] = transfer.UID
	return nil
}

// DeleteTransfer removes a transfer row.
func (m *MockRepository) DeleteTransfer(ctx context.Context, transfer *model.OwnershipTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.transfers, transfer.UID)
	if m.pendingByGroup[transfer.GroupUID] == transfer.UID {
		delete(m.pendingByGroup, transfer.GroupUID)
	}
	return nil
}

// GetAttachment retrieves an attachment record by id.
func (m *MockRepository) GetAttachment(ctx context.Context, attachmentUID uuid.UUID) (*model.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attachment, ok := m.attachments[attachmentUID]
	if !ok {
		return nil, errs.NewNotFound("attachment not found")
	}
	copied := *attachment
	return &copied, nil
}

// ListGroupAttachments returns the non-deleted attachment records of a group.
func (m *MockRepository) ListGroupAttachments(ctx context.Context, groupUID uuid.UUID) ([]*model.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var attachments []*model.Attachment
	for _, attachment := range m.attachments {
		if attachment.GroupUID != groupUID || attachment.DeletedAt != nil {
			continue
		}
		copied := *attachment
		attachments = append(attachments, &copied)
	}
	return attachments, nil
}

// CreateAttachment stores a new attachment record.
func (m *MockRepository) CreateAttachment(ctx context.Context, attachment *model.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.attachments[attachment.UID]; exists {
		return errs.NewConflict("attachment already exists")
	}
	copied := *attachment
	m.attachments[attachment.UID] = &copied
	return nil
}

// MarkAttachmentDeleted soft-deletes an attachment record.
func (m *MockRepository) MarkAttachmentDeleted(ctx context.Context, attachmentUID, groupUID uuid.UUID, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	attachment, ok := m.attachments[attachmentUID]
	if !ok || attachment.GroupUID != groupUID {
		return errs.NewNotFound("attachment not found")
	}
	attachment.DeletedAt = &deletedAt
	return nil
}
