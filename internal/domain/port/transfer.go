// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// TransferReader defines read operations on ownership transfers.
type TransferReader interface {
	// GetPendingTransfer retrieves the pending transfer of a group, if any.
	GetPendingTransfer(ctx context.Context, groupUID uuid.UUID) (*model.OwnershipTransfer, error)

	// GetTransfer retrieves a transfer by id.
	GetTransfer(ctx context.Context, transferUID uuid.UUID) (*model.OwnershipTransfer, error)
}

// TransferWriter defines write operations on ownership transfers.
type TransferWriter interface {
	// CreatePendingTransfer stores a new pending transfer. The at-most-one
	// pending constraint per group is enforced by the store; a violation
	// surfaces as a Conflict carrying the existing transfer id.
	CreatePendingTransfer(ctx context.Context, transfer *model.OwnershipTransfer) error

	// DeleteTransfer removes a transfer row.
	DeleteTransfer(ctx context.Context, transfer *model.OwnershipTransfer) error
}

// TransferReaderWriter combines transfer reads and writes.
type TransferReaderWriter interface {
	TransferReader
	TransferWriter
}
