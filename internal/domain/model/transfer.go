// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"time"

	"github.com/google/uuid"
)

// OwnershipTransfer is a pending ownership hand-off for a group. At most
// one pending transfer exists per group; accepted or rejected transfers are
// hard-deleted, the outcome lives in audit records and mutated memberships.
type OwnershipTransfer struct {
	UID        uuid.UUID `json:"uid"`
	GroupUID   uuid.UUID `json:"group_uid"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConflictCodeTransferAlreadyPending is the machine-stable conflict code
// returned when a group already has a pending transfer.
const ConflictCodeTransferAlreadyPending = "TRANSFER_ALREADY_PENDING"
