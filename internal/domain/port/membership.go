// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// MembershipReader defines read operations on group memberships.
type MembershipReader interface {
	// GetMembership retrieves the membership of a user at a group.
	GetMembership(ctx context.Context, groupUID uuid.UUID, userID string) (*model.ConversationMembership, error)

	// ListGroupMemberships returns every membership of a group.
	ListGroupMemberships(ctx context.Context, groupUID uuid.UUID) ([]*model.ConversationMembership, error)

	// ListUserGroups returns the ids of every group the user belongs to.
	ListUserGroups(ctx context.Context, userID string) ([]uuid.UUID, error)
}

// MembershipWriter defines write operations on group memberships.
// Memberships are hard-deleted; audit emission is the caller's duty.
type MembershipWriter interface {
	// PutMembership creates or replaces a membership.
	PutMembership(ctx context.Context, membership *model.ConversationMembership) error

	// DeleteMembership removes a membership. Deleting a membership that
	// does not exist is not an error.
	DeleteMembership(ctx context.Context, groupUID uuid.UUID, userID string) error
}

// MembershipReaderWriter combines membership reads and writes.
type MembershipReaderWriter interface {
	MembershipReader
	MembershipWriter
}
