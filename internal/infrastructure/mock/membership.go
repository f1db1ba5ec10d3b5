// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// GetMembership retrieves the membership of a user at a group.
func (m *MockRepository) GetMembership(ctx context.Context, groupUID uuid.UUID, userID string) (*model.ConversationMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	membership, ok := m.memberships[membershipKey(groupUID, userID)]
	if !ok {
		return nil, errs.NewNotFound("membership not found")
	}
	copied := *membership
	return &copied, nil
}

// ListGroupMemberships returns every membership of a group.
func (m *MockRepository) ListGroupMemberships(ctx context.Context, groupUID uuid.UUID) ([]*model.ConversationMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var memberships []*model.ConversationMembership
	for _, membership := range m.memberships {
		if membership.GroupUID != groupUID {
			continue
		}
		copied := *membership
		memberships = append(memberships, &copied)
	}
	sort.Slice(memberships, func(i, j int) bool {
		if memberships[i].CreatedAt.Equal(memberships[j].CreatedAt) {
			return memberships[i].UserID < memberships[j].UserID
		}
		return memberships[i].CreatedAt.Before(memberships[j].CreatedAt)
	})
	return memberships, nil
}

// ListUserGroups returns the ids of every group the user belongs to.
func (m *MockRepository) ListUserGroups(ctx context.Context, userID string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var groupUIDs []uuid.UUID
	for _, membership := range m.memberships {
		if membership.UserID == userID {
			groupUIDs = append(groupUIDs, membership.GroupUID)
		}
	}
	sort.Slice(groupUIDs, func(i, j int) bool {
		return groupUIDs[i].String() < groupUIDs[j].String()
	})
	return groupUIDs, nil
}

// PutMembership creates or replaces a membership.
func (m *MockRepository) PutMembership(ctx context.Context, membership *model.ConversationMembership) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *membership
	m.memberships[membershipKey(membership.GroupUID, membership.UserID)] = &copied
	return nil
}

// DeleteMembership removes a membership. Missing memberships are not an error.
func (m *MockRepository) DeleteMembership(ctx context.Context, groupUID uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.memberships, membershipKey(groupUID, userID))
	return nil
}
