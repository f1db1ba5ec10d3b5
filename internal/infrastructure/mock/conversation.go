// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// GetGroup retrieves group metadata by id.
func (m *MockRepository) GetGroup(ctx context.Context, groupUID uuid.UUID) (*model.ConversationGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.groups[groupUID]
	if !ok {
		return nil, errs.NewNotFound("conversation group not found")
	}
	copied := *group
	return &copied, nil
}

// CreateGroup stores new group metadata.
func (m *MockRepository) CreateGroup(ctx context.Context, group *model.ConversationGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[group.UID]; exists {
		return errs.NewConflict("conversation group already exists")
	}
	copied := *group
	m.groups[group.UID] = &copied
	return nil
}

// GetConversation retrieves a conversation by id with its revision.
func (m *MockRepository) GetConversation(ctx context.Context, conversationUID uuid.UUID) (*model.Conversation, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, ok := m.conversations[conversationUID]
	if !ok {
		return nil, 0, errs.NewNotFound("conversation not found")
	}
	copied := *conversation
	return &copied, m.conversationRevisions[conversationUID], nil
}

// ListGroupConversations returns the non-deleted conversations of a group
// ordered by creation time.
func (m *MockRepository) ListGroupConversations(ctx context.Context, groupUID uuid.UUID) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conversations []*model.Conversation
	for _, conversation := range m.conversations {
		if conversation.GroupUID != groupUID || conversation.DeletedAt != nil {
			continue
		}
		copied := *conversation
		conversations = append(conversations, &copied)
	}
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].UID.String() < conversations[j].UID.String()
		}
		return conversations[i].CreatedAt.Before(conversations[j].CreatedAt)
	})
	return conversations, nil
}

// ListAllConversations returns every conversation, deleted included.
func (m *MockRepository) ListAllConversations(ctx context.Context) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversations := make([]*model.Conversation, 0, len(m.conversations))
	for _, conversation := range m.conversations {
		copied := *conversation
		conversations = append(conversations, &copied)
	}
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].UID.String() < conversations[j].UID.String()
		}
		return conversations[i].CreatedAt.Before(conversations[j].CreatedAt)
	})
	return conversations, nil
}

// CreateConversation stores a new conversation and returns its revision.
func (m *MockRepository) CreateConversation(ctx context.Context, conversation *model.Conversation) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.UID]; exists {
		return 0, errs.NewConflict("conversation already exists")
	}
	copied := *conversation
	m.conversations[conversation.UID] = &copied
	m.conversationRevisions[conversation.UID] = 1
	return 1, nil
}

// UpdateConversation stores a conversation with revision checking.
func (m *MockRepository) UpdateConversation(ctx context.Context, conversation *model.Conversation, expectedRevision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.UID]; !exists {
		return 0, errs.NewNotFound("conversation not found")
	}
	if m.conversationRevisions[conversation.UID] != expectedRevision {
		return 0, errs.NewConflict("conversation was modified concurrently")
	}
	copied := *conversation
	m.conversations[conversation.UID] = &copied
	m.conversationRevisions[conversation.UID] = expectedRevision + 1
	return expectedRevision + 1, nil
}

// MarkGroupDeleted soft-deletes the group and every conversation in it.
func (m *MockRepository) MarkGroupDeleted(ctx context.Context, groupUID uuid.UUID, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupUID]
	if !ok {
		return errs.NewNotFound("conversation group not found")
	}
	group.DeletedAt = &deletedAt
	for _, conversation := range m.conversations {
		if conversation.GroupUID == groupUID && conversation.DeletedAt == nil {
			at := deletedAt
			conversation.DeletedAt = &at
			m.conversationRevisions[conversation.UID]++
		}
	}
	return nil
}

// ListDeletedGroups returns ids of groups soft-deleted before the cutoff.
func (m *MockRepository) ListDeletedGroups(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var groupUIDs []uuid.UUID
	for _, group := range m.groups {
		if group.DeletedAt == nil || !group.DeletedAt.Before(cutoff) {
			continue
		}
		groupUIDs = append(groupUIDs, group.UID)
		if limit > 0 && len(groupUIDs) >= limit {
			break
		}
	}
	return groupUIDs, nil
}

// CountDeletedGroups counts groups soft-deleted before the cutoff.
func (m *MockRepository) CountDeletedGroups(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, group := range m.groups {
		if group.DeletedAt != nil && group.DeletedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

// HardDeleteGroup evicts every record owned by the group.
func (m *MockRepository) HardDeleteGroup(ctx context.Context, groupUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for uid, entry := range m.entries {
		if entry.GroupUID == groupUID {
			delete(m.entries, uid)
			delete(m.embeddings, uid)
		}
	}
	for key, membership := range m.memberships {
		if membership.GroupUID == groupUID {
			delete(m.memberships, key)
		}
	}
	if transferUID, ok := m.pendingByGroup[groupUID]; ok {
		delete(m.transfers, transferUID)
		delete(m.pendingByGroup, groupUID)
	}
	for uid, attachment := range m.attachments {
		if attachment.GroupUID == groupUID {
			delete(m.attachments, uid)
		}
	}
	for uid, conversation := range m.conversations {
		if conversation.GroupUID == groupUID {
			delete(m.conversations, uid)
			delete(m.conversationRevisions, uid)
		}
	}
	delete(m.groups, groupUID)
	return nil
}
