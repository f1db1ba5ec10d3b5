// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package mock provides in-memory implementations of every storage port
// for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
)

// MockRepository provides a mock implementation of all storage interfaces
// for testing. Data lives in maps guarded by one lock; semantics mirror
// the KV storage layer, including revision checking and lease claims.
type MockRepository struct {
	groups                map[uuid.UUID]*model.ConversationGroup
	conversations         map[uuid.UUID]*model.Conversation
	conversationRevisions map[uuid.UUID]uint64
	entries               map[uuid.UUID]*model.Entry
	memberships           map[string]*model.ConversationMembership // groupUID/userID
	transfers             map[uuid.UUID]*model.OwnershipTransfer
	pendingByGroup        map[uuid.UUID]uuid.UUID
	attachments           map[uuid.UUID]*model.Attachment
	tasks                 map[uuid.UUID]*model.Task
	taskClaims            map[uuid.UUID]time.Time
	taskNames             map[string]uuid.UUID
	cache                 map[string]*model.CachedMemoryEntries // convUID/clientID
	locators              map[uuid.UUID]*model.ResponseLocator
	embeddings            map[uuid.UUID]*storedEmbedding // entryUID
	mu                    sync.RWMutex
}

type storedEmbedding struct {
	groupUID        uuid.UUID
	conversationUID uuid.UUID
	vector          []float64
	model           string
}

// Interface assertions: the mock must satisfy every storage port.
var (
	_ port.ConversationReaderWriter = (*MockRepository)(nil)
	_ port.EntryReaderWriter        = (*MockRepository)(nil)
	_ port.MembershipReaderWriter   = (*MockRepository)(nil)
	_ port.TransferReaderWriter     = (*MockRepository)(nil)
	_ port.AttachmentReaderWriter   = (*MockRepository)(nil)
	_ port.TaskQueue                = (*MockRepository)(nil)
	_ port.MemoryCache              = (*MockRepository)(nil)
	_ port.LocatorStore             = (*MockRepository)(nil)
	_ port.SearchBackend            = (*MockRepository)(nil)
)

// NewMockRepository creates an empty mock repository.
func NewMockRepository() *MockRepository {
	mock := &MockRepository{}
	mock.reset()
	return mock
}

// IsReady always succeeds; the in-memory repository has no dependency to
// wait for.
func (m *MockRepository) IsReady(ctx context.Context) error {
	return nil
}

// ClearAll removes all data from the repository.
func (m *MockRepository) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *MockRepository) reset() {
	m.groups = make(map[uuid.UUID]*model.ConversationGroup)
	m.conversations = make(map[uuid.UUID]*model.Conversation)
	m.conversationRevisions = make(map[uuid.UUID]uint64)
	m.entries = make(map[uuid.UUID]*model.Entry)
	m.memberships = make(map[string]*model.ConversationMembership)
	m.transfers = make(map[uuid.UUID]*model.OwnershipTransfer)
	m.pendingByGroup = make(map[uuid.UUID]uuid.UUID)
	m.attachments = make(map[uuid.UUID]*model.Attachment)
	m.tasks = make(map[uuid.UUID]*model.Task)
	m.taskClaims = make(map[uuid.UUID]time.Time)
	m.taskNames = make(map[string]uuid.UUID)
	m.cache = make(map[string]*model.CachedMemoryEntries)
	m.locators = make(map[uuid.UUID]*model.ResponseLocator)
	m.embeddings = make(map[uuid.UUID]*storedEmbedding)
}

// membershipKey builds the composite map key for a membership.
func membershipKey(groupUID uuid.UUID, userID string) string {
	return groupUID.String() + "/" + model.HashIdentity(userID)
}

// cacheKey builds the composite map key for a cached memory view.
func cacheKey(conversationUID uuid.UUID, clientID string) string {
	return conversationUID.String() + "/" + model.HashIdentity(clientID)
}
