// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// GetMemoryEntries returns the cached latest-epoch result, or nil on a miss.
func (m *MockRepository) GetMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string) (*model.CachedMemoryEntries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cached, ok := m.cache[cacheKey(conversationUID, clientID)]
	if !ok {
		return nil, nil
	}
	copied := *cached
	copied.Entries = append([]model.Entry(nil), cached.Entries...)
	return &copied, nil
}

// PutMemoryEntries stores a freshly computed latest-epoch result.
func (m *MockRepository) PutMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string, cached *model.CachedMemoryEntries) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *cached
	copied.Entries = append([]model.Entry(nil), cached.Entries...)
	m.cache[cacheKey(conversationUID, clientID)] = &copied
	return nil
}

// DeleteMemoryEntries drops the cached key.
func (m *MockRepository) DeleteMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, cacheKey(conversationUID, clientID))
	return nil
}

// PublishLocator stores or refreshes the locator for a conversation.
func (m *MockRepository) PublishLocator(ctx context.Context, conversationUID uuid.UUID, locator *model.ResponseLocator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *locator
	m.locators[conversationUID] = &copied
	return nil
}

// GetLocator retrieves the current locator, or a NotFound error.
func (m *MockRepository) GetLocator(ctx context.Context, conversationUID uuid.UUID) (*model.ResponseLocator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	locator, ok := m.locators[conversationUID]
	if !ok {
		return nil, errs.NewNotFound("no response in progress for conversation")
	}
	copied := *locator
	return &copied, nil
}

// DeleteLocator removes the locator once recording finishes.
func (m *MockRepository) DeleteLocator(ctx context.Context, conversationUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locators, conversationUID)
	return nil
}
