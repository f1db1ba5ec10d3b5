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

// GetEntry retrieves a single entry by id.
func (m *MockRepository) GetEntry(ctx context.Context, entryUID uuid.UUID) (*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[entryUID]
	if !ok {
		return nil, errs.NewNotFound("entry not found")
	}
	copied := *entry
	return &copied, nil
}

// GetEntryGroup resolves the group an entry belongs to.
func (m *MockRepository) GetEntryGroup(ctx context.Context, entryUID uuid.UUID) (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[entryUID]
	if !ok {
		return uuid.Nil, errs.NewNotFound("entry not found")
	}
	return entry.GroupUID, nil
}

// ListGroupEntries returns every entry in the group in group order.
func (m *MockRepository) ListGroupEntries(ctx context.Context, groupUID uuid.UUID) ([]*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*model.Entry
	for _, entry := range m.entries {
		if entry.GroupUID != groupUID {
			continue
		}
		copied := *entry
		entries = append(entries, &copied)
	}
	sortGroupOrder(entries)
	return entries, nil
}

// ListUnindexedEntries returns HISTORY entries with no indexed content.
func (m *MockRepository) ListUnindexedEntries(ctx context.Context, limit int, afterPosition string) ([]*model.Entry, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*model.Entry
	for _, entry := range m.entries {
		if entry.Channel != model.ChannelHistory || entry.IndexedContent != nil {
			continue
		}
		if afterPosition != "" && entry.UID.String() <= afterPosition {
			continue
		}
		copied := *entry
		candidates = append(candidates, &copied)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UID.String() < candidates[j].UID.String()
	})

	position := ""
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
		position = candidates[len(candidates)-1].UID.String()
	}
	return candidates, position, nil
}

// FindEntriesPendingVectorIndexing returns entries whose indexed content is
// set but which have not been embedded yet.
func (m *MockRepository) FindEntriesPendingVectorIndexing(ctx context.Context, limit int) ([]*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*model.Entry
	for _, entry := range m.entries {
		if entry.IndexedContent == nil || entry.IndexedAt != nil {
			continue
		}
		copied := *entry
		pending = append(pending, &copied)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

// CreateEntry stores a new entry.
func (m *MockRepository) CreateEntry(ctx context.Context, entry *model.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.UID]; exists {
		return errs.NewConflict("entry already exists")
	}
	copied := *entry
	m.entries[entry.UID] = &copied
	return nil
}

// SetIndexedContent sets the plaintext search projection of an entry.
func (m *MockRepository) SetIndexedContent(ctx context.Context, entryUID, groupUID uuid.UUID, indexedContent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[entryUID]
	if !ok || entry.GroupUID != groupUID {
		return errs.NewNotFound("entry not found")
	}
	entry.IndexedContent = &indexedContent
	return nil
}

// SetIndexedAt marks vector indexing of an entry complete.
func (m *MockRepository) SetIndexedAt(ctx context.Context, entryUID, groupUID uuid.UUID, indexedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[entryUID]
	if !ok || entry.GroupUID != groupUID {
		return errs.NewNotFound("entry not found")
	}
	entry.IndexedAt = &indexedAt
	return nil
}

// sortGroupOrder sorts entries by (CreatedAt, UID) ascending.
func sortGroupOrder(entries []*model.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].UID.String() < entries[j].UID.String()
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
