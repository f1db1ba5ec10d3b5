// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// EntryReader defines read operations on entries. Entries come back in
// group order: (CreatedAt, UID) ascending.
type EntryReader interface {
	// GetEntry retrieves a single entry by id.
	GetEntry(ctx context.Context, entryUID uuid.UUID) (*model.Entry, error)

	// GetEntryGroup resolves the group an entry belongs to without
	// decrypting the record.
	GetEntryGroup(ctx context.Context, entryUID uuid.UUID) (uuid.UUID, error)

	// ListGroupEntries returns every entry in the group in group order.
	// The engine applies ancestry, channel and epoch filtering on top.
	ListGroupEntries(ctx context.Context, groupUID uuid.UUID) ([]*model.Entry, error)

	// ListUnindexedEntries returns HISTORY entries with no indexed content,
	// resuming after the opaque position. The returned position is empty
	// when no more rows follow.
	ListUnindexedEntries(ctx context.Context, limit int, afterPosition string) ([]*model.Entry, string, error)

	// FindEntriesPendingVectorIndexing returns entries whose indexed
	// content is set but which have not been embedded yet.
	FindEntriesPendingVectorIndexing(ctx context.Context, limit int) ([]*model.Entry, error)
}

// EntryWriter defines write operations on entries. Entries are immutable
// except for the indexing columns.
type EntryWriter interface {
	// CreateEntry stores a new entry.
	CreateEntry(ctx context.Context, entry *model.Entry) error

	// SetIndexedContent sets the plaintext search projection of an entry
	// within its group.
	SetIndexedContent(ctx context.Context, entryUID, groupUID uuid.UUID, indexedContent string) error

	// SetIndexedAt marks vector indexing of an entry complete.
	SetIndexedAt(ctx context.Context, entryUID, groupUID uuid.UUID, indexedAt time.Time) error
}

// EntryReaderWriter combines entry reads and writes.
type EntryReaderWriter interface {
	EntryReader
	EntryWriter
}
