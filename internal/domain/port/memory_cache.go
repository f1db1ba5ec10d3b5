// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// MemoryCache is the read-through cache of latest-epoch memory entries per
// (conversation, client). The cache is advisory: correctness always comes
// from storage, and every method may fail without affecting the caller's
// result.
type MemoryCache interface {
	// GetMemoryEntries returns the cached latest-epoch result, or nil on a miss.
	GetMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string) (*model.CachedMemoryEntries, error)

	// PutMemoryEntries stores a freshly computed latest-epoch result.
	PutMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string, cached *model.CachedMemoryEntries) error

	// DeleteMemoryEntries drops the key, used when a recomputation comes
	// back empty.
	DeleteMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string) error
}
