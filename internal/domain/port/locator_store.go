// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// LocatorStore is the shared KV holding response-resumer locators. Entries
// expire on their own after the locator TTL; the owning instance refreshes
// them while a recording is open. The locator is a soft distributed mutex:
// at-most-one-writer is enforced by the owning instance, a stale locator is
// corrected by TTL.
type LocatorStore interface {
	// PublishLocator stores or refreshes the locator for a conversation.
	PublishLocator(ctx context.Context, conversationUID uuid.UUID, locator *model.ResponseLocator) error

	// GetLocator retrieves the current locator, or a NotFound error.
	GetLocator(ctx context.Context, conversationUID uuid.UUID) (*model.ResponseLocator, error)

	// DeleteLocator removes the locator once recording finishes.
	DeleteLocator(ctx context.Context, conversationUID uuid.UUID) error
}
