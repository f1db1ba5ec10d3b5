// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// The locator bucket is created with a TTL of constants.LocatorTTL, so
// every publish re-arms the expiry and a crashed owner's locator vanishes
// on its own.

// PublishLocator stores or refreshes the locator for a conversation.
func (s *storage) PublishLocator(ctx context.Context, conversationUID uuid.UUID, locator *model.ResponseLocator) error {
	key := fmt.Sprintf(constants.KVKeyLocator, conversationUID)
	if _, err := s.put(ctx, constants.KVBucketNameLocators, key, locator); err != nil {
		return errs.NewServiceUnavailable("failed to publish response locator")
	}
	return nil
}

// GetLocator retrieves the current locator, or a NotFound error.
func (s *storage) GetLocator(ctx context.Context, conversationUID uuid.UUID) (*model.ResponseLocator, error) {
	locator := &model.ResponseLocator{}
	_, err := s.get(ctx, constants.KVBucketNameLocators, fmt.Sprintf(constants.KVKeyLocator, conversationUID), locator)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errs.NewNotFound("no response in progress for conversation")
		}
		return nil, errs.NewServiceUnavailable("failed to get response locator")
	}
	return locator, nil
}

// DeleteLocator removes the locator once recording finishes.
func (s *storage) DeleteLocator(ctx context.Context, conversationUID uuid.UUID) error {
	return s.delete(ctx, constants.KVBucketNameLocators, fmt.Sprintf(constants.KVKeyLocator, conversationUID))
}
