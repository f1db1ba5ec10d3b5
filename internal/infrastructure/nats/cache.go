// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Cache values are msgpack rather than JSON: the cached entries carry raw
// JSON content already, and double JSON encoding both bloats the value and
// loses the raw bytes. The bucket TTL handles expiry.

func cacheKey(conversationUID uuid.UUID, clientID string) string {
	return fmt.Sprintf(constants.KVKeyCacheEntry, conversationUID, model.HashIdentity(clientID))
}

// GetMemoryEntries returns the cached latest-epoch result, or nil on a miss.
func (s *storage) GetMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string) (*model.CachedMemoryEntries, error) {
	data, _, err := s.getRaw(ctx, constants.KVBucketNameCache, cacheKey(conversationUID, clientID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, errs.NewServiceUnavailable("failed to read memory cache")
	}

	cached := &model.CachedMemoryEntries{}
	if err := msgpack.Unmarshal(data, cached); err != nil {
		// A corrupt value is as good as a miss.
		slog.WarnContext(ctx, "dropping undecodable cache value",
			"error", err,
			"conversation_uid", conversationUID)
		return nil, nil
	}
	return cached, nil
}

// PutMemoryEntries stores a freshly computed latest-epoch result.
func (s *storage) PutMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string, cached *model.CachedMemoryEntries) error {
	data, err := msgpack.Marshal(cached)
	if err != nil {
		return errs.NewUnexpected("failed to encode cache value", err)
	}

	kv, err := s.bucket(constants.KVBucketNameCache)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, cacheKey(conversationUID, clientID), data); err != nil {
		return errs.NewServiceUnavailable("failed to write memory cache")
	}
	return nil
}

// DeleteMemoryEntries drops the key.
func (s *storage) DeleteMemoryEntries(ctx context.Context, conversationUID uuid.UUID, clientID string) error {
	return s.delete(ctx, constants.KVBucketNameCache, cacheKey(conversationUID, clientID))
}
