// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/encryption"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"

	"github.com/nats-io/nats.go/jetstream"
)

// storage implements the domain ports over JetStream KV buckets. Values
// are JSON; entry content and conversation titles pass through the
// encryption codec before hitting the bucket.
type storage struct {
	client *NATSClient
	codec  *encryption.Codec
}

// NewStorage builds the KV-backed storage. A nil codec disables at-rest
// encryption.
func NewStorage(client *NATSClient, codec *encryption.Codec) *Storage {
	if codec == nil {
		codec = encryption.NewDisabledCodec()
	}
	return &Storage{storage{client: client, codec: codec}}
}

// Storage is the concrete KV storage, satisfying the conversation, entry,
// membership, transfer, attachment, task queue, cache, locator and search
// backend ports.
type Storage struct {
	storage
}

// IsReady checks if the storage is ready by verifying the client connection
func (s *storage) IsReady(ctx context.Context) error {
	return s.client.IsReady(ctx)
}

func (s *storage) bucket(name string) (jetstream.KeyValue, error) {
	kv, exists := s.client.kvStore[name]
	if !exists || kv == nil {
		return nil, errs.NewServiceUnavailable("KV bucket not available")
	}
	return kv, nil
}

// get retrieves a value from the given bucket and unmarshals it into out.
// Returns the revision for conditional updates.
func (s *storage) get(ctx context.Context, bucketName, key string, out any) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, err := s.bucket(bucketName)
	if err != nil {
		return 0, err
	}

	data, errGet := kv.Get(ctx, key)
	if errGet != nil {
		return 0, errGet
	}

	if out != nil {
		if errUnmarshal := json.Unmarshal(data.Value(), out); errUnmarshal != nil {
			return 0, errUnmarshal
		}
	}

	return data.Revision(), nil
}

// getRaw retrieves a raw value with its revision.
func (s *storage) getRaw(ctx context.Context, bucketName, key string) ([]byte, uint64, error) {
	if key == "" {
		return nil, 0, errs.NewValidation("key cannot be empty")
	}

	kv, err := s.bucket(bucketName)
	if err != nil {
		return nil, 0, err
	}

	data, errGet := kv.Get(ctx, key)
	if errGet != nil {
		return nil, 0, errGet
	}
	return data.Value(), data.Revision(), nil
}

// put stores a value unconditionally and returns the new revision.
func (s *storage) put(ctx context.Context, bucketName, key string, value any) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, err := s.bucket(bucketName)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	return kv.Put(ctx, key, data)
}

// putWithRevision stores a value conditionally on the expected revision.
func (s *storage) putWithRevision(ctx context.Context, bucketName, key string, value any, expectedRevision uint64) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, err := s.bucket(bucketName)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	return kv.Update(ctx, key, data, expectedRevision)
}

// create stores a value only if the key does not exist yet. Violations come
// back as jetstream.ErrKeyExists for the caller to translate.
func (s *storage) create(ctx context.Context, bucketName, key string, value any) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, err := s.bucket(bucketName)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	return kv.Create(ctx, key, data)
}

// delete removes a key. A missing key is treated as success for idempotency.
func (s *storage) delete(ctx context.Context, bucketName, key string) error {
	if key == "" {
		return errs.NewValidation("key cannot be empty")
	}

	kv, err := s.bucket(bucketName)
	if err != nil {
		return err
	}

	if err := kv.Purge(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// listKeys returns the keys matching the subject-style filter, sorted so
// the zero-padded entry keys come back in group order.
func (s *storage) listKeys(ctx context.Context, bucketName, filter string) ([]string, error) {
	kv, err := s.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	lister, err := kv.ListKeysFiltered(ctx, filter)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
