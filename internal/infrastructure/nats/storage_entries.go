// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// entryRecord is the stored shape of an entry. Content is
// envelope-encrypted bytes; the indexed content column stays plaintext so
// fulltext search never needs a key.
type entryRecord struct {
	UID             uuid.UUID  `json:"uid"`
	ConversationUID uuid.UUID  `json:"conversation_uid"`
	GroupUID        uuid.UUID  `json:"group_uid"`
	UserID          *string    `json:"user_id,omitempty"`
	ClientID        *string    `json:"client_id,omitempty"`
	Channel         string     `json:"channel"`
	Epoch           *int64     `json:"epoch,omitempty"`
	ContentType     string     `json:"content_type"`
	Content         []byte     `json:"content"`
	IndexedContent  *string    `json:"indexed_content,omitempty"`
	IndexedAt       *time.Time `json:"indexed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (s *storage) encodeEntry(ctx context.Context, entry *model.Entry) (*entryRecord, error) {
	content, err := s.codec.Encrypt(ctx, entry.Content)
	if err != nil {
		return nil, err
	}
	return &entryRecord{
		UID:             entry.UID,
		ConversationUID: entry.ConversationUID,
		GroupUID:        entry.GroupUID,
		UserID:          entry.UserID,
		ClientID:        entry.ClientID,
		Channel:         string(entry.Channel),
		Epoch:           entry.Epoch,
		ContentType:     entry.ContentType,
		Content:         content,
		IndexedContent:  entry.IndexedContent,
		IndexedAt:       entry.IndexedAt,
		CreatedAt:       entry.CreatedAt,
	}, nil
}

func (s *storage) decodeEntry(ctx context.Context, record *entryRecord) (*model.Entry, error) {
	content, err := s.codec.Decrypt(ctx, record.Content)
	if err != nil {
		return nil, err
	}
	return &model.Entry{
		UID:             record.UID,
		ConversationUID: record.ConversationUID,
		GroupUID:        record.GroupUID,
		UserID:          record.UserID,
		ClientID:        record.ClientID,
		Channel:         model.Channel(record.Channel),
		Epoch:           record.Epoch,
		ContentType:     record.ContentType,
		Content:         json.RawMessage(content),
		IndexedContent:  record.IndexedContent,
		IndexedAt:       record.IndexedAt,
		CreatedAt:       record.CreatedAt,
	}, nil
}

// entryPrimaryKey builds the ordered key of an entry: zero-padded creation
// nanos followed by the id, so lexicographic key order is group order.
func entryPrimaryKey(entry *model.Entry) string {
	return fmt.Sprintf(constants.KVKeyEntry, entry.GroupUID, entry.CreatedAt.UnixNano(), entry.UID)
}

// entryUIDFromKey extracts the entry id from a primary key.
func entryUIDFromKey(key string) (string, bool) {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return "", false
	}
	tail := key[idx+1:]
	sep := strings.Index(tail, "-")
	if sep < 0 || sep+1 >= len(tail) {
		return "", false
	}
	return tail[sep+1:], true
}

// groupUIDFromEntryKey extracts the group id from a primary key without
// fetching the record.
func groupUIDFromEntryKey(key string) (uuid.UUID, bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 4 || parts[0] != "group" || parts[2] != "entry" {
		return uuid.Nil, false
	}
	groupUID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return groupUID, true
}

// CreateEntry stores a new entry plus its id index.
func (s *storage) CreateEntry(ctx context.Context, entry *model.Entry) error {
	record, err := s.encodeEntry(ctx, entry)
	if err != nil {
		return err
	}

	primaryKey := entryPrimaryKey(entry)
	if _, err := s.create(ctx, constants.KVBucketNameEntries, primaryKey, record); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return errs.NewConflict("entry already exists")
		}
		slog.ErrorContext(ctx, "failed to create entry", "error", err, "entry_uid", entry.UID)
		return errs.NewServiceUnavailable("failed to create entry")
	}

	indexKey := fmt.Sprintf(constants.KVKeyEntryIndex, entry.UID)
	if _, err := s.put(ctx, constants.KVBucketNameEntries, indexKey, primaryKey); err != nil {
		if delErr := s.delete(ctx, constants.KVBucketNameEntries, primaryKey); delErr != nil {
			slog.ErrorContext(ctx, "failed to roll back entry create", "error", delErr, "key", primaryKey)
		}
		slog.ErrorContext(ctx, "failed to create entry index", "error", err, "entry_uid", entry.UID)
		return errs.NewServiceUnavailable("failed to create entry")
	}

	slog.DebugContext(ctx, "nats storage: entry created",
		"entry_uid", entry.UID,
		"conversation_uid", entry.ConversationUID,
		"channel", entry.Channel)
	return nil
}

// GetEntry retrieves a single entry by id through the id index.
func (s *storage) GetEntry(ctx context.Context, entryUID uuid.UUID) (*model.Entry, error) {
	record, _, err := s.getEntryRecord(ctx, entryUID)
	if err != nil {
		return nil, err
	}
	return s.decodeEntry(ctx, record)
}

// GetEntryGroup resolves the group of an entry from the id index alone.
func (s *storage) GetEntryGroup(ctx context.Context, entryUID uuid.UUID) (uuid.UUID, error) {
	var primaryKey string
	_, err := s.get(ctx, constants.KVBucketNameEntries, fmt.Sprintf(constants.KVKeyEntryIndex, entryUID), &primaryKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return uuid.Nil, errs.NewNotFound("entry not found")
		}
		return uuid.Nil, errs.NewServiceUnavailable("failed to resolve entry group")
	}

	groupUID, ok := groupUIDFromEntryKey(primaryKey)
	if !ok {
		return uuid.Nil, errs.NewUnexpected(fmt.Sprintf("malformed entry key %q", primaryKey))
	}
	return groupUID, nil
}

func (s *storage) getEntryRecord(ctx context.Context, entryUID uuid.UUID) (*entryRecord, string, error) {
	var primaryKey string
	_, err := s.get(ctx, constants.KVBucketNameEntries, fmt.Sprintf(constants.KVKeyEntryIndex, entryUID), &primaryKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, "", errs.NewNotFound("entry not found")
		}
		return nil, "", errs.NewServiceUnavailable("failed to get entry")
	}

	record := &entryRecord{}
	if _, err := s.get(ctx, constants.KVBucketNameEntries, primaryKey, record); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, "", errs.NewNotFound("entry not found")
		}
		return nil, "", errs.NewServiceUnavailable("failed to get entry")
	}
	return record, primaryKey, nil
}

// ListGroupEntries returns every entry in the group in group order. Key
// order already encodes (CreatedAt, UID).
func (s *storage) ListGroupEntries(ctx context.Context, groupUID uuid.UUID) ([]*model.Entry, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameEntries, fmt.Sprintf(constants.KVKeyEntryPrefix, groupUID))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list group entries", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to list entries")
	}

	entries := make([]*model.Entry, 0, len(keys))
	for _, key := range keys {
		record := &entryRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameEntries, key, record); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list entries")
		}
		entry, err := s.decodeEntry(ctx, record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListUnindexedEntries returns HISTORY entries with no indexed content,
// resuming after the opaque position (the last primary key seen).
func (s *storage) ListUnindexedEntries(ctx context.Context, limit int, afterPosition string) ([]*model.Entry, string, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameEntries, constants.KVKeyEntryAll)
	if err != nil {
		return nil, "", errs.NewServiceUnavailable("failed to scan entries")
	}
	sort.Strings(keys)

	var (
		entries      []*model.Entry
		lastPosition string
	)
	for _, key := range keys {
		if afterPosition != "" && key <= afterPosition {
			continue
		}
		lastPosition = key

		record := &entryRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameEntries, key, record); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, "", errs.NewServiceUnavailable("failed to scan entries")
		}
		if record.Channel != string(model.ChannelHistory) || record.IndexedContent != nil {
			continue
		}
		entry, err := s.decodeEntry(ctx, record)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			return entries, lastPosition, nil
		}
	}
	return entries, "", nil
}

// FindEntriesPendingVectorIndexing returns entries whose indexed content is
// set but which have not been embedded yet.
func (s *storage) FindEntriesPendingVectorIndexing(ctx context.Context, limit int) ([]*model.Entry, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameEntries, constants.KVKeyEntryAll)
	if err != nil {
		return nil, errs.NewServiceUnavailable("failed to scan entries")
	}
	sort.Strings(keys)

	var entries []*model.Entry
	for _, key := range keys {
		record := &entryRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameEntries, key, record); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to scan entries")
		}
		if record.IndexedContent == nil || record.IndexedAt != nil {
			continue
		}
		entry, err := s.decodeEntry(ctx, record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// SetIndexedContent sets the plaintext search projection of an entry.
func (s *storage) SetIndexedContent(ctx context.Context, entryUID, groupUID uuid.UUID, indexedContent string) error {
	return s.mutateEntry(ctx, entryUID, func(record *entryRecord) {
		record.IndexedContent = &indexedContent
	})
}

// SetIndexedAt marks vector indexing of an entry complete.
func (s *storage) SetIndexedAt(ctx context.Context, entryUID, groupUID uuid.UUID, indexedAt time.Time) error {
	return s.mutateEntry(ctx, entryUID, func(record *entryRecord) {
		record.IndexedAt = &indexedAt
	})
}

// mutateEntry applies a change to the indexing columns under a revision
// check, retrying once on a concurrent write.
func (s *storage) mutateEntry(ctx context.Context, entryUID uuid.UUID, mutate func(*entryRecord)) error {
	for attempt := 0; attempt < 2; attempt++ {
		var primaryKey string
		_, err := s.get(ctx, constants.KVBucketNameEntries, fmt.Sprintf(constants.KVKeyEntryIndex, entryUID), &primaryKey)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				return errs.NewNotFound("entry not found")
			}
			return errs.NewServiceUnavailable("failed to update entry")
		}

		record := &entryRecord{}
		rev, err := s.get(ctx, constants.KVBucketNameEntries, primaryKey, record)
		if err != nil {
			return errs.NewServiceUnavailable("failed to update entry")
		}

		mutate(record)
		if _, err := s.putWithRevision(ctx, constants.KVBucketNameEntries, primaryKey, record, rev); err == nil {
			return nil
		}
	}
	return errs.NewConflict("entry was modified concurrently")
}
