// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// conversationRecord is the stored shape of a conversation. The title is
// envelope-encrypted bytes; everything else is stored as-is.
type conversationRecord struct {
	UID                     uuid.UUID      `json:"uid"`
	GroupUID                uuid.UUID      `json:"group_uid"`
	OwnerUserID             string         `json:"owner_user_id"`
	Title                   []byte         `json:"title"`
	Metadata                map[string]any `json:"metadata,omitempty"`
	ForkedAtConversationUID *uuid.UUID     `json:"forked_at_conversation_uid,omitempty"`
	ForkedAtEntryUID        *uuid.UUID     `json:"forked_at_entry_uid,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	DeletedAt               *time.Time     `json:"deleted_at,omitempty"`
}

func (s *storage) encodeConversation(ctx context.Context, conversation *model.Conversation) (*conversationRecord, error) {
	title, err := s.codec.EncryptString(ctx, conversation.Title)
	if err != nil {
		return nil, err
	}
	return &conversationRecord{
		UID:                     conversation.UID,
		GroupUID:                conversation.GroupUID,
		OwnerUserID:             conversation.OwnerUserID,
		Title:                   title,
		Metadata:                conversation.Metadata,
		ForkedAtConversationUID: conversation.ForkedAtConversationUID,
		ForkedAtEntryUID:        conversation.ForkedAtEntryUID,
		CreatedAt:               conversation.CreatedAt,
		UpdatedAt:               conversation.UpdatedAt,
		DeletedAt:               conversation.DeletedAt,
	}, nil
}

func (s *storage) decodeConversation(ctx context.Context, record *conversationRecord) (*model.Conversation, error) {
	title, err := s.codec.DecryptString(ctx, record.Title)
	if err != nil {
		return nil, err
	}
	return &model.Conversation{
		UID:                     record.UID,
		GroupUID:                record.GroupUID,
		OwnerUserID:             record.OwnerUserID,
		Title:                   title,
		Metadata:                record.Metadata,
		ForkedAtConversationUID: record.ForkedAtConversationUID,
		ForkedAtEntryUID:        record.ForkedAtEntryUID,
		CreatedAt:               record.CreatedAt,
		UpdatedAt:               record.UpdatedAt,
		DeletedAt:               record.DeletedAt,
	}, nil
}

// GetGroup retrieves group metadata by id.
func (s *storage) GetGroup(ctx context.Context, groupUID uuid.UUID) (*model.ConversationGroup, error) {
	group := &model.ConversationGroup{}
	_, err := s.get(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyGroupMeta, groupUID), group)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errs.NewNotFound("conversation group not found")
		}
		slog.ErrorContext(ctx, "failed to get group", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to get conversation group")
	}
	return group, nil
}

// CreateGroup stores new group metadata.
func (s *storage) CreateGroup(ctx context.Context, group *model.ConversationGroup) error {
	key := fmt.Sprintf(constants.KVKeyGroupMeta, group.UID)
	if _, err := s.create(ctx, constants.KVBucketNameConversations, key, group); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return errs.NewConflict("conversation group already exists")
		}
		slog.ErrorContext(ctx, "failed to create group", "error", err, "group_uid", group.UID)
		return errs.NewServiceUnavailable("failed to create conversation group")
	}
	return nil
}

// GetConversation retrieves a conversation by id through the id index.
func (s *storage) GetConversation(ctx context.Context, conversationUID uuid.UUID) (*model.Conversation, uint64, error) {
	var primaryKey string
	_, err := s.get(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyConversationIndex, conversationUID), &primaryKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("conversation not found")
		}
		slog.ErrorContext(ctx, "failed to resolve conversation index", "error", err, "conversation_uid", conversationUID)
		return nil, 0, errs.NewServiceUnavailable("failed to get conversation")
	}

	record := &conversationRecord{}
	rev, err := s.get(ctx, constants.KVBucketNameConversations, primaryKey, record)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("conversation not found")
		}
		slog.ErrorContext(ctx, "failed to get conversation", "error", err, "conversation_uid", conversationUID)
		return nil, 0, errs.NewServiceUnavailable("failed to get conversation")
	}

	conversation, err := s.decodeConversation(ctx, record)
	if err != nil {
		return nil, 0, err
	}
	return conversation, rev, nil
}

// ListGroupConversations returns the non-deleted conversations of a group
// ordered by creation time.
func (s *storage) ListGroupConversations(ctx context.Context, groupUID uuid.UUID) ([]*model.Conversation, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyConversationPrefix, groupUID))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list group conversations", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to list conversations")
	}

	conversations := make([]*model.Conversation, 0, len(keys))
	for _, key := range keys {
		record := &conversationRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameConversations, key, record); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list conversations")
		}
		if record.DeletedAt != nil {
			continue
		}
		conversation, err := s.decodeConversation(ctx, record)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}

	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].UID.String() < conversations[j].UID.String()
		}
		return conversations[i].CreatedAt.Before(conversations[j].CreatedAt)
	})
	return conversations, nil
}

// CreateConversation stores a new conversation plus its id index.
func (s *storage) CreateConversation(ctx context.Context, conversation *model.Conversation) (uint64, error) {
	record, err := s.encodeConversation(ctx, conversation)
	if err != nil {
		return 0, err
	}

	primaryKey := fmt.Sprintf(constants.KVKeyConversation, conversation.GroupUID, conversation.UID)
	rev, err := s.create(ctx, constants.KVBucketNameConversations, primaryKey, record)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, errs.NewConflict("conversation already exists")
		}
		slog.ErrorContext(ctx, "failed to create conversation", "error", err, "conversation_uid", conversation.UID)
		return 0, errs.NewServiceUnavailable("failed to create conversation")
	}

	indexKey := fmt.Sprintf(constants.KVKeyConversationIndex, conversation.UID)
	if _, err := s.put(ctx, constants.KVBucketNameConversations, indexKey, primaryKey); err != nil {
		// Roll the primary back so a retry starts clean.
		if delErr := s.delete(ctx, constants.KVBucketNameConversations, primaryKey); delErr != nil {
			slog.ErrorContext(ctx, "failed to roll back conversation create", "error", delErr, "key", primaryKey)
		}
		slog.ErrorContext(ctx, "failed to create conversation index", "error", err, "conversation_uid", conversation.UID)
		return 0, errs.NewServiceUnavailable("failed to create conversation")
	}

	slog.DebugContext(ctx, "nats storage: conversation created",
		"conversation_uid", conversation.UID,
		"group_uid", conversation.GroupUID,
		"revision", rev)
	return rev, nil
}

// UpdateConversation stores a conversation with revision checking.
func (s *storage) UpdateConversation(ctx context.Context, conversation *model.Conversation, expectedRevision uint64) (uint64, error) {
	record, err := s.encodeConversation(ctx, conversation)
	if err != nil {
		return 0, err
	}

	primaryKey := fmt.Sprintf(constants.KVKeyConversation, conversation.GroupUID, conversation.UID)
	rev, err := s.putWithRevision(ctx, constants.KVBucketNameConversations, primaryKey, record, expectedRevision)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, errs.NewNotFound("conversation not found")
		}
		slog.WarnContext(ctx, "conversation update rejected", "error", err,
			"conversation_uid", conversation.UID,
			"expected_revision", expectedRevision)
		return 0, errs.NewConflict("conversation was modified concurrently")
	}
	return rev, nil
}

// MarkGroupDeleted soft-deletes the group and every conversation in it.
func (s *storage) MarkGroupDeleted(ctx context.Context, groupUID uuid.UUID, deletedAt time.Time) error {
	group, err := s.GetGroup(ctx, groupUID)
	if err != nil {
		return err
	}
	group.DeletedAt = &deletedAt
	if _, err := s.put(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyGroupMeta, groupUID), group); err != nil {
		slog.ErrorContext(ctx, "failed to mark group deleted", "error", err, "group_uid", groupUID)
		return errs.NewServiceUnavailable("failed to delete conversation group")
	}

	keys, err := s.listKeys(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyConversationPrefix, groupUID))
	if err != nil {
		return errs.NewServiceUnavailable("failed to delete conversation group")
	}
	for _, key := range keys {
		record := &conversationRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameConversations, key, record); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return errs.NewServiceUnavailable("failed to delete conversation group")
		}
		if record.DeletedAt != nil {
			continue
		}
		record.DeletedAt = &deletedAt
		if _, err := s.put(ctx, constants.KVBucketNameConversations, key, record); err != nil {
			return errs.NewServiceUnavailable("failed to delete conversation group")
		}
	}

	slog.DebugContext(ctx, "nats storage: group soft-deleted",
		"group_uid", groupUID,
		"conversations", len(keys))
	return nil
}

// ListAllConversations returns every conversation in the store, deleted
// included. Reserved for admin listings.
func (s *storage) ListAllConversations(ctx context.Context) ([]*model.Conversation, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameConversations, constants.KVKeyConversationAll)
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan conversations", "error", err)
		return nil, errs.NewServiceUnavailable("failed to list conversations")
	}

	conversations := make([]*model.Conversation, 0, len(keys))
	for _, key := range keys {
		record := &conversationRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameConversations, key, record); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list conversations")
		}
		conversation, err := s.decodeConversation(ctx, record)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, nil
}

// ListDeletedGroups returns ids of groups soft-deleted before the cutoff.
func (s *storage) ListDeletedGroups(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	groups, err := s.scanDeletedGroups(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// CountDeletedGroups counts groups soft-deleted before the cutoff.
func (s *storage) CountDeletedGroups(ctx context.Context, cutoff time.Time) (int64, error) {
	groups, err := s.scanDeletedGroups(ctx, cutoff, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(groups)), nil
}

func (s *storage) scanDeletedGroups(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameConversations, constants.KVKeyGroupMetaAll)
	if err != nil {
		return nil, errs.NewServiceUnavailable("failed to scan deleted groups")
	}

	var groups []uuid.UUID
	for _, key := range keys {
		group := &model.ConversationGroup{}
		if _, err := s.get(ctx, constants.KVBucketNameConversations, key, group); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to scan deleted groups")
		}
		if group.DeletedAt == nil || !group.DeletedAt.Before(cutoff) {
			continue
		}
		groups = append(groups, group.UID)
		if limit > 0 && len(groups) >= limit {
			break
		}
	}
	return groups, nil
}

// HardDeleteGroup evicts every record owned by the group across all buckets.
func (s *storage) HardDeleteGroup(ctx context.Context, groupUID uuid.UUID) error {
	// Memberships first: the user->group index needs the stored records.
	memberships, err := s.ListGroupMemberships(ctx, groupUID)
	if err != nil {
		return err
	}
	for _, membership := range memberships {
		if err := s.DeleteMembership(ctx, groupUID, membership.UserID); err != nil {
			return err
		}
	}

	// Entries and their id indices.
	entryKeys, err := s.listKeys(ctx, constants.KVBucketNameEntries, fmt.Sprintf(constants.KVKeyEntryPrefix, groupUID))
	if err != nil {
		return errs.NewServiceUnavailable("failed to evict group entries")
	}
	for _, key := range entryKeys {
		if entryUID, ok := entryUIDFromKey(key); ok {
			if err := s.delete(ctx, constants.KVBucketNameEntries, fmt.Sprintf(constants.KVKeyEntryIndex, entryUID)); err != nil {
				return err
			}
		}
		if err := s.delete(ctx, constants.KVBucketNameEntries, key); err != nil {
			return err
		}
	}

	// Pending transfer and its id index.
	if transfer, err := s.GetPendingTransfer(ctx, groupUID); err == nil && transfer != nil {
		if err := s.DeleteTransfer(ctx, transfer); err != nil {
			return err
		}
	}

	// Attachment records.
	attachmentKeys, err := s.listKeys(ctx, constants.KVBucketNameAttachments, fmt.Sprintf(constants.KVKeyAttachmentPrefix, groupUID))
	if err != nil {
		return errs.NewServiceUnavailable("failed to evict group attachments")
	}
	for _, key := range attachmentKeys {
		if err := s.delete(ctx, constants.KVBucketNameAttachments, key); err != nil {
			return err
		}
	}

	// Embeddings.
	if err := s.DeleteByGroup(ctx, groupUID); err != nil {
		return err
	}

	// Conversations, their id indices, then the group metadata.
	convKeys, err := s.listKeys(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyConversationPrefix, groupUID))
	if err != nil {
		return errs.NewServiceUnavailable("failed to evict group conversations")
	}
	for _, key := range convKeys {
		record := &conversationRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameConversations, key, record); err == nil {
			if err := s.delete(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyConversationIndex, record.UID)); err != nil {
				return err
			}
		}
		if err := s.delete(ctx, constants.KVBucketNameConversations, key); err != nil {
			return err
		}
	}
	if err := s.delete(ctx, constants.KVBucketNameConversations, fmt.Sprintf(constants.KVKeyGroupMeta, groupUID)); err != nil {
		return err
	}

	slog.InfoContext(ctx, "nats storage: group evicted",
		"group_uid", groupUID,
		"entries", len(entryKeys),
		"conversations", len(convKeys),
		"memberships", len(memberships))
	return nil
}
