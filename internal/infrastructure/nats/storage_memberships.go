// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Memberships are stored twice: the record under the group prefix for
// per-group enumeration, and a user->group index entry so a user's groups
// resolve without scanning. User ids are hashed into KV-safe key parts.

// GetMembership retrieves the membership of a user at a group.
func (s *storage) GetMembership(ctx context.Context, groupUID uuid.UUID, userID string) (*model.ConversationMembership, error) {
	key := fmt.Sprintf(constants.KVKeyMembership, groupUID, model.HashIdentity(userID))
	membership := &model.ConversationMembership{}
	if _, err := s.get(ctx, constants.KVBucketNameMemberships, key, membership); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errs.NewNotFound("membership not found")
		}
		slog.ErrorContext(ctx, "failed to get membership", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to get membership")
	}
	return membership, nil
}

// ListGroupMemberships returns every membership of a group.
func (s *storage) ListGroupMemberships(ctx context.Context, groupUID uuid.UUID) ([]*model.ConversationMembership, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameMemberships, fmt.Sprintf(constants.KVKeyMembershipPrefix, groupUID))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list group memberships", "error", err, "group_uid", groupUID)
		return nil, errs.NewServiceUnavailable("failed to list memberships")
	}

	memberships := make([]*model.ConversationMembership, 0, len(keys))
	for _, key := range keys {
		membership := &model.ConversationMembership{}
		if _, err := s.get(ctx, constants.KVBucketNameMemberships, key, membership); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list memberships")
		}
		memberships = append(memberships, membership)
	}

	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].CreatedAt.Before(memberships[j].CreatedAt)
	})
	return memberships, nil
}

// ListUserGroups returns the ids of every group the user belongs to.
func (s *storage) ListUserGroups(ctx context.Context, userID string) ([]uuid.UUID, error) {
	filter := fmt.Sprintf(constants.KVKeyUserGroupPrefix, model.HashIdentity(userID))
	keys, err := s.listKeys(ctx, constants.KVBucketNameMemberships, filter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list user groups", "error", err)
		return nil, errs.NewServiceUnavailable("failed to list user groups")
	}

	groups := make([]uuid.UUID, 0, len(keys))
	for _, key := range keys {
		var groupUID uuid.UUID
		if _, err := s.get(ctx, constants.KVBucketNameMemberships, key, &groupUID); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list user groups")
		}
		groups = append(groups, groupUID)
	}
	return groups, nil
}

// PutMembership creates or replaces a membership plus its user index.
func (s *storage) PutMembership(ctx context.Context, membership *model.ConversationMembership) error {
	userHash := membership.BuildIndexKey(ctx)
	key := fmt.Sprintf(constants.KVKeyMembership, membership.GroupUID, userHash)
	if _, err := s.put(ctx, constants.KVBucketNameMemberships, key, membership); err != nil {
		slog.ErrorContext(ctx, "failed to put membership", "error", err, "group_uid", membership.GroupUID)
		return errs.NewServiceUnavailable("failed to store membership")
	}

	indexKey := fmt.Sprintf(constants.KVKeyUserGroupIndex, userHash, membership.GroupUID)
	if _, err := s.put(ctx, constants.KVBucketNameMemberships, indexKey, membership.GroupUID); err != nil {
		slog.ErrorContext(ctx, "failed to put membership index", "error", err, "group_uid", membership.GroupUID)
		return errs.NewServiceUnavailable("failed to store membership")
	}

	slog.DebugContext(ctx, "nats storage: membership stored",
		"group_uid", membership.GroupUID,
		"access_level", membership.AccessLevel)
	return nil
}

// DeleteMembership removes a membership and its user index. Deleting a
// membership that does not exist is not an error.
func (s *storage) DeleteMembership(ctx context.Context, groupUID uuid.UUID, userID string) error {
	userHash := model.HashIdentity(userID)
	if err := s.delete(ctx, constants.KVBucketNameMemberships, fmt.Sprintf(constants.KVKeyMembership, groupUID, userHash)); err != nil {
		slog.ErrorContext(ctx, "failed to delete membership", "error", err, "group_uid", groupUID)
		return errs.NewServiceUnavailable("failed to delete membership")
	}
	if err := s.delete(ctx, constants.KVBucketNameMemberships, fmt.Sprintf(constants.KVKeyUserGroupIndex, userHash, groupUID)); err != nil {
		slog.ErrorContext(ctx, "failed to delete membership index", "error", err, "group_uid", groupUID)
		return errs.NewServiceUnavailable("failed to delete membership")
	}
	return nil
}
