// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package port defines the capability interfaces between the service layer
// and its collaborators. Each interface has a closed set of variants chosen
// at startup; wiring is immutable after construction.
package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// ConversationReader defines read operations on groups and conversations.
type ConversationReader interface {
	// GetGroup retrieves group metadata by id.
	GetGroup(ctx context.Context, groupUID uuid.UUID) (*model.ConversationGroup, error)

	// GetConversation retrieves a conversation by id with its revision.
	GetConversation(ctx context.Context, conversationUID uuid.UUID) (*model.Conversation, uint64, error)

	// ListGroupConversations returns the non-deleted conversations of a
	// group ordered by creation time.
	ListGroupConversations(ctx context.Context, groupUID uuid.UUID) ([]*model.Conversation, error)

	// ListAllConversations returns every conversation in the store, deleted
	// included. Reserved for admin listings.
	ListAllConversations(ctx context.Context) ([]*model.Conversation, error)

	// ListDeletedGroups returns ids of groups soft-deleted before the cutoff.
	ListDeletedGroups(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	// CountDeletedGroups counts groups soft-deleted before the cutoff.
	CountDeletedGroups(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConversationWriter defines write operations on groups and conversations.
type ConversationWriter interface {
	// CreateGroup stores new group metadata.
	CreateGroup(ctx context.Context, group *model.ConversationGroup) error

	// CreateConversation stores a new conversation and returns its revision.
	CreateConversation(ctx context.Context, conversation *model.Conversation) (uint64, error)

	// UpdateConversation stores a conversation with revision checking.
	UpdateConversation(ctx context.Context, conversation *model.Conversation, expectedRevision uint64) (uint64, error)

	// MarkGroupDeleted soft-deletes the group and every conversation in it.
	MarkGroupDeleted(ctx context.Context, groupUID uuid.UUID, deletedAt time.Time) error

	// HardDeleteGroup evicts every record owned by the group across all
	// buckets: conversations, entries, memberships, transfers, attachments
	// and embeddings.
	HardDeleteGroup(ctx context.Context, groupUID uuid.UUID) error
}

// ConversationReaderWriter combines conversation reads and writes.
type ConversationReaderWriter interface {
	ConversationReader
	ConversationWriter
}
