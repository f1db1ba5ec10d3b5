// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"time"

	"github.com/google/uuid"
)

// ConversationGroup is the access-control boundary owning one fork tree of
// conversations. The group id equals the root conversation id.
type ConversationGroup struct {
	UID       uuid.UUID  `json:"uid"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Conversation is a node in a fork tree.
type Conversation struct {
	UID         uuid.UUID `json:"uid"`
	GroupUID    uuid.UUID `json:"group_uid"`
	OwnerUserID string    `json:"owner_user_id"`

	// Title is plaintext in the domain model; the storage layer applies the
	// at-rest encryption envelope.
	Title    string         `json:"title"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Fork metadata. Both unset for a root conversation; for roots the
	// conversation uid equals the group uid.
	ForkedAtConversationUID *uuid.UUID `json:"forked_at_conversation_uid,omitempty"`
	// ForkedAtEntryUID is the last entry of the parent visible to this
	// fork (inclusive fence); nil means a blank-slate fork.
	ForkedAtEntryUID *uuid.UUID `json:"forked_at_entry_uid,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsRoot reports whether the conversation is the root of its group.
func (c *Conversation) IsRoot() bool {
	return c.ForkedAtConversationUID == nil
}

// ConversationListMode selects the visibility scope of a conversation list.
type ConversationListMode string

// Conversation list modes
const (
	// ListModeAll returns every visible conversation.
	ListModeAll ConversationListMode = "all"
	// ListModeRoots excludes forked conversations.
	ListModeRoots ConversationListMode = "roots"
	// ListModeLatestFork returns the most recently updated conversation per group.
	ListModeLatestFork ConversationListMode = "latest-fork"
)

// Valid reports whether the mode is recognized.
func (m ConversationListMode) Valid() bool {
	switch m {
	case ListModeAll, ListModeRoots, ListModeLatestFork:
		return true
	}
	return false
}

// ConversationListQuery holds the parameters of a conversation list.
type ConversationListQuery struct {
	Mode  ConversationListMode `json:"mode"`
	Query string               `json:"query,omitempty"`
	Limit int                  `json:"limit"`
	After *string              `json:"after,omitempty"`
}

// AdminConversationListQuery holds the parameters of the cross-tenant
// admin listing. Deleted conversations are excluded unless asked for.
type AdminConversationListQuery struct {
	IncludeDeleted bool       `json:"include_deleted,omitempty"`
	OnlyDeleted    bool       `json:"only_deleted,omitempty"`
	DeletedBefore  *time.Time `json:"deleted_before,omitempty"`
	DeletedAfter   *time.Time `json:"deleted_after,omitempty"`
	Limit          int        `json:"limit"`
	After          *string    `json:"after,omitempty"`
}

// PagedConversations is a paginated conversation list.
type PagedConversations struct {
	Data        []ConversationSummary `json:"data"`
	AfterCursor *string               `json:"after_cursor,omitempty"`
}

// ConversationSummary is a lightweight conversation representation for lists.
type ConversationSummary struct {
	Conversation
	AccessLevel AccessLevel `json:"access_level"`
}

// ConversationDetail is the full conversation for get/create/update.
type ConversationDetail struct {
	ConversationSummary
	HasResponseInProgress bool `json:"has_response_in_progress,omitempty"`
}

// ConversationForkSummary represents a fork in a fork listing.
type ConversationForkSummary struct {
	UID                     uuid.UUID  `json:"uid"`
	Title                   string     `json:"title"`
	ForkedAtConversationUID *uuid.UUID `json:"forked_at_conversation_uid,omitempty"`
	ForkedAtEntryUID        *uuid.UUID `json:"forked_at_entry_uid,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}

// AncestryStep is one node of a fork ancestry, root-first. StopAtEntryUID
// is the inclusive fence taken from the child in the chain; nil on the
// target conversation means "include everything".
type AncestryStep struct {
	ConversationUID uuid.UUID
	StopAtEntryUID  *uuid.UUID
}
