// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// NATS subject constants for the request/reply front door
const (
	// ConversationGetSubject returns a conversation by id
	ConversationGetSubject = "lfx.memory-api.conversation_get"
	// ConversationListSubject lists conversations visible to a user
	ConversationListSubject = "lfx.memory-api.conversation_list"
	// ConversationCreateSubject creates a root conversation
	ConversationCreateSubject = "lfx.memory-api.conversation_create"
	// ConversationUpdateSubject updates title and metadata
	ConversationUpdateSubject = "lfx.memory-api.conversation_update"
	// ConversationDeleteSubject soft-deletes a conversation group
	ConversationDeleteSubject = "lfx.memory-api.conversation_delete"
	// ConversationForkSubject forks a conversation at an entry
	ConversationForkSubject = "lfx.memory-api.conversation_fork"
	// ConversationForksSubject lists the fork tree of a group
	ConversationForksSubject = "lfx.memory-api.conversation_forks"
	// ConversationAdminListSubject lists conversations across tenants
	ConversationAdminListSubject = "lfx.memory-api.conversation_admin_list"
	// EntriesListSubject lists entries for a conversation
	EntriesListSubject = "lfx.memory-api.entries_list"
	// EntryAppendSubject appends entries to a conversation
	EntryAppendSubject = "lfx.memory-api.entry_append"
	// EntrySyncSubject performs an agent memory sync
	EntrySyncSubject = "lfx.memory-api.entry_sync"
	// MembershipListSubject lists the memberships of a group
	MembershipListSubject = "lfx.memory-api.membership_list"
	// MembershipPutSubject grants or changes a membership
	MembershipPutSubject = "lfx.memory-api.membership_put"
	// MembershipRemoveSubject removes a membership
	MembershipRemoveSubject = "lfx.memory-api.membership_remove"
	// TransferRequestSubject opens a pending ownership transfer
	TransferRequestSubject = "lfx.memory-api.transfer_request"
	// TransferAcceptSubject accepts a pending ownership transfer
	TransferAcceptSubject = "lfx.memory-api.transfer_accept"
	// TransferRejectSubject rejects or withdraws a pending transfer
	TransferRejectSubject = "lfx.memory-api.transfer_reject"
	// SearchSubject runs a scoped entry search
	SearchSubject = "lfx.memory-api.search"
	// ResponseCancelSubject requests cancellation of an in-flight response
	ResponseCancelSubject = "lfx.memory-api.response_cancel"
	// ResponseCheckSubject filters conversation ids to those recording
	ResponseCheckSubject = "lfx.memory-api.response_check"
	// ResponseEnabledSubject probes the response resumer configuration
	ResponseEnabledSubject = "lfx.memory-api.response_enabled"
	// ReadySubject reports service readiness
	ReadySubject = "lfx.memory-api.is_ready"
)

// NATS subject constants for message publishing
const (
	// IndexEntrySubject carries indexer messages for entry content
	IndexEntrySubject = "lfx.index.memory_entry"

	// AuditMembershipSubject carries audit records for membership and
	// ownership mutations
	AuditMembershipSubject = "lfx.audit.memory_membership"
)

// MemoryAPIQueue is the NATS queue group for memory service subscriptions
const MemoryAPIQueue = "lfx-v2-memory-api"
