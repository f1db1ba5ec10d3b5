// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// KV bucket names. One bucket per entity family, mirroring the primary
// access paths: entries are scanned per group in key order, everything
// else is fetched by id or enumerated per group.
const (
	// KVBucketNameConversations holds group metadata and conversation records.
	KVBucketNameConversations = "memory-conversations"

	// KVBucketNameEntries holds entry records keyed in group order.
	KVBucketNameEntries = "memory-entries"

	// KVBucketNameMemberships holds membership records and the user->group index.
	KVBucketNameMemberships = "memory-memberships"

	// KVBucketNameTransfers holds pending ownership transfers.
	KVBucketNameTransfers = "memory-transfers"

	// KVBucketNameAttachments holds attachment records (metadata only).
	KVBucketNameAttachments = "memory-attachments"

	// KVBucketNameTasks holds background task rows.
	KVBucketNameTasks = "memory-tasks"

	// KVBucketNameCache holds the memory-entries read-through cache.
	KVBucketNameCache = "memory-cache"

	// KVBucketNameEmbeddings holds entry embedding vectors.
	KVBucketNameEmbeddings = "memory-embeddings"

	// KVBucketNameLocators holds response-resumer locators. The bucket is
	// created with a short TTL so stale locators expire on their own.
	KVBucketNameLocators = "memory-response-locators"
)

// Key patterns. KV keys are dot-separated so prefix filters can use
// subject-style wildcards (e.g. "group.<id>.entry.>").
const (
	// KVKeyGroupMeta is the key pattern for group metadata: group id.
	KVKeyGroupMeta = "group.%s.meta"

	// KVKeyConversation is the key pattern for a conversation: group id, conversation id.
	KVKeyConversation = "group.%s.conv.%s"

	// KVKeyConversationPrefix is the wildcard filter for a group's conversations.
	KVKeyConversationPrefix = "group.%s.conv.*"

	// KVKeyGroupMetaAll is the wildcard filter for every group's metadata.
	KVKeyGroupMetaAll = "group.*.meta"

	// KVKeyConversationAll is the wildcard filter for every conversation in
	// the bucket, used by admin listings.
	KVKeyConversationAll = "group.*.conv.*"

	// KVKeyConversationIndex maps a conversation id to its primary key.
	KVKeyConversationIndex = "convidx.%s"

	// KVKeyEntry is the key pattern for an entry: group id, zero-padded
	// creation nanos, entry id. Lexicographic key order is (createdAt, id)
	// order within the group.
	KVKeyEntry = "group.%s.entry.%020d-%s"

	// KVKeyEntryPrefix is the wildcard filter for all entries in a group.
	KVKeyEntryPrefix = "group.%s.entry.>"

	// KVKeyEntryAll is the wildcard filter for every entry in the bucket.
	KVKeyEntryAll = "group.*.entry.>"

	// KVKeyEntryIndex maps an entry id to its primary key.
	KVKeyEntryIndex = "entryidx.%s"

	// KVKeyMembership is the key pattern for a membership: group id, hashed user id.
	KVKeyMembership = "group.%s.member.%s"

	// KVKeyMembershipPrefix is the wildcard filter for all memberships in a group.
	KVKeyMembershipPrefix = "group.%s.member.>"

	// KVKeyUserGroupIndex is the user->group index: hashed user id, group id.
	KVKeyUserGroupIndex = "user.%s.group.%s"

	// KVKeyUserGroupPrefix is the wildcard filter for a user's groups.
	KVKeyUserGroupPrefix = "user.%s.group.>"

	// KVKeyPendingTransfer is the at-most-one pending transfer row per group.
	KVKeyPendingTransfer = "group.%s.transfer"

	// KVKeyTransferIndex maps a transfer id to its group row.
	KVKeyTransferIndex = "transferidx.%s"

	// KVKeyAttachment is the key pattern for an attachment: group id, attachment id.
	KVKeyAttachment = "group.%s.attach.%s"

	// KVKeyAttachmentPrefix is the wildcard filter for a group's attachments.
	KVKeyAttachmentPrefix = "group.%s.attach.>"

	// KVKeyTask is the key pattern for a task row: task id.
	KVKeyTask = "task.%s"

	// KVKeyTaskName is the unique-constraint key for named (idempotent) tasks.
	KVKeyTaskName = "taskname.%s"

	// KVKeyCacheEntry is the memory cache key: conversation id, hashed client id.
	KVKeyCacheEntry = "conv.%s.client.%s"

	// KVKeyEmbedding is the key pattern for an embedding: group id, entry id.
	KVKeyEmbedding = "group.%s.vec.%s"

	// KVKeyEmbeddingPrefix is the wildcard filter for a group's embeddings.
	KVKeyEmbeddingPrefix = "group.%s.vec.>"

	// KVKeyLocator is the resumer locator key: conversation id.
	KVKeyLocator = "response.%s"
)
