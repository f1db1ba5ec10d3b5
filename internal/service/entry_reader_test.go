// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Fork visibility: the stored fence is the entry before the requested fork
// point and it is inclusive on the parent side.
func TestEntryReaderOrchestrator_ForkInclusiveFence(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")
	agent := agentPrincipal("alice", "a1")

	root := env.createConversation(t, "alice", "planning")
	entryA := env.appendHistory(t, alice, root, "A")
	entryB := env.appendMemory(t, agent, root, 1, `["b"]`)
	entryC := env.appendMemory(t, agent, root, 1, `["c"]`)
	entryD := env.appendHistory(t, alice, root, "D")

	// Fork immediately before D: the fence must be C.
	fork, _, err := env.conversationWriter.ForkConversation(ctx, alice, root, &entryD, "fork")
	require.NoError(t, err)
	require.NotNil(t, fork.ForkedAtEntryUID)
	assert.Equal(t, entryC, *fork.ForkedAtEntryUID)

	entryI := env.appendMemory(t, agent, fork.UID, 1, `["i"]`)
	entryJ := env.appendHistory(t, alice, fork.UID, "J")
	entryK := env.appendHistory(t, alice, fork.UID, "K")
	entryL := env.appendMemory(t, agent, fork.UID, 1, `["l"]`)

	testCases := []struct {
		name     string
		query    model.EntryListQuery
		expected []any
	}{
		{
			name:     "both channels exclude the parent entry past the fence",
			query:    model.EntryListQuery{},
			expected: []any{entryA, entryB, entryC, entryI, entryJ, entryK, entryL},
		},
		{
			name:     "history only",
			query:    model.EntryListQuery{Channel: channelPtr(model.ChannelHistory)},
			expected: []any{entryA, entryJ, entryK},
		},
		{
			name: "memory latest for the agent spans the fork",
			query: model.EntryListQuery{
				Channel:  channelPtr(model.ChannelMemory),
				ClientID: stringPtr("a1"),
			},
			expected: []any{entryB, entryC, entryI, entryL},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := env.entryReader.GetEntries(ctx, alice, fork.UID, tc.query)
			require.NoError(t, err)
			uids := entryUIDs(page.Data)
			require.Len(t, uids, len(tc.expected))
			for i, expected := range tc.expected {
				assert.Equal(t, expected, uids[i], "position %d", i)
			}
		})
	}

	// The parent still sees D.
	page, err := env.entryReader.GetEntries(ctx, alice, root, model.EntryListQuery{Channel: channelPtr(model.ChannelHistory)})
	require.NoError(t, err)
	assert.Equal(t, []any{entryA, entryD}, toAny(entryUIDs(page.Data)))
}

// A newer epoch anywhere in the target supersedes inherited memory.
func TestEntryReaderOrchestrator_EpochSupersessionAcrossFork(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")
	agent := agentPrincipal("alice", "a1")

	root := env.createConversation(t, "alice", "research")
	env.appendHistory(t, alice, root, "hello")
	entryB := env.appendMemory(t, agent, root, 1, `["b"]`)

	fork, _, err := env.conversationWriter.ForkConversation(ctx, alice, root, nil, "")
	require.NoError(t, err)

	entryI := env.appendMemory(t, agent, fork.UID, 1, `["i"]`)
	entryJ := env.appendMemory(t, agent, fork.UID, 2, `["j"]`)

	latest, err := env.entryReader.GetEntries(ctx, agent, fork.UID, model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: stringPtr("a1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{entryJ}, toAny(entryUIDs(latest.Data)))

	// Epoch 1 is still reachable explicitly, across the fork boundary.
	epoch1, err := env.entryReader.GetEntries(ctx, agent, fork.UID, model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: stringPtr("a1"),
		Epoch:    "1",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{entryB, entryI}, toAny(entryUIDs(epoch1.Data)))
}

// MEMORY entries of one agent are invisible to another agent's view.
func TestEntryReaderOrchestrator_MultiAgentIsolation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	agent1 := agentPrincipal("alice", "a1")
	agent2 := agentPrincipal("alice", "a2")

	conversation := env.createConversation(t, "alice", "shared")
	entry1 := env.appendMemory(t, agent1, conversation, 1, `["from-a1"]`)
	entry2 := env.appendMemory(t, agent2, conversation, 1, `["from-a2"]`)

	view1, err := env.entryReader.GetEntries(ctx, agent1, conversation, model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: stringPtr("a1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{entry1}, toAny(entryUIDs(view1.Data)))

	view2, err := env.entryReader.GetEntries(ctx, agent2, conversation, model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: stringPtr("a2"),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{entry2}, toAny(entryUIDs(view2.Data)))

	t.Run("a memory listing without a client id is forbidden", func(t *testing.T) {
		_, err := env.entryReader.GetEntries(ctx, userPrincipal("alice"), conversation, model.EntryListQuery{
			Channel: channelPtr(model.ChannelMemory),
		})
		require.Error(t, err)
		assert.IsType(t, errs.Forbidden{}, err)
	})
}

// A combined listing keeps every memory epoch alongside the history; only
// an explicit MEMORY listing collapses to the latest epoch.
func TestEntryReaderOrchestrator_CombinedListingKeepsAllEpochs(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")
	agent := agentPrincipal("alice", "a1")

	conversation := env.createConversation(t, "alice", "timeline")
	entryH := env.appendHistory(t, alice, conversation, "hello")
	entryM1 := env.appendMemory(t, agent, conversation, 1, `["m1"]`)
	entryM2 := env.appendMemory(t, agent, conversation, 2, `["m2"]`)

	combined, err := env.entryReader.GetEntries(ctx, alice, conversation, model.EntryListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []any{entryH, entryM1, entryM2}, toAny(entryUIDs(combined.Data)))

	memory, err := env.entryReader.GetEntries(ctx, agent, conversation, model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: stringPtr("a1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{entryM2}, toAny(entryUIDs(memory.Data)))
}

// A corrupted fork chain looping back on itself surfaces an error instead
// of walking forever.
func TestEntryReaderOrchestrator_ForkCycleSurfacesInternalError(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now().UTC()

	groupUID := uuid.New()
	require.NoError(t, env.repo.CreateGroup(ctx, &model.ConversationGroup{UID: groupUID, CreatedAt: now}))

	firstUID, secondUID, fence := uuid.New(), uuid.New(), uuid.New()
	_, err := env.repo.CreateConversation(ctx, &model.Conversation{
		UID:                     firstUID,
		GroupUID:                groupUID,
		OwnerUserID:             "alice",
		ForkedAtConversationUID: &secondUID,
		ForkedAtEntryUID:        &fence,
		CreatedAt:               now,
		UpdatedAt:               now,
	})
	require.NoError(t, err)
	_, err = env.repo.CreateConversation(ctx, &model.Conversation{
		UID:                     secondUID,
		GroupUID:                groupUID,
		OwnerUserID:             "alice",
		ForkedAtConversationUID: &firstUID,
		ForkedAtEntryUID:        &fence,
		CreatedAt:               now,
		UpdatedAt:               now,
	})
	require.NoError(t, err)
	require.NoError(t, env.repo.PutMembership(ctx, &model.ConversationMembership{
		GroupUID:    groupUID,
		UserID:      "alice",
		AccessLevel: model.AccessOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	_, err = env.entryReader.GetEntries(ctx, userPrincipal("alice"), firstUID, model.EntryListQuery{})
	require.Error(t, err)
	assert.IsType(t, errs.Unexpected{}, err)
}

// Cached memory pages carry the same cursor a storage-backed page would.
func TestEntryReaderOrchestrator_CachedMemoryPageCarriesCursor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	agent := agentPrincipal("alice", "a1")

	conversation := env.createConversation(t, "alice", "cached pages")
	first := env.appendMemory(t, agent, conversation, 1, `["m1"]`)
	second := env.appendMemory(t, agent, conversation, 1, `["m2"]`)
	env.appendMemory(t, agent, conversation, 1, `["m3"]`)

	query := model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: stringPtr("a1"),
		Limit:    2,
	}

	warm, err := env.entryReader.GetEntries(ctx, agent, conversation, query)
	require.NoError(t, err)
	assert.Equal(t, []any{first, second}, toAny(entryUIDs(warm.Data)))
	require.NotNil(t, warm.AfterCursor)

	hit, err := env.entryReader.GetEntries(ctx, agent, conversation, query)
	require.NoError(t, err)
	assert.Equal(t, []any{first, second}, toAny(entryUIDs(hit.Data)))
	require.NotNil(t, hit.AfterCursor)
	assert.Equal(t, *warm.AfterCursor, *hit.AfterCursor)
}

// A blank-slate fork inherits nothing from its ancestry.
func TestEntryReaderOrchestrator_BlankSlateFork(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	root := env.createConversation(t, "alice", "origin")
	first := env.appendHistory(t, alice, root, "first")
	env.appendHistory(t, alice, root, "second")

	// Forking before the first visible entry produces a nil fence.
	fork, _, err := env.conversationWriter.ForkConversation(ctx, alice, root, &first, "")
	require.NoError(t, err)
	assert.Nil(t, fork.ForkedAtEntryUID)

	fresh := env.appendHistory(t, alice, fork.UID, "fresh start")

	page, err := env.entryReader.GetEntries(ctx, alice, fork.UID, model.EntryListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []any{fresh}, toAny(entryUIDs(page.Data)))
}

func TestEntryReaderOrchestrator_AccessAndPagination(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	conversation := env.createConversation(t, "alice", "paging")
	var uids []any
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		uids = append(uids, env.appendHistory(t, alice, conversation, text))
	}

	t.Run("non-member gets not found", func(t *testing.T) {
		_, err := env.entryReader.GetEntries(ctx, userPrincipal("mallory"), conversation, model.EntryListQuery{})
		require.Error(t, err)
		assert.IsType(t, errs.NotFound{}, err)
	})

	t.Run("admin bypasses membership", func(t *testing.T) {
		admin := model.Principal{UserID: "root", Admin: true}
		page, err := env.entryReader.GetEntries(ctx, admin, conversation, model.EntryListQuery{})
		require.NoError(t, err)
		assert.Len(t, page.Data, 5)
	})

	t.Run("after cursor resumes mid stream", func(t *testing.T) {
		first, err := env.entryReader.GetEntries(ctx, alice, conversation, model.EntryListQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, first.Data, 2)
		require.NotNil(t, first.AfterCursor)
		assert.Equal(t, uids[:2], toAny(entryUIDs(first.Data)))

		anchor := first.Data[1].UID
		second, err := env.entryReader.GetEntries(ctx, alice, conversation, model.EntryListQuery{Limit: 2, AfterEntryUID: &anchor})
		require.NoError(t, err)
		assert.Equal(t, uids[2:4], toAny(entryUIDs(second.Data)))
	})

	t.Run("unknown after anchor is a validation error", func(t *testing.T) {
		other := env.createConversation(t, "alice", "other")
		foreign := env.appendHistory(t, alice, other, "elsewhere")
		_, err := env.entryReader.GetEntries(ctx, alice, conversation, model.EntryListQuery{AfterEntryUID: &foreign})
		require.Error(t, err)
		assert.IsType(t, errs.Validation{}, err)
	})
}

func channelPtr(c model.Channel) *model.Channel {
	return &c
}

func stringPtr(s string) *string {
	return &s
}

func toAny[T any](in []T) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}
