// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

func TestEntryWriterOrchestrator_SyncAgentEntry(t *testing.T) {
	agent := agentPrincipal("alice", "a1")

	testCases := []struct {
		name            string
		incoming        string
		expectNoOp      bool
		expectedEpoch   int64
		expectedIncr    bool
		expectedContent string
		expectedLatest  string
	}{
		{
			name:          "deep equal input is a no-op",
			incoming:      `["m1","m2","m3"]`,
			expectNoOp:    true,
			expectedEpoch: 1,
		},
		{
			name:            "proper prefix appends the suffix at the same epoch",
			incoming:        `["m1","m2","m3","m4"]`,
			expectedEpoch:   1,
			expectedIncr:    false,
			expectedContent: `["m4"]`,
			expectedLatest:  `["m1","m2","m3","m4"]`,
		},
		{
			name:            "divergence writes the full state at a new epoch",
			incoming:        `["m1","m2","x"]`,
			expectedEpoch:   2,
			expectedIncr:    true,
			expectedContent: `["m1","m2","x"]`,
			expectedLatest:  `["m1","m2","x"]`,
		},
		{
			name:            "shrink writes the full state at a new epoch",
			incoming:        `["m1"]`,
			expectedEpoch:   2,
			expectedIncr:    true,
			expectedContent: `["m1"]`,
			expectedLatest:  `["m1"]`,
		},
		{
			name:            "clear writes an empty array at a new epoch",
			incoming:        `[]`,
			expectedEpoch:   2,
			expectedIncr:    true,
			expectedContent: `[]`,
			expectedLatest:  `[]`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			ctx := context.Background()
			conversation := env.createConversation(t, "alice", "agent workspace")

			seed, err := env.entryWriter.SyncAgentEntry(ctx, agent, conversation, "memory-items/v1", json.RawMessage(`["m1","m2","m3"]`))
			require.NoError(t, err)
			require.NotNil(t, seed.Epoch)
			require.Equal(t, int64(1), *seed.Epoch)
			require.False(t, seed.EpochIncremented)

			result, err := env.entryWriter.SyncAgentEntry(ctx, agent, conversation, "memory-items/v1", json.RawMessage(tc.incoming))
			require.NoError(t, err)

			if tc.expectNoOp {
				assert.True(t, result.NoOp)
				assert.Nil(t, result.Entry)
				require.NotNil(t, result.Epoch)
				assert.Equal(t, tc.expectedEpoch, *result.Epoch)
				return
			}

			assert.False(t, result.NoOp)
			require.NotNil(t, result.Entry)
			require.NotNil(t, result.Epoch)
			assert.Equal(t, tc.expectedEpoch, *result.Epoch)
			assert.Equal(t, tc.expectedIncr, result.EpochIncremented)
			assert.JSONEq(t, tc.expectedContent, string(result.Entry.Content))

			assertLatestMemory(t, env, agent, conversation, tc.expectedLatest)
		})
	}
}

// First sync into an existing conversation starts at epoch 1 without an
// increment; syncing into a missing conversation auto-creates it and the
// first epoch counts as incremented.
func TestEntryWriterOrchestrator_SyncFirstWrite(t *testing.T) {
	agent := agentPrincipal("alice", "a1")
	ctx := context.Background()

	t.Run("existing conversation", func(t *testing.T) {
		env := newTestEnv()
		conversation := env.createConversation(t, "alice", "existing")

		result, err := env.entryWriter.SyncAgentEntry(ctx, agent, conversation, "memory-items/v1", json.RawMessage(`["m1"]`))
		require.NoError(t, err)
		require.NotNil(t, result.Epoch)
		assert.Equal(t, int64(1), *result.Epoch)
		assert.False(t, result.EpochIncremented)
	})

	t.Run("auto-created conversation", func(t *testing.T) {
		env := newTestEnv()
		conversationUID := uuid.New()

		result, err := env.entryWriter.SyncAgentEntry(ctx, agent, conversationUID, "memory-items/v1", json.RawMessage(`["m1"]`))
		require.NoError(t, err)
		require.NotNil(t, result.Epoch)
		assert.Equal(t, int64(1), *result.Epoch)
		assert.True(t, result.EpochIncremented)

		// The auto-created conversation is owned by the on-behalf user.
		detail, _, err := env.conversationReader.GetConversation(ctx, userPrincipal("alice"), conversationUID)
		require.NoError(t, err)
		assert.Equal(t, "alice", detail.OwnerUserID)
		assert.Equal(t, model.AccessOwner, detail.AccessLevel)
	})
}

// The prefix rule is confluent: syncing A then A||B yields the same latest
// content as syncing A||B directly.
func TestEntryWriterOrchestrator_SyncPrefixConfluence(t *testing.T) {
	agent := agentPrincipal("alice", "a1")
	ctx := context.Background()

	stepwise := newTestEnv()
	conversation1 := stepwise.createConversation(t, "alice", "stepwise")
	_, err := stepwise.entryWriter.SyncAgentEntry(ctx, agent, conversation1, "memory-items/v1", json.RawMessage(`["a1","a2"]`))
	require.NoError(t, err)
	_, err = stepwise.entryWriter.SyncAgentEntry(ctx, agent, conversation1, "memory-items/v1", json.RawMessage(`["a1","a2","b1"]`))
	require.NoError(t, err)

	direct := newTestEnv()
	conversation2 := direct.createConversation(t, "alice", "direct")
	_, err = direct.entryWriter.SyncAgentEntry(ctx, agent, conversation2, "memory-items/v1", json.RawMessage(`["a1","a2","b1"]`))
	require.NoError(t, err)

	assertLatestMemory(t, stepwise, agent, conversation1, `["a1","a2","b1"]`)
	assertLatestMemory(t, direct, agent, conversation2, `["a1","a2","b1"]`)
}

func TestEntryWriterOrchestrator_AppendEntries(t *testing.T) {
	ctx := context.Background()
	alice := userPrincipal("alice")
	agent := agentPrincipal("alice", "a1")

	t.Run("append auto-creates a root conversation with an inferred title", func(t *testing.T) {
		env := newTestEnv()
		conversationUID := uuid.New()

		created, err := env.entryWriter.AppendEntries(ctx, alice, conversationUID, []model.CreateEntryRequest{{
			Channel:     model.ChannelHistory,
			ContentType: "chat-items/v1",
			Content:     json.RawMessage(`[{"text":"what is the answer to life, the universe and everything else"}]`),
		}})
		require.NoError(t, err)
		require.Len(t, created, 1)

		detail, _, err := env.conversationReader.GetConversation(ctx, alice, conversationUID)
		require.NoError(t, err)
		assert.Equal(t, "alice", detail.OwnerUserID)
		assert.Len(t, detail.Title, 40)
	})

	t.Run("append with fork metadata auto-creates a fork in the parent group", func(t *testing.T) {
		env := newTestEnv()
		root := env.createConversation(t, "alice", "parent")
		fence := env.appendHistory(t, alice, root, "anchor")

		forkUID := uuid.New()
		_, err := env.entryWriter.AppendEntries(ctx, alice, forkUID, []model.CreateEntryRequest{{
			Channel:                 model.ChannelHistory,
			ContentType:             "chat-items/v1",
			Content:                 json.RawMessage(`[{"text":"continuing"}]`),
			ForkedAtConversationUID: &root,
			ForkedAtEntryUID:        &fence,
		}})
		require.NoError(t, err)

		detail, _, err := env.conversationReader.GetConversation(ctx, alice, forkUID)
		require.NoError(t, err)
		assert.Equal(t, root, detail.GroupUID)
		require.NotNil(t, detail.ForkedAtConversationUID)
		assert.Equal(t, root, *detail.ForkedAtConversationUID)
	})

	t.Run("reader access suffices to fork via append", func(t *testing.T) {
		env := newTestEnv()
		root := env.createConversation(t, "alice", "parent")
		fence := env.appendHistory(t, alice, root, "anchor")
		_, err := env.membershipWriter.PutMembership(ctx, alice, root, "carol", model.AccessReader)
		require.NoError(t, err)

		forkUID := uuid.New()
		_, err = env.entryWriter.AppendEntries(ctx, userPrincipal("carol"), forkUID, []model.CreateEntryRequest{{
			Channel:                 model.ChannelHistory,
			ContentType:             "chat-items/v1",
			Content:                 json.RawMessage(`[{"text":"side note"}]`),
			ForkedAtConversationUID: &root,
			ForkedAtEntryUID:        &fence,
		}})
		require.NoError(t, err)

		detail, _, err := env.conversationReader.GetConversation(ctx, alice, forkUID)
		require.NoError(t, err)
		assert.Equal(t, root, detail.GroupUID)
	})

	t.Run("auto-create title comes from the first history entry", func(t *testing.T) {
		env := newTestEnv()
		conversationUID := uuid.New()

		created, err := env.entryWriter.AppendEntries(ctx, agent, conversationUID, []model.CreateEntryRequest{
			{
				Channel:     model.ChannelMemory,
				ContentType: "memory-items/v1",
				Content:     json.RawMessage(`["scratch"]`),
			},
			{
				Channel:     model.ChannelHistory,
				ContentType: "chat-items/v1",
				Content:     json.RawMessage(`[{"type":"image"},{"text":"quarterly report"}]`),
			},
		})
		require.NoError(t, err)
		require.Len(t, created, 2)

		detail, _, err := env.conversationReader.GetConversation(ctx, alice, conversationUID)
		require.NoError(t, err)
		assert.Equal(t, "quarterly report", detail.Title)
	})

	t.Run("memory appends warm the cache with the latest view", func(t *testing.T) {
		env := newTestEnv()
		conversation := env.createConversation(t, "alice", "warm")

		entry := env.appendMemory(t, agent, conversation, 1, `["m1"]`)
		cached, err := env.repo.GetMemoryEntries(ctx, conversation, "a1")
		require.NoError(t, err)
		require.NotNil(t, cached)
		require.Len(t, cached.Entries, 1)
		assert.Equal(t, entry, cached.Entries[0].UID)

		replacement := env.appendMemory(t, agent, conversation, 2, `["m2"]`)
		cached, err = env.repo.GetMemoryEntries(ctx, conversation, "a1")
		require.NoError(t, err)
		require.NotNil(t, cached)
		require.Len(t, cached.Entries, 1)
		assert.Equal(t, replacement, cached.Entries[0].UID)
	})

	t.Run("memory append without an epoch gets the next epoch", func(t *testing.T) {
		env := newTestEnv()
		conversation := env.createConversation(t, "alice", "epochs")
		env.appendMemory(t, agent, conversation, 3, `["seed"]`)

		created, err := env.entryWriter.AppendEntries(ctx, agent, conversation, []model.CreateEntryRequest{{
			Channel:     model.ChannelMemory,
			ContentType: "memory-items/v1",
			Content:     json.RawMessage(`["next"]`),
		}})
		require.NoError(t, err)
		require.Len(t, created, 1)
		require.NotNil(t, created[0].Epoch)
		assert.Equal(t, int64(4), *created[0].Epoch)
	})

	t.Run("memory append requires an agent credential", func(t *testing.T) {
		env := newTestEnv()
		conversation := env.createConversation(t, "alice", "guarded")

		_, err := env.entryWriter.AppendEntries(ctx, alice, conversation, []model.CreateEntryRequest{{
			Channel:     model.ChannelMemory,
			ContentType: "memory-items/v1",
			Content:     json.RawMessage(`["nope"]`),
		}})
		require.Error(t, err)
		assert.IsType(t, errs.Validation{}, err)
	})

	t.Run("reader access cannot append", func(t *testing.T) {
		env := newTestEnv()
		conversation := env.createConversation(t, "alice", "read only")
		_, err := env.membershipWriter.PutMembership(ctx, alice, conversation, "bob", model.AccessReader)
		require.NoError(t, err)

		_, err = env.entryWriter.AppendEntries(ctx, userPrincipal("bob"), conversation, []model.CreateEntryRequest{{
			Channel:     model.ChannelHistory,
			ContentType: "chat-items/v1",
			Content:     json.RawMessage(`[{"text":"denied"}]`),
		}})
		require.Error(t, err)
		assert.IsType(t, errs.Forbidden{}, err)
	})
}

// assertLatestMemory checks the concatenated latest-epoch memory view.
func assertLatestMemory(t *testing.T, env *testEnv, agent model.Principal, conversationUID uuid.UUID, expectedJSON string) {
	t.Helper()

	page, err := env.entryReader.GetEntries(context.Background(), agent, conversationUID, model.EntryListQuery{
		Channel:  channelPtr(model.ChannelMemory),
		ClientID: &agent.ClientID,
	})
	require.NoError(t, err)

	var combined []any
	for _, entry := range page.Data {
		items, err := model.ParseContentItems(entry.Content)
		require.NoError(t, err)
		combined = append(combined, items...)
	}
	actual, err := model.MarshalContentItems(combined)
	require.NoError(t, err)
	assert.JSONEq(t, expectedJSON, string(actual))
}
