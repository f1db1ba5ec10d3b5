// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

func TestConversationWriterOrchestrator_CreateConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	detail, revision, err := env.conversationWriter.CreateConversation(ctx, userPrincipal("alice"), "kickoff", map[string]any{"topic": "planning"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), revision)
	assert.Equal(t, detail.UID, detail.GroupUID, "the group id equals the root conversation id")
	assert.Equal(t, model.AccessOwner, detail.AccessLevel)

	membership, err := env.repo.GetMembership(ctx, detail.GroupUID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.AccessOwner, membership.AccessLevel)

	t.Run("agent without a user identity cannot create", func(t *testing.T) {
		_, _, err := env.conversationWriter.CreateConversation(ctx, model.Principal{ClientID: "a1"}, "nope", nil)
		require.Error(t, err)
		assert.IsType(t, errs.Forbidden{}, err)
	})
}

func TestConversationWriterOrchestrator_UpdateConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	conversation := env.createConversation(t, "alice", "draft")

	title := "final"
	updated, revision, err := env.conversationWriter.UpdateConversation(ctx, alice, conversation, &title, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, uint64(2), revision)

	t.Run("stale revision conflicts", func(t *testing.T) {
		other := "stale"
		_, _, err := env.conversationWriter.UpdateConversation(ctx, alice, conversation, &other, nil, 1)
		require.Error(t, err)
		assert.IsType(t, errs.Conflict{}, err)
	})

	t.Run("zero revision skips the check", func(t *testing.T) {
		other := "forced"
		updated, _, err := env.conversationWriter.UpdateConversation(ctx, alice, conversation, &other, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, "forced", updated.Title)
	})
}

func TestConversationWriterOrchestrator_DeleteConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	conversation := env.createConversation(t, "alice", "doomed")
	_, err := env.membershipWriter.PutMembership(ctx, alice, conversation, "bob", model.AccessWriter)
	require.NoError(t, err)
	env.appendHistory(t, alice, conversation, "last words")

	t.Run("only the owner can delete", func(t *testing.T) {
		err := env.conversationWriter.DeleteConversation(ctx, userPrincipal("bob"), conversation)
		require.Error(t, err)
		assert.IsType(t, errs.Forbidden{}, err)
	})

	require.NoError(t, env.conversationWriter.DeleteConversation(ctx, alice, conversation))

	t.Run("the conversation is gone for everyone", func(t *testing.T) {
		_, _, err := env.conversationReader.GetConversation(ctx, alice, conversation)
		require.Error(t, err)
		assert.IsType(t, errs.NotFound{}, err)
	})

	t.Run("memberships are hard-deleted with one audit per removal", func(t *testing.T) {
		_, err := env.repo.GetMembership(ctx, conversation, "alice")
		assert.Error(t, err)
		_, err = env.repo.GetMembership(ctx, conversation, "bob")
		assert.Error(t, err)

		removed := map[string]int{}
		for _, published := range env.publisher.AuditMessages() {
			if audit, ok := published.Message.(*model.MembershipAudit); ok && audit.Action == model.AuditActionRemove {
				removed[audit.Target]++
			}
		}
		assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, removed)
	})
}

func TestConversationWriterOrchestrator_ForkConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	source := env.createConversation(t, "alice", "trunk")
	env.appendHistory(t, alice, source, "one")
	last := env.appendHistory(t, alice, source, "two")

	t.Run("fork at the end fences on the last visible entry", func(t *testing.T) {
		fork, _, err := env.conversationWriter.ForkConversation(ctx, alice, source, nil, "")
		require.NoError(t, err)
		require.NotNil(t, fork.ForkedAtEntryUID)
		assert.Equal(t, last, *fork.ForkedAtEntryUID)
		assert.Equal(t, "trunk", fork.Title, "empty title inherits the source title")
		assert.Equal(t, source, fork.GroupUID)
	})

	t.Run("reader access suffices to fork", func(t *testing.T) {
		_, err := env.membershipWriter.PutMembership(ctx, alice, source, "carol", model.AccessReader)
		require.NoError(t, err)

		fork, _, err := env.conversationWriter.ForkConversation(ctx, userPrincipal("carol"), source, nil, "carol's view")
		require.NoError(t, err)
		assert.Equal(t, source, fork.GroupUID)
		assert.Equal(t, model.AccessReader, fork.AccessLevel)
	})

	t.Run("a non-member cannot fork", func(t *testing.T) {
		_, _, err := env.conversationWriter.ForkConversation(ctx, userPrincipal("mallory"), source, nil, "")
		require.Error(t, err)
		assert.IsType(t, errs.NotFound{}, err)
	})

	t.Run("fork before an entry of another conversation fails", func(t *testing.T) {
		other := env.createConversation(t, "alice", "elsewhere")
		foreign := env.appendHistory(t, alice, other, "foreign")

		_, _, err := env.conversationWriter.ForkConversation(ctx, alice, source, &foreign, "")
		require.Error(t, err)
		assert.IsType(t, errs.Validation{}, err)
	})

	t.Run("empty source forks as blank slate", func(t *testing.T) {
		empty := env.createConversation(t, "alice", "empty")
		fork, _, err := env.conversationWriter.ForkConversation(ctx, alice, empty, nil, "clean")
		require.NoError(t, err)
		assert.Nil(t, fork.ForkedAtEntryUID)
	})
}

func TestConversationReaderOrchestrator_AdminListConversations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	admin := model.Principal{UserID: "ops", Admin: true}

	live := env.createConversation(t, "alice", "live")
	doomed := env.createConversation(t, "bob", "doomed")
	require.NoError(t, env.conversationWriter.DeleteConversation(ctx, userPrincipal("bob"), doomed))

	t.Run("admin credential is required", func(t *testing.T) {
		_, err := env.conversationReader.AdminListConversations(ctx, userPrincipal("alice"), model.AdminConversationListQuery{})
		require.Error(t, err)
		assert.IsType(t, errs.Forbidden{}, err)
	})

	t.Run("deleted conversations are excluded by default", func(t *testing.T) {
		page, err := env.conversationReader.AdminListConversations(ctx, admin, model.AdminConversationListQuery{})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, live, page.Data[0].UID)
	})

	t.Run("include deleted spans both", func(t *testing.T) {
		page, err := env.conversationReader.AdminListConversations(ctx, admin, model.AdminConversationListQuery{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, page.Data, 2)
	})

	t.Run("only deleted with date bounds", func(t *testing.T) {
		page, err := env.conversationReader.AdminListConversations(ctx, admin, model.AdminConversationListQuery{OnlyDeleted: true})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, doomed, page.Data[0].UID)

		past := time.Now().Add(-time.Hour)
		page, err = env.conversationReader.AdminListConversations(ctx, admin, model.AdminConversationListQuery{
			OnlyDeleted:   true,
			DeletedBefore: &past,
		})
		require.NoError(t, err)
		assert.Empty(t, page.Data)
	})
}

func TestConversationReaderOrchestrator_ListConversations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	first := env.createConversation(t, "alice", "alpha release notes")
	second := env.createConversation(t, "alice", "beta planning")
	fork, _, err := env.conversationWriter.ForkConversation(ctx, alice, first, nil, "alpha retro")
	require.NoError(t, err)

	t.Run("all mode returns every visible conversation", func(t *testing.T) {
		page, err := env.conversationReader.ListConversations(ctx, alice, model.ConversationListQuery{})
		require.NoError(t, err)
		assert.Len(t, page.Data, 3)
	})

	t.Run("roots mode excludes forks", func(t *testing.T) {
		page, err := env.conversationReader.ListConversations(ctx, alice, model.ConversationListQuery{Mode: model.ListModeRoots})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		for _, summary := range page.Data {
			assert.True(t, summary.IsRoot())
		}
	})

	t.Run("latest-fork mode returns one conversation per group", func(t *testing.T) {
		page, err := env.conversationReader.ListConversations(ctx, alice, model.ConversationListQuery{Mode: model.ListModeLatestFork})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		uids := map[any]bool{}
		for _, summary := range page.Data {
			uids[summary.UID] = true
		}
		assert.True(t, uids[fork.UID], "the fork is the latest in its group")
		assert.True(t, uids[second])
	})

	t.Run("title filter matches decrypted titles case-insensitively", func(t *testing.T) {
		page, err := env.conversationReader.ListConversations(ctx, alice, model.ConversationListQuery{Query: "ALPHA"})
		require.NoError(t, err)
		assert.Len(t, page.Data, 2)
	})

	t.Run("another user sees nothing", func(t *testing.T) {
		page, err := env.conversationReader.ListConversations(ctx, userPrincipal("bob"), model.ConversationListQuery{})
		require.NoError(t, err)
		assert.Empty(t, page.Data)
	})
}
