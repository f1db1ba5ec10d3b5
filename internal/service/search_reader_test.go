// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/mock"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

func TestSearchReaderOrchestrator_FulltextSearch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")

	mine := env.createConversation(t, "alice", "release notes")
	env.appendHistory(t, alice, mine, "the deployment pipeline broke again")
	env.appendHistory(t, alice, mine, "pipeline is green now")
	env.appendHistory(t, alice, mine, "unrelated chatter")

	// Another user's conversation must never appear in alice's results.
	bob := userPrincipal("bob")
	theirs := env.createConversation(t, "bob", "private")
	env.appendHistory(t, bob, theirs, "secret pipeline plans")

	results, err := env.searchReader.Search(ctx, alice, model.SearchQuery{Query: "pipeline"})
	require.NoError(t, err)
	require.Len(t, results.Data, 2)
	for _, result := range results.Data {
		assert.Equal(t, mine, result.ConversationUID)
		assert.Equal(t, string(model.SearchTypeFulltext), result.Kind)
		require.NotNil(t, result.ConversationTitle)
		assert.Equal(t, "release notes", *result.ConversationTitle)
		assert.Nil(t, result.Entry)
	}

	t.Run("include entry hydrates the full record", func(t *testing.T) {
		results, err := env.searchReader.Search(ctx, alice, model.SearchQuery{Query: "pipeline", IncludeEntry: true})
		require.NoError(t, err)
		require.NotEmpty(t, results.Data)
		require.NotNil(t, results.Data[0].Entry)
	})

	t.Run("group by conversation keeps the best hit per conversation", func(t *testing.T) {
		results, err := env.searchReader.Search(ctx, alice, model.SearchQuery{Query: "pipeline", GroupByConversation: true})
		require.NoError(t, err)
		assert.Len(t, results.Data, 1)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := env.searchReader.Search(ctx, alice, model.SearchQuery{Query: "   "})
		require.Error(t, err)
		assert.IsType(t, errs.Validation{}, err)
	})
}

func TestSearchReaderOrchestrator_SemanticAvailability(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := userPrincipal("alice")
	env.createConversation(t, "alice", "anything")

	t.Run("explicit semantic without a provider is unavailable", func(t *testing.T) {
		_, err := env.searchReader.Search(ctx, alice, model.SearchQuery{Query: "hello", Type: model.SearchTypeSemantic})
		require.Error(t, err)
		assert.IsType(t, errs.ServiceUnavailable{}, err)
	})

	t.Run("auto falls back to fulltext without a provider", func(t *testing.T) {
		results, err := env.searchReader.Search(ctx, alice, model.SearchQuery{Query: "hello", Type: model.SearchTypeAuto})
		require.NoError(t, err)
		assert.Empty(t, results.Data)
	})
}

func TestSearchReaderOrchestrator_SemanticRanking(t *testing.T) {
	repo := mock.NewMockRepository()
	embeddings := mock.NewMockEmbeddingProvider(true)
	searchReader := NewSearchReaderOrchestrator(
		WithSearchBackend(repo),
		WithSearchEmbeddings(embeddings),
		WithSearchMemberships(repo),
		WithSearchConversations(repo),
		WithSearchEntries(repo),
	)

	env := &testEnv{repo: repo, publisher: mock.NewMockMessagePublisher()}
	env.conversationWriter = NewConversationWriterOrchestrator(
		WithConversationWriterStorage(repo),
		WithConversationWriterMemberships(repo),
		WithConversationWriterEntries(repo),
	)
	env.entryWriter = NewEntryWriterOrchestrator(
		WithEntryWriterStorage(repo),
		WithEntryWriterConversations(repo),
		WithEntryWriterMemberships(repo),
	)

	ctx := context.Background()
	alice := userPrincipal("alice")
	conversation := env.createConversation(t, "alice", "vectors")
	matching := env.appendHistory(t, alice, conversation, "kubernetes cluster autoscaling policies")
	other := env.appendHistory(t, alice, conversation, "birthday cake recipes and decorations")

	// Index both entries the way the background worker would.
	for _, entryUID := range []uuid.UUID{matching, other} {
		entry, err := repo.GetEntry(ctx, entryUID)
		require.NoError(t, err)
		vectors, err := embeddings.Embed(ctx, []string{*entry.IndexedContent})
		require.NoError(t, err)
		require.NoError(t, repo.UpsertEmbedding(ctx, entry.GroupUID, entry.ConversationUID, entry.UID, vectors[0], embeddings.Model()))
	}

	results, err := searchReader.Search(ctx, alice, model.SearchQuery{
		Query: "kubernetes autoscaling",
		Type:  model.SearchTypeSemantic,
	})
	require.NoError(t, err)
	require.Len(t, results.Data, 2)
	assert.Equal(t, matching, results.Data[0].EntryUID, "the on-topic entry ranks first")
	assert.Equal(t, string(model.SearchTypeSemantic), results.Data[0].Kind)
	assert.Greater(t, results.Data[0].Score, results.Data[1].Score)
}
