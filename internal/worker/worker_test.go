// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/mock"
)

func newTestWorker(repo *mock.MockRepository, embeddings port.EmbeddingProvider, reaper SpoolReaper) *TaskWorker {
	return NewTaskWorker(
		WithWorkerConfig(Config{GroupRetention: time.Hour}),
		WithWorkerQueue(repo),
		WithWorkerEntries(repo),
		WithWorkerConversations(repo),
		WithWorkerSearch(repo),
		WithWorkerEmbeddings(embeddings),
		WithWorkerSpoolReaper(reaper),
	)
}

func seedGroup(t *testing.T, repo *mock.MockRepository) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	uid := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateGroup(ctx, &model.ConversationGroup{UID: uid, CreatedAt: now}))
	_, err := repo.CreateConversation(ctx, &model.Conversation{
		UID: uid, GroupUID: uid, OwnerUserID: "alice", Title: "work", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	return uid
}

func seedIndexableEntry(t *testing.T, repo *mock.MockRepository, groupUID uuid.UUID, text string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	entry := &model.Entry{
		UID:             uuid.New(),
		ConversationUID: groupUID,
		GroupUID:        groupUID,
		Channel:         model.ChannelHistory,
		ContentType:     "application/json",
		Content:         json.RawMessage(`[{"text":"` + text + `"}]`),
		IndexedContent:  &text,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.CreateEntry(ctx, entry))
	return entry.UID
}

func enqueue(t *testing.T, repo *mock.MockRepository, taskType string) {
	t.Helper()
	name := taskType
	require.NoError(t, repo.CreateTask(context.Background(), &model.Task{
		UID:       uuid.New(),
		Type:      taskType,
		Name:      &name,
		RetryAt:   time.Now().Add(-time.Second),
		CreatedAt: time.Now(),
	}))
}

func TestTaskWorker_VectorIndexSweep(t *testing.T) {
	repo := mock.NewMockRepository()
	embeddings := mock.NewMockEmbeddingProvider(true)
	worker := newTestWorker(repo, embeddings, nil)
	ctx := context.Background()

	groupUID := seedGroup(t, repo)
	first := seedIndexableEntry(t, repo, groupUID, "kubernetes autoscaling policies")
	second := seedIndexableEntry(t, repo, groupUID, "cake recipes")

	enqueue(t, repo, model.TaskTypeVectorIndex)
	require.NoError(t, worker.RunOnce(ctx))

	t.Run("entries are marked indexed", func(t *testing.T) {
		for _, entryUID := range []uuid.UUID{first, second} {
			entry, err := repo.GetEntry(ctx, entryUID)
			require.NoError(t, err)
			assert.NotNil(t, entry.IndexedAt)
		}
	})

	t.Run("vectors are searchable", func(t *testing.T) {
		vectors, err := embeddings.Embed(ctx, []string{"kubernetes autoscaling"})
		require.NoError(t, err)
		results, err := repo.SemanticSearch(ctx, []uuid.UUID{groupUID}, vectors[0], 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, first, results[0].EntryUID)
	})

	t.Run("the settled task is gone from the queue", func(t *testing.T) {
		tasks, err := repo.ClaimReadyTasks(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("a second sweep with nothing pending is a no-op", func(t *testing.T) {
		enqueue(t, repo, model.TaskTypeVectorIndex)
		require.NoError(t, worker.RunOnce(ctx))
	})
}

func TestTaskWorker_ContentIndexSweep(t *testing.T) {
	repo := mock.NewMockRepository()
	worker := newTestWorker(repo, mock.NewMockEmbeddingProvider(false), nil)
	ctx := context.Background()

	groupUID := seedGroup(t, repo)
	raw := &model.Entry{
		UID:             uuid.New(),
		ConversationUID: groupUID,
		GroupUID:        groupUID,
		Channel:         model.ChannelHistory,
		ContentType:     "chat-items/v1",
		Content:         json.RawMessage(`[{"text":"release"},{"type":"image"},{"text":"notes"}]`),
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.CreateEntry(ctx, raw))

	epoch := int64(1)
	clientID := "a1"
	memory := &model.Entry{
		UID:             uuid.New(),
		ConversationUID: groupUID,
		GroupUID:        groupUID,
		ClientID:        &clientID,
		Channel:         model.ChannelMemory,
		Epoch:           &epoch,
		ContentType:     "memory-items/v1",
		Content:         json.RawMessage(`["private"]`),
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.CreateEntry(ctx, memory))

	enqueue(t, repo, model.TaskTypeVectorIndex)
	require.NoError(t, worker.RunOnce(ctx))

	t.Run("history entries get a flattened text projection", func(t *testing.T) {
		entry, err := repo.GetEntry(ctx, raw.UID)
		require.NoError(t, err)
		require.NotNil(t, entry.IndexedContent)
		assert.Equal(t, "release notes", *entry.IndexedContent)
	})

	t.Run("memory entries are never projected", func(t *testing.T) {
		entry, err := repo.GetEntry(ctx, memory.UID)
		require.NoError(t, err)
		assert.Nil(t, entry.IndexedContent)
	})

	t.Run("projected entries are fulltext searchable", func(t *testing.T) {
		results, err := repo.FulltextSearch(ctx, []uuid.UUID{groupUID}, "release", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, raw.UID, results[0].EntryUID)
	})

	t.Run("a second sweep has nothing left to project", func(t *testing.T) {
		entries, position, err := repo.ListUnindexedEntries(ctx, 10, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Empty(t, position)
	})
}

func TestTaskWorker_VectorIndexWithoutProvider(t *testing.T) {
	repo := mock.NewMockRepository()
	worker := newTestWorker(repo, mock.NewMockEmbeddingProvider(false), nil)
	ctx := context.Background()

	groupUID := seedGroup(t, repo)
	entryUID := seedIndexableEntry(t, repo, groupUID, "pending forever")

	enqueue(t, repo, model.TaskTypeVectorIndex)
	require.NoError(t, worker.RunOnce(ctx))

	// The sweep succeeds without touching the entry; it stays pending
	// until a provider is configured.
	entry, err := repo.GetEntry(ctx, entryUID)
	require.NoError(t, err)
	assert.Nil(t, entry.IndexedAt)
}

func TestTaskWorker_GroupEviction(t *testing.T) {
	repo := mock.NewMockRepository()
	worker := newTestWorker(repo, mock.NewMockEmbeddingProvider(false), nil)
	ctx := context.Background()

	expired := seedGroup(t, repo)
	seedIndexableEntry(t, repo, expired, "doomed content")
	require.NoError(t, repo.MarkGroupDeleted(ctx, expired, time.Now().Add(-2*time.Hour)))

	recent := seedGroup(t, repo)
	require.NoError(t, repo.MarkGroupDeleted(ctx, recent, time.Now().Add(-time.Minute)))

	enqueue(t, repo, model.TaskTypeGroupEviction)
	require.NoError(t, worker.RunOnce(ctx))

	t.Run("groups past retention are hard-deleted", func(t *testing.T) {
		_, err := repo.GetGroup(ctx, expired)
		assert.Error(t, err)
		entries, err := repo.ListGroupEntries(ctx, expired)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("recently deleted groups are retained", func(t *testing.T) {
		_, err := repo.GetGroup(ctx, recent)
		assert.NoError(t, err)
	})
}

type recordingReaper struct {
	calls  int
	reaped int
	err    error
}

func (r *recordingReaper) ReapOrphanSpools(ctx context.Context) (int, error) {
	r.calls++
	return r.reaped, r.err
}

func TestTaskWorker_SpoolCleanup(t *testing.T) {
	repo := mock.NewMockRepository()
	reaper := &recordingReaper{reaped: 2}
	worker := newTestWorker(repo, mock.NewMockEmbeddingProvider(false), reaper)
	ctx := context.Background()

	enqueue(t, repo, model.TaskTypeSpoolCleanup)
	require.NoError(t, worker.RunOnce(ctx))
	assert.Equal(t, 1, reaper.calls)
}

func TestTaskWorker_FailedTaskIsRescheduledWithBackoff(t *testing.T) {
	repo := mock.NewMockRepository()
	reaper := &recordingReaper{err: assert.AnError}
	worker := newTestWorker(repo, mock.NewMockEmbeddingProvider(false), reaper)
	ctx := context.Background()

	enqueue(t, repo, model.TaskTypeSpoolCleanup)
	require.NoError(t, worker.RunOnce(ctx))

	// The task is leased and scheduled for a later retry, so an immediate
	// second poll claims nothing.
	tasks, err := repo.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, 1, reaper.calls)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryDelay(0))
	assert.Equal(t, time.Minute, retryDelay(1))
	assert.Equal(t, 8*time.Minute, retryDelay(4))
	assert.Equal(t, time.Hour, retryDelay(20), "the backoff is capped")
}

func TestTaskWorker_ScheduleMaintenanceIsIdempotent(t *testing.T) {
	repo := mock.NewMockRepository()
	worker := newTestWorker(repo, mock.NewMockEmbeddingProvider(false), &recordingReaper{})
	ctx := context.Background()

	worker.scheduleMaintenance(ctx)
	worker.scheduleMaintenance(ctx)

	tasks, err := repo.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "one spool cleanup and one group eviction")
}
