// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package worker drains the background task queue: vector indexing of
// entries, spool cleanup and eviction of soft-deleted groups. Any number
// of instances may run the worker; the queue's claim lease keeps them from
// stepping on each other.
package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/concurrent"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

const (
	// defaultPollInterval is how often the worker polls for ready tasks.
	defaultPollInterval = 5 * time.Second

	// defaultGroupRetention is how long a soft-deleted group survives
	// before eviction.
	defaultGroupRetention = 30 * 24 * time.Hour

	// maintenanceInterval is how often the singleton maintenance tasks are
	// re-enqueued. Conflicts with already-queued ones are ignored.
	maintenanceInterval = 5 * time.Minute

	// claimBatchSize bounds how many tasks one poll leases.
	claimBatchSize = 16

	// indexBatchSize bounds how many entries one vector-index sweep embeds.
	indexBatchSize = 32

	// evictionBatchSize bounds how many groups one eviction pass deletes.
	evictionBatchSize = 50

	// retryBaseDelay seeds the failure backoff, doubled per retry.
	retryBaseDelay = 30 * time.Second

	// retryMaxDelay caps the failure backoff.
	retryMaxDelay = time.Hour
)

// SpoolReaper retries deletion of orphaned spool files.
type SpoolReaper interface {
	ReapOrphanSpools(ctx context.Context) (int, error)
}

// Config carries the worker knobs.
type Config struct {
	// PollInterval overrides how often the queue is polled. Zero means the
	// default.
	PollInterval time.Duration

	// GroupRetention overrides how long soft-deleted groups are kept.
	// Zero means the default.
	GroupRetention time.Duration

	// Parallelism bounds concurrent task execution per poll.
	Parallelism int
}

// taskWorkerOption configures the worker.
type taskWorkerOption func(*TaskWorker)

// WithWorkerConfig sets the worker configuration.
func WithWorkerConfig(config Config) taskWorkerOption {
	return func(w *TaskWorker) {
		w.config = config
	}
}

// WithWorkerQueue sets the task queue.
func WithWorkerQueue(queue port.TaskQueue) taskWorkerOption {
	return func(w *TaskWorker) {
		w.queue = queue
	}
}

// WithWorkerEntries sets the entry storage used by indexing sweeps.
func WithWorkerEntries(entries port.EntryReaderWriter) taskWorkerOption {
	return func(w *TaskWorker) {
		w.entries = entries
	}
}

// WithWorkerConversations sets the conversation storage used by eviction.
func WithWorkerConversations(conversations port.ConversationReaderWriter) taskWorkerOption {
	return func(w *TaskWorker) {
		w.conversations = conversations
	}
}

// WithWorkerSearch sets the search backend receiving embeddings.
func WithWorkerSearch(search port.SearchBackend) taskWorkerOption {
	return func(w *TaskWorker) {
		w.search = search
	}
}

// WithWorkerEmbeddings sets the embedding provider.
func WithWorkerEmbeddings(embeddings port.EmbeddingProvider) taskWorkerOption {
	return func(w *TaskWorker) {
		w.embeddings = embeddings
	}
}

// WithWorkerSpoolReaper sets the resumer's spool reaper.
func WithWorkerSpoolReaper(reaper SpoolReaper) taskWorkerOption {
	return func(w *TaskWorker) {
		w.reaper = reaper
	}
}

// TaskWorker claims and executes background tasks.
type TaskWorker struct {
	config        Config
	queue         port.TaskQueue
	entries       port.EntryReaderWriter
	conversations port.ConversationReaderWriter
	search        port.SearchBackend
	embeddings    port.EmbeddingProvider
	reaper        SpoolReaper
}

// NewTaskWorker creates the worker using the option pattern.
func NewTaskWorker(opts ...taskWorkerOption) *TaskWorker {
	w := &TaskWorker{}
	for _, opt := range opts {
		opt(w)
	}
	if w.config.PollInterval <= 0 {
		w.config.PollInterval = defaultPollInterval
	}
	if w.config.GroupRetention <= 0 {
		w.config.GroupRetention = defaultGroupRetention
	}
	if w.config.Parallelism <= 0 {
		w.config.Parallelism = 4
	}
	return w
}

// Run polls the queue until the context is cancelled. Maintenance tasks
// are re-enqueued on their own interval so cleanup keeps running even when
// no request traffic seeds the queue.
func (w *TaskWorker) Run(ctx context.Context) {
	slog.InfoContext(ctx, "task worker started",
		"poll_interval", w.config.PollInterval,
		"group_retention", w.config.GroupRetention,
	)

	w.scheduleMaintenance(ctx)

	poll := time.NewTicker(w.config.PollInterval)
	defer poll.Stop()
	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "task worker stopped")
			return
		case <-maintenance.C:
			w.scheduleMaintenance(ctx)
		case <-poll.C:
			if err := w.RunOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "task poll failed", "error", err)
			}
		}
	}
}

// RunOnce claims one batch of ready tasks and executes it.
func (w *TaskWorker) RunOnce(ctx context.Context) error {
	tasks, err := w.queue.ClaimReadyTasks(ctx, claimBatchSize)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	pool := concurrent.NewWorkerPool(w.config.Parallelism)
	fns := make([]func() error, len(tasks))
	for i, task := range tasks {
		task := task
		fns[i] = func() error {
			w.execute(ctx, task)
			return nil
		}
	}
	return pool.Run(ctx, fns...)
}

// execute runs a single claimed task and settles it with the queue.
func (w *TaskWorker) execute(ctx context.Context, task *model.Task) {
	var err error
	switch task.Type {
	case model.TaskTypeVectorIndex:
		err = w.runVectorIndex(ctx)
	case model.TaskTypeSpoolCleanup:
		err = w.runSpoolCleanup(ctx)
	case model.TaskTypeGroupEviction:
		err = w.runGroupEviction(ctx)
	default:
		// Unknown types are dropped rather than retried forever.
		slog.WarnContext(ctx, "dropping task of unknown type",
			"task_uid", task.UID,
			"task_type", task.Type,
		)
	}

	if err != nil {
		slog.ErrorContext(ctx, "task failed",
			"error", err,
			"task_uid", task.UID,
			"task_type", task.Type,
			"retry_count", task.RetryCount,
		)
		if failErr := w.queue.FailTask(ctx, task.UID, err.Error(), retryDelay(task.RetryCount)); failErr != nil {
			slog.ErrorContext(ctx, "failed to reschedule task", "error", failErr, "task_uid", task.UID)
		}
		return
	}
	if err := w.queue.SucceedTask(ctx, task.UID); err != nil {
		slog.ErrorContext(ctx, "failed to settle task", "error", err, "task_uid", task.UID)
	}
}

// runVectorIndex projects unindexed HISTORY entries into plaintext, then
// embeds entries whose indexed content is set but which have no vector yet.
// With no provider configured only the projection runs; the entries stay
// pending until one is.
func (w *TaskWorker) runVectorIndex(ctx context.Context) error {
	if err := w.runContentIndex(ctx); err != nil {
		return err
	}

	if w.embeddings == nil || !w.embeddings.Enabled() {
		return nil
	}

	pending, err := w.entries.FindEntriesPendingVectorIndexing(ctx, indexBatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	inputs := make([]string, len(pending))
	for i, entry := range pending {
		if entry.IndexedContent != nil {
			inputs[i] = *entry.IndexedContent
		}
	}
	vectors, err := w.embeddings.Embed(ctx, inputs)
	if err != nil {
		return err
	}
	if len(vectors) != len(pending) {
		return errs.NewUnexpected("embedding provider returned a mismatched vector count")
	}

	embeddingModel := w.embeddings.Model()
	now := time.Now().UTC()
	for i, entry := range pending {
		if err := w.search.UpsertEmbedding(ctx, entry.GroupUID, entry.ConversationUID, entry.UID, vectors[i], embeddingModel); err != nil {
			return err
		}
		if err := w.entries.SetIndexedAt(ctx, entry.UID, entry.GroupUID, now); err != nil {
			return err
		}
	}

	slog.DebugContext(ctx, "vector index sweep complete", "entries", len(pending))

	// A full batch suggests more rows are waiting; chain another sweep.
	if len(pending) == indexBatchSize {
		w.enqueueSingleton(ctx, model.TaskTypeVectorIndex)
	}
	return nil
}

// runContentIndex fills the plaintext search projection of HISTORY entries
// appended without one. The projection feeds fulltext search and marks the
// entry pending for the vector sweep. Entries with no text get an empty
// projection so they are not re-listed forever.
func (w *TaskWorker) runContentIndex(ctx context.Context) error {
	position := ""
	indexed := 0
	for {
		entries, next, err := w.entries.ListUnindexedEntries(ctx, indexBatchSize, position)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := w.entries.SetIndexedContent(ctx, entry.UID, entry.GroupUID, contentText(entry.Content)); err != nil {
				return err
			}
			indexed++
		}
		if next == "" {
			break
		}
		position = next
	}
	if indexed > 0 {
		slog.DebugContext(ctx, "content index sweep complete", "entries", indexed)
	}
	return nil
}

// contentText flattens the text items of an entry's content into one
// plaintext projection.
func contentText(content json.RawMessage) string {
	items, err := model.ParseContentItems(content)
	if err != nil {
		return ""
	}
	var parts []string
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if text, ok := m["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// runSpoolCleanup retries deletion of orphaned spool files.
func (w *TaskWorker) runSpoolCleanup(ctx context.Context) error {
	if w.reaper == nil {
		return nil
	}
	_, err := w.reaper.ReapOrphanSpools(ctx)
	return err
}

// runGroupEviction hard-deletes groups soft-deleted longer ago than the
// retention window, embeddings included.
func (w *TaskWorker) runGroupEviction(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.config.GroupRetention)
	groupUIDs, err := w.conversations.ListDeletedGroups(ctx, cutoff, evictionBatchSize)
	if err != nil {
		return err
	}

	for _, groupUID := range groupUIDs {
		if w.search != nil {
			if err := w.search.DeleteByGroup(ctx, groupUID); err != nil {
				return err
			}
		}
		if err := w.conversations.HardDeleteGroup(ctx, groupUID); err != nil {
			return err
		}
		slog.InfoContext(ctx, "evicted soft-deleted group", "group_uid", groupUID)
	}

	if len(groupUIDs) == evictionBatchSize {
		w.enqueueSingleton(ctx, model.TaskTypeGroupEviction)
	}
	return nil
}

// scheduleMaintenance enqueues the singleton cleanup tasks.
func (w *TaskWorker) scheduleMaintenance(ctx context.Context) {
	w.enqueueSingleton(ctx, model.TaskTypeSpoolCleanup)
	w.enqueueSingleton(ctx, model.TaskTypeGroupEviction)
}

// enqueueSingleton creates a named task, ignoring the conflict when one is
// already queued.
func (w *TaskWorker) enqueueSingleton(ctx context.Context, taskType string) {
	name := taskType
	task := &model.Task{
		UID:       uuid.New(),
		Type:      taskType,
		Name:      &name,
		RetryAt:   time.Now(),
		CreatedAt: time.Now(),
	}
	if err := w.queue.CreateTask(ctx, task); err != nil {
		var conflict errs.Conflict
		if stderrors.As(err, &conflict) {
			return
		}
		slog.WarnContext(ctx, "failed to enqueue maintenance task",
			"error", err,
			"task_type", taskType,
		)
	}
}

// retryDelay doubles the base delay per prior retry, capped at the maximum.
func retryDelay(retryCount int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < retryCount && delay < retryMaxDelay; i++ {
		delay *= 2
	}
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
