// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// taskClaimLease bounds how long a claimed task stays invisible; a worker
// that died mid-task loses its claim after this.
const taskClaimLease = 5 * time.Minute

// taskRecord wraps a task with its claim timestamp. Claims are taken with
// a revision-checked update, so two workers cannot lease the same task.
type taskRecord struct {
	model.Task
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// CreateTask enqueues a task. Named tasks are idempotent through a
// kv.Create constraint key.
func (s *storage) CreateTask(ctx context.Context, task *model.Task) error {
	if task.Name != nil {
		nameKey := fmt.Sprintf(constants.KVKeyTaskName, model.HashIdentity(*task.Name))
		if _, err := s.create(ctx, constants.KVBucketNameTasks, nameKey, task.UID); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				slog.DebugContext(ctx, "named task already queued", "task_name", *task.Name)
				return errs.NewConflict("task with same name already queued")
			}
			return errs.NewServiceUnavailable("failed to enqueue task")
		}
	}

	record := &taskRecord{Task: *task}
	if _, err := s.put(ctx, constants.KVBucketNameTasks, fmt.Sprintf(constants.KVKeyTask, task.UID), record); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue task", "error", err, "task_uid", task.UID, "task_type", task.Type)
		return errs.NewServiceUnavailable("failed to enqueue task")
	}

	slog.DebugContext(ctx, "nats storage: task enqueued",
		"task_uid", task.UID,
		"task_type", task.Type)
	return nil
}

// ClaimReadyTasks atomically leases up to limit due tasks.
func (s *storage) ClaimReadyTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameTasks, "task.*")
	if err != nil {
		return nil, errs.NewServiceUnavailable("failed to scan task queue")
	}
	sort.Strings(keys)

	now := time.Now()
	var claimed []*model.Task
	for _, key := range keys {
		if limit > 0 && len(claimed) >= limit {
			break
		}

		record := &taskRecord{}
		rev, err := s.get(ctx, constants.KVBucketNameTasks, key, record)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to scan task queue")
		}

		if !record.Ready(now) {
			continue
		}
		if record.ClaimedAt != nil && now.Sub(*record.ClaimedAt) < taskClaimLease {
			continue
		}

		record.ClaimedAt = &now
		if _, err := s.putWithRevision(ctx, constants.KVBucketNameTasks, key, record, rev); err != nil {
			// Another worker won the claim.
			continue
		}

		task := record.Task
		claimed = append(claimed, &task)
	}
	return claimed, nil
}

// SucceedTask deletes a completed task and its name constraint.
func (s *storage) SucceedTask(ctx context.Context, taskUID uuid.UUID) error {
	key := fmt.Sprintf(constants.KVKeyTask, taskUID)
	record := &taskRecord{}
	if _, err := s.get(ctx, constants.KVBucketNameTasks, key, record); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return errs.NewServiceUnavailable("failed to complete task")
	}

	if record.Name != nil {
		nameKey := fmt.Sprintf(constants.KVKeyTaskName, model.HashIdentity(*record.Name))
		if err := s.delete(ctx, constants.KVBucketNameTasks, nameKey); err != nil {
			return err
		}
	}
	return s.delete(ctx, constants.KVBucketNameTasks, key)
}

// FailTask records the error and schedules the next attempt. The task goes
// back on the queue with its claim released.
func (s *storage) FailTask(ctx context.Context, taskUID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	key := fmt.Sprintf(constants.KVKeyTask, taskUID)
	record := &taskRecord{}
	rev, err := s.get(ctx, constants.KVBucketNameTasks, key, record)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return errs.NewNotFound("task not found")
		}
		return errs.NewServiceUnavailable("failed to record task failure")
	}

	record.RetryCount++
	record.RetryAt = time.Now().Add(retryDelay)
	record.LastError = &errMsg
	record.ClaimedAt = nil

	if _, err := s.putWithRevision(ctx, constants.KVBucketNameTasks, key, record, rev); err != nil {
		return errs.NewConflict("task was modified concurrently")
	}

	slog.WarnContext(ctx, "nats storage: task failed, retry scheduled",
		"task_uid", taskUID,
		"task_type", record.Type,
		"retry_count", record.RetryCount,
		"retry_at", record.RetryAt,
		"last_error", errMsg)
	return nil
}
