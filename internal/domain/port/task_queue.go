// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// TaskQueue is the boundary to the background task store, used for vector
// indexing and spool/group cleanup.
type TaskQueue interface {
	// CreateTask enqueues a task. When the task carries a name, creation is
	// idempotent: a second task with the same name is dropped with a
	// Conflict the caller may ignore.
	CreateTask(ctx context.Context, task *model.Task) error

	// ClaimReadyTasks atomically leases up to limit tasks whose retry time
	// has passed. A claimed task is invisible to other claimants until it
	// is failed back onto the queue or succeeds.
	ClaimReadyTasks(ctx context.Context, limit int) ([]*model.Task, error)

	// SucceedTask deletes a completed task.
	SucceedTask(ctx context.Context, taskUID uuid.UUID) error

	// FailTask records the error, increments the retry counter and
	// schedules the next attempt after the delay.
	FailTask(ctx context.Context, taskUID uuid.UUID, errMsg string, retryDelay time.Duration) error
}
