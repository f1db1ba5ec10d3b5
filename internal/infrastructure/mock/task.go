// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// mockTaskClaimLease mirrors the storage claim lease for stale recovery.
const mockTaskClaimLease = 5 * time.Minute

// CreateTask enqueues a task, enforcing named-task idempotency.
func (m *MockRepository) CreateTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.Name != nil {
		if _, exists := m.taskNames[*task.Name]; exists {
			return errs.NewConflict("a task with this name is already queued")
		}
		m.taskNames[*task.Name] = task.UID
	}
	copied := *task
	m.tasks[task.UID] = &copied
	return nil
}

// ClaimReadyTasks leases up to limit tasks whose retry time has passed.
func (m *MockRepository) ClaimReadyTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var ready []*model.Task
	for _, task := range m.tasks {
		if !task.Ready(now) {
			continue
		}
		if claimedAt, claimed := m.taskClaims[task.UID]; claimed && now.Sub(claimedAt) < mockTaskClaimLease {
			continue
		}
		ready = append(ready, task)
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	claimed := make([]*model.Task, 0, len(ready))
	for _, task := range ready {
		m.taskClaims[task.UID] = now
		copied := *task
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

// SucceedTask deletes a completed task.
func (m *MockRepository) SucceedTask(ctx context.Context, taskUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskUID]
	if !ok {
		return errs.NewNotFound("task not found")
	}
	if task.Name != nil {
		delete(m.taskNames, *task.Name)
	}
	delete(m.tasks, taskUID)
	delete(m.taskClaims, taskUID)
	return nil
}

// FailTask records the error and schedules the next attempt.
func (m *MockRepository) FailTask(ctx context.Context, taskUID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskUID]
	if !ok {
		return errs.NewNotFound("task not found")
	}
	task.RetryCount++
	task.RetryAt = time.Now().Add(retryDelay)
	task.LastError = &errMsg
	delete(m.taskClaims, taskUID)
	return nil
}
