// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"time"

	"github.com/google/uuid"
)

// Task types handled by the background worker
const (
	// TaskTypeVectorIndex embeds pending entries and upserts their vectors.
	TaskTypeVectorIndex = "vector_index"
	// TaskTypeSpoolCleanup retries deletion of detached spool files.
	TaskTypeSpoolCleanup = "spool_cleanup"
	// TaskTypeGroupEviction hard-deletes soft-deleted groups past retention.
	TaskTypeGroupEviction = "group_eviction"
)

// Task is one background work item. Named tasks are idempotent: creating a
// second task with the same name is a no-op conflict.
type Task struct {
	UID        uuid.UUID      `json:"uid"`
	Type       string         `json:"type"`
	Name       *string        `json:"name,omitempty"`
	Body       map[string]any `json:"body,omitempty"`
	RetryCount int            `json:"retry_count"`
	RetryAt    time.Time      `json:"retry_at"`
	LastError  *string        `json:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Ready reports whether the task is due at the given time.
func (t *Task) Ready(now time.Time) bool {
	return !t.RetryAt.After(now)
}
