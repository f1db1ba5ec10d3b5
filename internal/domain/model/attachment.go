// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a boundary-only record for an uploaded file. Blob storage
// is external; the record exists so group deletion can cascade.
type Attachment struct {
	UID         uuid.UUID  `json:"uid"`
	GroupUID    uuid.UUID  `json:"group_uid"`
	StorageKey  string     `json:"storage_key"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	SHA256      string     `json:"sha256"`
	UserID      string     `json:"user_id"`
	EntryUID    *uuid.UUID `json:"entry_uid,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
