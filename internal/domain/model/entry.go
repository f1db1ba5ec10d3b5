// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel separates the user-visible transcript from per-agent working memory.
type Channel string

// Channel constants
const (
	// ChannelHistory is the user-visible transcript.
	ChannelHistory Channel = "HISTORY"
	// ChannelMemory is per-agent working memory, versioned by epoch.
	ChannelMemory Channel = "MEMORY"
)

// Valid reports whether the channel is recognized.
func (c Channel) Valid() bool {
	return c == ChannelHistory || c == ChannelMemory
}

// Entry is the atomic unit of stored content. Entries are immutable except
// for the indexing columns and are ordered within a group by (CreatedAt, UID).
type Entry struct {
	UID             uuid.UUID `json:"uid"`
	ConversationUID uuid.UUID `json:"conversation_uid"`
	// GroupUID is denormalized so fork-spanning queries stay within one
	// key prefix.
	GroupUID uuid.UUID `json:"group_uid"`

	UserID   *string `json:"user_id,omitempty"`
	ClientID *string `json:"client_id,omitempty"`

	Channel Channel `json:"channel"`
	// Epoch versions MEMORY entries per (conversation, client); unset for
	// HISTORY entries.
	Epoch *int64 `json:"epoch,omitempty"`

	ContentType string `json:"content_type"`
	// Content is opaque to the engine; plaintext in the domain model, the
	// storage layer applies the at-rest encryption envelope.
	Content json.RawMessage `json:"content"`

	// IndexedContent is the plaintext search projection, stored unencrypted
	// in its own column by design.
	IndexedContent *string    `json:"indexed_content,omitempty"`
	IndexedAt      *time.Time `json:"indexed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CreateEntryRequest is the input for creating an entry.
type CreateEntryRequest struct {
	Content        json.RawMessage `json:"content"`
	ContentType    string          `json:"content_type"`
	Channel        Channel         `json:"channel"`
	Epoch          *int64          `json:"epoch,omitempty"`
	UserID         *string         `json:"user_id,omitempty"`
	IndexedContent *string         `json:"indexed_content,omitempty"`

	// Fork metadata honored when the append auto-creates the conversation.
	ForkedAtConversationUID *uuid.UUID `json:"forked_at_conversation_uid,omitempty"`
	ForkedAtEntryUID        *uuid.UUID `json:"forked_at_entry_uid,omitempty"`
}

// EntryListQuery holds the parameters of an entry list.
type EntryListQuery struct {
	// Channel restricts the list to one channel; nil means both.
	Channel *Channel `json:"channel,omitempty"`
	// Epoch is the raw epoch filter: "", "latest", "all", or an integer.
	Epoch string `json:"epoch,omitempty"`
	// ClientID scopes MEMORY entries to one agent.
	ClientID *string `json:"client_id,omitempty"`
	// AfterEntryUID resumes the list after the given entry.
	AfterEntryUID *uuid.UUID `json:"after_entry_uid,omitempty"`
	Limit         int        `json:"limit"`
	// AllForks disables ancestry filtering and returns the whole group.
	AllForks bool `json:"all_forks"`
}

// PagedEntries is a paginated list of entries.
type PagedEntries struct {
	Data        []Entry `json:"data"`
	AfterCursor *string `json:"after_cursor,omitempty"`
}

// SyncResult reports the decision taken by an agent memory sync.
type SyncResult struct {
	Entry            *Entry `json:"entry,omitempty"`
	Epoch            *int64 `json:"epoch"`
	NoOp             bool   `json:"no_op"`
	EpochIncremented bool   `json:"epoch_incremented"`
}

// MemoryEpochFilter filters MEMORY entries by epoch.
type MemoryEpochFilter struct {
	Mode  string
	Epoch *int64
}

// Epoch filter modes
const (
	EpochModeLatest   = "latest"
	EpochModeAll      = "all"
	EpochModeSpecific = "specific"
)

// ParseMemoryEpochFilter parses the wire-level epoch filter:
// ""/"latest" selects the latest epoch, "all" every epoch, and a bare
// integer a specific epoch.
func ParseMemoryEpochFilter(raw string) (*MemoryEpochFilter, error) {
	value := strings.TrimSpace(strings.ToLower(raw))
	switch value {
	case "", EpochModeLatest:
		return &MemoryEpochFilter{Mode: EpochModeLatest}, nil
	case EpochModeAll:
		return &MemoryEpochFilter{Mode: EpochModeAll}, nil
	default:
		epoch, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid epoch filter %q; expected latest, all, or an integer epoch", raw)
		}
		return &MemoryEpochFilter{Mode: EpochModeSpecific, Epoch: &epoch}, nil
	}
}

// ParseContentItems parses entry content as an array of opaque items for
// the sync prefix/divergence test. The engine never interprets item fields.
func ParseContentItems(content json.RawMessage) ([]any, error) {
	if len(content) == 0 {
		return []any{}, nil
	}
	var items []any
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, fmt.Errorf("entry content is not an array: %w", err)
	}
	return items, nil
}

// MarshalContentItems encodes an item array back into entry content.
func MarshalContentItems(items []any) (json.RawMessage, error) {
	if items == nil {
		items = []any{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content items: %w", err)
	}
	return data, nil
}
