// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"github.com/google/uuid"
)

// SearchType selects the search strategy.
type SearchType string

// Search types
const (
	// SearchTypeAuto tries semantic first and falls through to fulltext.
	SearchTypeAuto SearchType = "auto"
	// SearchTypeSemantic requires the embedding provider.
	SearchTypeSemantic SearchType = "semantic"
	// SearchTypeFulltext scans the plaintext index column.
	SearchTypeFulltext SearchType = "fulltext"
)

// Valid reports whether the search type is recognized.
func (t SearchType) Valid() bool {
	switch t {
	case SearchTypeAuto, SearchTypeSemantic, SearchTypeFulltext:
		return true
	}
	return false
}

// SearchQuery holds the parameters of an entry search.
type SearchQuery struct {
	Query               string     `json:"query"`
	Type                SearchType `json:"search_type"`
	Limit               int        `json:"limit"`
	IncludeEntry        bool       `json:"include_entry"`
	GroupByConversation bool       `json:"group_by_conversation"`
	After               *string    `json:"after,omitempty"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	EntryUID          uuid.UUID `json:"entry_uid"`
	ConversationUID   uuid.UUID `json:"conversation_uid"`
	ConversationTitle *string   `json:"conversation_title,omitempty"`
	Score             float64   `json:"score"`
	Kind              string    `json:"kind,omitempty"`
	Highlights        *string   `json:"highlights,omitempty"`
	Entry             *Entry    `json:"entry,omitempty"`
}

// SearchResults is a list of search results.
type SearchResults struct {
	Data        []SearchResult `json:"data"`
	AfterCursor *string        `json:"after_cursor"`
}
