// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

type entriesListRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`

	// Channel restricts the list to HISTORY or MEMORY; empty means both.
	Channel *model.Channel `json:"channel,omitempty"`
	// Epoch is "", "latest", "all", or an integer string.
	Epoch         string  `json:"epoch,omitempty"`
	ClientID      *string `json:"client_id,omitempty"`
	AfterEntryUID *string `json:"after_entry_uid,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	AllForks      bool    `json:"all_forks,omitempty"`
}

// HandleEntriesList serves the entries_list subject.
func (s *MemoryService) HandleEntriesList(ctx context.Context, payload []byte) []byte {
	var request entriesListRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}
	afterEntryUID, err := parseOptionalUID(request.AfterEntryUID, "after_entry_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	page, err := s.entryReader.GetEntries(ctx, principal, conversationUID, model.EntryListQuery{
		Channel:       request.Channel,
		Epoch:         request.Epoch,
		ClientID:      request.ClientID,
		AfterEntryUID: afterEntryUID,
		Limit:         request.Limit,
		AllForks:      request.AllForks,
	})
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, page)
}

type entryAppendRequest struct {
	Auth            credentials                `json:"auth"`
	ConversationUID string                     `json:"conversation_uid"`
	Entries         []model.CreateEntryRequest `json:"entries"`
}

type entryAppendResponse struct {
	Entries []model.Entry `json:"entries"`
}

// HandleEntryAppend serves the entry_append subject.
func (s *MemoryService) HandleEntryAppend(ctx context.Context, payload []byte) []byte {
	var request entryAppendRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	entries, err := s.entryWriter.AppendEntries(ctx, principal, conversationUID, request.Entries)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, entryAppendResponse{Entries: entries})
}

type entrySyncRequest struct {
	Auth            credentials     `json:"auth"`
	ConversationUID string          `json:"conversation_uid"`
	ContentType     string          `json:"content_type"`
	Content         json.RawMessage `json:"content"`
}

// HandleEntrySync serves the entry_sync subject.
func (s *MemoryService) HandleEntrySync(ctx context.Context, payload []byte) []byte {
	var request entrySyncRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := s.entryWriter.SyncAgentEntry(ctx, principal, conversationUID, request.ContentType, request.Content)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, result)
}

type searchRequest struct {
	Auth credentials `json:"auth"`
	model.SearchQuery
}

// HandleSearch serves the search subject.
func (s *MemoryService) HandleSearch(ctx context.Context, payload []byte) []byte {
	var request searchRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}

	results, err := s.searchReader.Search(ctx, principal, request.SearchQuery)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, results)
}
