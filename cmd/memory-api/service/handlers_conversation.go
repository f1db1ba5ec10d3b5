// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// parseUID parses a required uuid field.
func parseUID(value, field string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, errs.NewValidation(fmt.Sprintf("%s is not a valid uuid", field), err)
	}
	return parsed, nil
}

// parseOptionalUID parses an optional uuid field; nil input stays nil.
func parseOptionalUID(value *string, field string) (*uuid.UUID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := parseUID(*value, field)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

type conversationGetRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
}

type conversationGetResponse struct {
	Conversation *model.ConversationDetail `json:"conversation"`
	Revision     uint64                    `json:"revision"`
}

// HandleConversationGet serves the conversation_get subject.
func (s *MemoryService) HandleConversationGet(ctx context.Context, payload []byte) []byte {
	var request conversationGetRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	conversation, revision, err := s.conversationReader.GetConversation(ctx, principal, conversationUID)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, conversationGetResponse{Conversation: conversation, Revision: revision})
}

type conversationListRequest struct {
	Auth  credentials                `json:"auth"`
	Mode  model.ConversationListMode `json:"mode,omitempty"`
	Query string                     `json:"query,omitempty"`
	Limit int                        `json:"limit,omitempty"`
	After *string                    `json:"after,omitempty"`
}

// HandleConversationList serves the conversation_list subject.
func (s *MemoryService) HandleConversationList(ctx context.Context, payload []byte) []byte {
	var request conversationListRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}

	page, err := s.conversationReader.ListConversations(ctx, principal, model.ConversationListQuery{
		Mode:  request.Mode,
		Query: request.Query,
		Limit: request.Limit,
		After: request.After,
	})
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, page)
}

type conversationCreateRequest struct {
	Auth     credentials    `json:"auth"`
	Title    string         `json:"title"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HandleConversationCreate serves the conversation_create subject.
func (s *MemoryService) HandleConversationCreate(ctx context.Context, payload []byte) []byte {
	var request conversationCreateRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}

	conversation, revision, err := s.conversationWriter.CreateConversation(ctx, principal, request.Title, request.Metadata)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, conversationGetResponse{Conversation: conversation, Revision: revision})
}

type conversationUpdateRequest struct {
	Auth            credentials    `json:"auth"`
	ConversationUID string         `json:"conversation_uid"`
	Title           *string        `json:"title,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	// Revision is the expected storage revision; zero skips the check.
	Revision uint64 `json:"revision,omitempty"`
}

// HandleConversationUpdate serves the conversation_update subject.
func (s *MemoryService) HandleConversationUpdate(ctx context.Context, payload []byte) []byte {
	var request conversationUpdateRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	conversation, revision, err := s.conversationWriter.UpdateConversation(ctx, principal, conversationUID, request.Title, request.Metadata, request.Revision)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, conversationGetResponse{Conversation: conversation, Revision: revision})
}

type conversationDeleteRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
}

// HandleConversationDelete serves the conversation_delete subject.
func (s *MemoryService) HandleConversationDelete(ctx context.Context, payload []byte) []byte {
	var request conversationDeleteRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	if err := s.conversationWriter.DeleteConversation(ctx, principal, conversationUID); err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, map[string]bool{"deleted": true})
}

type conversationForkRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
	// BeforeEntryUID places the fork fence immediately before this entry;
	// nil forks at the end of the conversation.
	BeforeEntryUID *string `json:"before_entry_uid,omitempty"`
	Title          string  `json:"title,omitempty"`
}

// HandleConversationFork serves the conversation_fork subject.
func (s *MemoryService) HandleConversationFork(ctx context.Context, payload []byte) []byte {
	var request conversationForkRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}
	beforeEntryUID, err := parseOptionalUID(request.BeforeEntryUID, "before_entry_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	fork, revision, err := s.conversationWriter.ForkConversation(ctx, principal, conversationUID, beforeEntryUID, request.Title)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, conversationGetResponse{Conversation: fork, Revision: revision})
}

type conversationForksRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
}

type conversationForksResponse struct {
	Forks []model.ConversationForkSummary `json:"forks"`
}

// HandleConversationForks serves the conversation_forks subject.
func (s *MemoryService) HandleConversationForks(ctx context.Context, payload []byte) []byte {
	var request conversationForksRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	forks, err := s.conversationReader.ListForks(ctx, principal, conversationUID)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, conversationForksResponse{Forks: forks})
}

type conversationAdminListRequest struct {
	Auth credentials `json:"auth"`
	model.AdminConversationListQuery
}

// HandleConversationAdminList serves the conversation_admin_list subject.
// The orchestrator enforces the admin credential.
func (s *MemoryService) HandleConversationAdminList(ctx context.Context, payload []byte) []byte {
	var request conversationAdminListRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}

	page, err := s.conversationReader.AdminListConversations(ctx, principal, request.AdminConversationListQuery)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, page)
}
