// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/resumer"
)

type responseCancelRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
}

type responseCancelResponse struct {
	Accepted bool `json:"accepted"`
	// RedirectAddress names the instance owning the recording when it is
	// not this one. The caller retries there; this is not an error.
	RedirectAddress string `json:"redirect_address,omitempty"`
}

// HandleResponseCancel serves the response_cancel subject.
func (s *MemoryService) HandleResponseCancel(ctx context.Context, payload []byte) []byte {
	var request responseCancelRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	accepted, err := s.resumer.Cancel(ctx, principal, conversationUID)
	if err != nil {
		var redirect *resumer.Redirect
		if errors.As(err, &redirect) {
			return respond(ctx, responseCancelResponse{RedirectAddress: redirect.Address})
		}
		return respondError(ctx, err)
	}
	return respond(ctx, responseCancelResponse{Accepted: accepted})
}

type responseCheckRequest struct {
	Auth             credentials `json:"auth"`
	ConversationUIDs []string    `json:"conversation_uids"`
}

type responseCheckResponse struct {
	Recording []uuid.UUID `json:"recording"`
}

// HandleResponseCheck serves the response_check subject: it filters the
// given conversation ids down to those with an in-progress recording the
// caller may read.
func (s *MemoryService) HandleResponseCheck(ctx context.Context, payload []byte) []byte {
	var request responseCheckRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}

	conversationUIDs := make([]uuid.UUID, 0, len(request.ConversationUIDs))
	for _, raw := range request.ConversationUIDs {
		conversationUID, err := parseUID(raw, "conversation_uids")
		if err != nil {
			return respondError(ctx, err)
		}
		conversationUIDs = append(conversationUIDs, conversationUID)
	}

	recording, err := s.resumer.CheckRecordings(ctx, principal, conversationUIDs)
	if err != nil {
		return respondError(ctx, err)
	}
	if recording == nil {
		recording = []uuid.UUID{}
	}
	return respond(ctx, responseCheckResponse{Recording: recording})
}

type responseEnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// HandleResponseEnabled serves the response_enabled subject. No
// credentials required; the answer is deployment configuration, not data.
func (s *MemoryService) HandleResponseEnabled(ctx context.Context, _ []byte) []byte {
	return respond(ctx, responseEnabledResponse{Enabled: s.resumer.IsEnabled()})
}
