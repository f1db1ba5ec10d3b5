// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

type membershipListRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
}

type membershipListResponse struct {
	Memberships []model.ConversationMembership `json:"memberships"`
}

// HandleMembershipList serves the membership_list subject.
func (s *MemoryService) HandleMembershipList(ctx context.Context, payload []byte) []byte {
	var request membershipListRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	memberships, err := s.membershipWriter.ListMemberships(ctx, principal, conversationUID)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, membershipListResponse{Memberships: memberships})
}

type membershipPutRequest struct {
	Auth            credentials       `json:"auth"`
	ConversationUID string            `json:"conversation_uid"`
	UserID          string            `json:"user_id"`
	AccessLevel     model.AccessLevel `json:"access_level"`
}

// HandleMembershipPut serves the membership_put subject.
func (s *MemoryService) HandleMembershipPut(ctx context.Context, payload []byte) []byte {
	var request membershipPutRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	membership, err := s.membershipWriter.PutMembership(ctx, principal, conversationUID, request.UserID, request.AccessLevel)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, membership)
}

type membershipRemoveRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
	UserID          string      `json:"user_id"`
}

// HandleMembershipRemove serves the membership_remove subject.
func (s *MemoryService) HandleMembershipRemove(ctx context.Context, payload []byte) []byte {
	var request membershipRemoveRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	if err := s.membershipWriter.RemoveMembership(ctx, principal, conversationUID, request.UserID); err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, map[string]bool{"removed": true})
}

type transferRequestRequest struct {
	Auth            credentials `json:"auth"`
	ConversationUID string      `json:"conversation_uid"`
	ToUserID        string      `json:"to_user_id"`
}

// HandleTransferRequest serves the transfer_request subject.
func (s *MemoryService) HandleTransferRequest(ctx context.Context, payload []byte) []byte {
	var request transferRequestRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	conversationUID, err := parseUID(request.ConversationUID, "conversation_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	transfer, err := s.transferWriter.RequestTransfer(ctx, principal, conversationUID, request.ToUserID)
	if err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, transfer)
}

type transferDecisionRequest struct {
	Auth        credentials `json:"auth"`
	TransferUID string      `json:"transfer_uid"`
}

// HandleTransferAccept serves the transfer_accept subject.
func (s *MemoryService) HandleTransferAccept(ctx context.Context, payload []byte) []byte {
	var request transferDecisionRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	transferUID, err := parseUID(request.TransferUID, "transfer_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	if err := s.transferWriter.AcceptTransfer(ctx, principal, transferUID); err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, map[string]bool{"accepted": true})
}

// HandleTransferReject serves the transfer_reject subject.
func (s *MemoryService) HandleTransferReject(ctx context.Context, payload []byte) []byte {
	var request transferDecisionRequest
	principal, err := s.authenticate(ctx, payload, &request, &request.Auth)
	if err != nil {
		return respondError(ctx, err)
	}
	transferUID, err := parseUID(request.TransferUID, "transfer_uid")
	if err != nil {
		return respondError(ctx, err)
	}

	if err := s.transferWriter.RejectTransfer(ctx, principal, transferUID); err != nil {
		return respondError(ctx, err)
	}
	return respond(ctx, map[string]bool{"rejected": true})
}
