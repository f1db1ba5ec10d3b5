// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/resumer"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// readinessChecker reports whether the storage dependency is reachable.
type readinessChecker interface {
	IsReady(ctx context.Context) error
}

// memoryServiceOption configures the memory service.
type memoryServiceOption func(*MemoryService)

// WithAuthenticator sets the credential resolver.
func WithAuthenticator(auth port.Authenticator) memoryServiceOption {
	return func(s *MemoryService) {
		s.auth = auth
	}
}

// WithConversationReader sets the conversation read orchestrator.
func WithConversationReader(reader service.ConversationReader) memoryServiceOption {
	return func(s *MemoryService) {
		s.conversationReader = reader
	}
}

// WithConversationWriter sets the conversation write orchestrator.
func WithConversationWriter(writer service.ConversationWriter) memoryServiceOption {
	return func(s *MemoryService) {
		s.conversationWriter = writer
	}
}

// WithEntryReader sets the entry read orchestrator.
func WithEntryReader(reader service.EntryReader) memoryServiceOption {
	return func(s *MemoryService) {
		s.entryReader = reader
	}
}

// WithEntryWriter sets the entry write orchestrator.
func WithEntryWriter(writer service.EntryWriter) memoryServiceOption {
	return func(s *MemoryService) {
		s.entryWriter = writer
	}
}

// WithMembershipWriter sets the membership orchestrator.
func WithMembershipWriter(writer service.MembershipWriter) memoryServiceOption {
	return func(s *MemoryService) {
		s.membershipWriter = writer
	}
}

// WithTransferWriter sets the ownership transfer orchestrator.
func WithTransferWriter(writer service.TransferWriter) memoryServiceOption {
	return func(s *MemoryService) {
		s.transferWriter = writer
	}
}

// WithSearchReader sets the search orchestrator.
func WithSearchReader(reader service.SearchReader) memoryServiceOption {
	return func(s *MemoryService) {
		s.searchReader = reader
	}
}

// WithResumer sets the response resumer registry.
func WithResumer(registry *resumer.Registry) memoryServiceOption {
	return func(s *MemoryService) {
		s.resumer = registry
	}
}

// WithReadiness sets the readiness checker backing the is_ready subject.
func WithReadiness(checker readinessChecker) memoryServiceOption {
	return func(s *MemoryService) {
		s.readiness = checker
	}
}

// MemoryService is the front-door request handler set. Every handler takes
// a raw JSON payload and returns a response envelope, leaving transport
// details to the subscription adapter.
type MemoryService struct {
	auth               port.Authenticator
	conversationReader service.ConversationReader
	conversationWriter service.ConversationWriter
	entryReader        service.EntryReader
	entryWriter        service.EntryWriter
	membershipWriter   service.MembershipWriter
	transferWriter     service.TransferWriter
	searchReader       service.SearchReader
	resumer            *resumer.Registry
	readiness          readinessChecker
}

// NewMemoryService creates the front-door handler set using the option
// pattern.
func NewMemoryService(opts ...memoryServiceOption) *MemoryService {
	s := &MemoryService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// credentials carries the caller's authentication material. Requests send
// a bearer token, an agent api key, or both when an agent acts on behalf
// of a user.
type credentials struct {
	Token  string `json:"token,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

// resolvePrincipal turns request credentials into a principal. An api key
// yields the agent identity; a token yields the user identity; presenting
// both merges them into one principal.
func (s *MemoryService) resolvePrincipal(ctx context.Context, creds credentials) (model.Principal, error) {
	var principal model.Principal

	if strings.TrimSpace(creds.APIKey) == "" && strings.TrimSpace(creds.Token) == "" {
		return principal, errs.NewForbidden("request carries no credentials")
	}

	if creds.APIKey != "" {
		agent, err := s.auth.ResolveAPIKey(ctx, creds.APIKey)
		if err != nil {
			return principal, err
		}
		principal.ClientID = agent.ClientID
	}

	if creds.Token != "" {
		user, err := s.auth.ParsePrincipal(ctx, creds.Token, slog.Default())
		if err != nil {
			return principal, err
		}
		principal.UserID = user.UserID
		principal.Admin = user.Admin
	}

	return principal, nil
}

// authenticate decodes the payload into out, which must embed credentials
// under an "auth" key, and resolves the principal.
func (s *MemoryService) authenticate(ctx context.Context, payload []byte, out any, creds *credentials) (model.Principal, error) {
	if err := json.Unmarshal(payload, out); err != nil {
		return model.Principal{}, errs.NewValidation("malformed request payload", err)
	}
	principal, err := s.resolvePrincipal(ctx, *creds)
	if err != nil {
		return model.Principal{}, err
	}
	return principal, nil
}

// HandleReady answers the readiness probe subject.
func (s *MemoryService) HandleReady(ctx context.Context, _ []byte) []byte {
	if s.readiness != nil {
		if err := s.readiness.IsReady(ctx); err != nil {
			return respondError(ctx, err)
		}
	}
	return respond(ctx, "OK")
}

// Subjects maps every front-door subject onto its handler.
func (s *MemoryService) Subjects() map[string]func(context.Context, []byte) []byte {
	return map[string]func(context.Context, []byte) []byte{
		constants.ConversationGetSubject:       s.HandleConversationGet,
		constants.ConversationListSubject:      s.HandleConversationList,
		constants.ConversationCreateSubject:    s.HandleConversationCreate,
		constants.ConversationUpdateSubject:    s.HandleConversationUpdate,
		constants.ConversationDeleteSubject:    s.HandleConversationDelete,
		constants.ConversationForkSubject:      s.HandleConversationFork,
		constants.ConversationForksSubject:     s.HandleConversationForks,
		constants.ConversationAdminListSubject: s.HandleConversationAdminList,
		constants.EntriesListSubject:           s.HandleEntriesList,
		constants.EntryAppendSubject:           s.HandleEntryAppend,
		constants.EntrySyncSubject:             s.HandleEntrySync,
		constants.MembershipListSubject:        s.HandleMembershipList,
		constants.MembershipPutSubject:         s.HandleMembershipPut,
		constants.MembershipRemoveSubject:      s.HandleMembershipRemove,
		constants.TransferRequestSubject:       s.HandleTransferRequest,
		constants.TransferAcceptSubject:        s.HandleTransferAccept,
		constants.TransferRejectSubject:        s.HandleTransferReject,
		constants.SearchSubject:                s.HandleSearch,
		constants.ResponseCancelSubject:        s.HandleResponseCancel,
		constants.ResponseCheckSubject:         s.HandleResponseCheck,
		constants.ResponseEnabledSubject:       s.HandleResponseEnabled,
		constants.ReadySubject:                 s.HandleReady,
	}
}
