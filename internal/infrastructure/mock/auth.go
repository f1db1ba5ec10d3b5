// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// MockAuthenticator is a mock implementation of the Authenticator interface.
// Tokens resolve to a user principal carrying the token as subject; the
// "admin:" prefix marks an admin credential. API keys resolve through the
// configured table.
type MockAuthenticator struct {
	// APIKeys maps api keys onto client ids.
	APIKeys map[string]string
}

// Ensure MockAuthenticator implements the Authenticator interface
var _ port.Authenticator = (*MockAuthenticator)(nil)

// NewMockAuthenticator creates a new mock authenticator for testing
func NewMockAuthenticator() *MockAuthenticator {
	return &MockAuthenticator{APIKeys: make(map[string]string)}
}

// ParsePrincipal resolves a bearer token into a user principal.
func (m *MockAuthenticator) ParsePrincipal(ctx context.Context, token string, logger *slog.Logger) (*model.Principal, error) {
	if token == "" {
		return nil, errs.NewValidation("token is required")
	}
	principal := &model.Principal{UserID: token}
	if subject, ok := strings.CutPrefix(token, "admin:"); ok {
		principal.UserID = subject
		principal.Admin = true
	}
	if logger != nil {
		logger.DebugContext(ctx, "mock principal parsed", "user_id", principal.UserID)
	}
	return principal, nil
}

// ResolveAPIKey maps an agent api key onto its client id.
func (m *MockAuthenticator) ResolveAPIKey(ctx context.Context, apiKey string) (*model.Principal, error) {
	clientID, ok := m.APIKeys[apiKey]
	if !ok {
		return nil, errs.NewForbidden("unknown api key")
	}
	return &model.Principal{ClientID: clientID}, nil
}
