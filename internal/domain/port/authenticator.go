// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// Authenticator resolves caller credentials into a principal. Bearer
// tokens resolve to a user id (OIDC subject); api keys resolve to an agent
// client id via the configured key table.
type Authenticator interface {
	// ParsePrincipal parses and validates a JWT token.
	ParsePrincipal(ctx context.Context, token string, logger *slog.Logger) (*model.Principal, error)

	// ResolveAPIKey maps an agent api key onto its client id.
	ResolveAPIKey(ctx context.Context, apiKey string) (*model.Principal, error)
}
