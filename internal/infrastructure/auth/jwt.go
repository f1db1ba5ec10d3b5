// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package auth resolves caller credentials into principals: bearer tokens
// validated against the platform JWKS, and agent api keys resolved through
// the configured key table.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// jwksCacheTTL bounds how long fetched signing keys are reused.
const jwksCacheTTL = 5 * time.Minute

// JWTAuthConfig configures JWT validation and the agent key table.
type JWTAuthConfig struct {
	// Issuer is the token issuer URL, used for JWKS discovery and the
	// issuer claim check.
	Issuer string

	// JWKSURL overrides the discovered JWKS endpoint when set.
	JWKSURL string

	// Audience is the expected audience claim.
	Audience string

	// AdminUsers lists principals granted the admin bypass.
	AdminUsers []string

	// APIKeys maps agent api keys onto client ids.
	APIKeys map[string]string

	// MockLocalPrincipal short-circuits validation for local development:
	// every token resolves to this principal. Never set in production.
	MockLocalPrincipal string
}

// heimdallClaims carries the custom claims the authorization layer adds to
// platform tokens.
type heimdallClaims struct {
	Principal string `json:"principal"`
	Email     string `json:"email,omitempty"`
}

// Validate implements validator.CustomClaims.
func (c *heimdallClaims) Validate(_ context.Context) error {
	if c.Principal == "" {
		return fmt.Errorf("token has no principal claim")
	}
	return nil
}

// JWTAuth validates bearer tokens and resolves api keys.
type JWTAuth struct {
	config    JWTAuthConfig
	validator *validator.Validator
	admins    map[string]bool
}

var _ port.Authenticator = (*JWTAuth)(nil)

// NewJWTAuth creates the authenticator. The JWKS provider caches signing
// keys and refreshes them on rotation.
func NewJWTAuth(config JWTAuthConfig) (*JWTAuth, error) {
	a := &JWTAuth{
		config: config,
		admins: make(map[string]bool, len(config.AdminUsers)),
	}
	for _, admin := range config.AdminUsers {
		a.admins[admin] = true
	}

	if config.MockLocalPrincipal != "" {
		slog.Warn("JWT validation disabled, all tokens resolve to the mock principal",
			"principal", config.MockLocalPrincipal,
		)
		return a, nil
	}

	issuerURL, err := url.Parse(config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	// jwks.NewCachingProvider takes its options as ...interface{}.
	var providerOpts []interface{}
	if config.JWKSURL != "" {
		jwksURL, err := url.Parse(config.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("invalid JWKS URL: %w", err)
		}
		providerOpts = append(providerOpts, jwks.WithCustomJWKSURI(jwksURL))
	}
	provider := jwks.NewCachingProvider(issuerURL, jwksCacheTTL, providerOpts...)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.PS256,
		issuerURL.String(),
		[]string{config.Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &heimdallClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}
	a.validator = jwtValidator
	return a, nil
}

// ParsePrincipal validates a bearer token and returns the principal it
// identifies.
func (a *JWTAuth) ParsePrincipal(ctx context.Context, token string, logger *slog.Logger) (*model.Principal, error) {
	if a.config.MockLocalPrincipal != "" {
		return a.principalFor(a.config.MockLocalPrincipal), nil
	}
	if token == "" {
		return nil, errs.NewForbidden("missing bearer token")
	}
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")

	parsed, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		logger.DebugContext(ctx, "token validation failed", "error", err)
		return nil, errs.NewForbidden("invalid token", err)
	}

	claims, ok := parsed.(*validator.ValidatedClaims)
	if !ok {
		return nil, errs.NewUnexpected("unexpected claim type from token validation")
	}
	custom, ok := claims.CustomClaims.(*heimdallClaims)
	if !ok || custom.Principal == "" {
		return nil, errs.NewForbidden("token has no principal claim")
	}
	return a.principalFor(custom.Principal), nil
}

// ResolveAPIKey maps an agent api key onto its client id.
func (a *JWTAuth) ResolveAPIKey(ctx context.Context, apiKey string) (*model.Principal, error) {
	clientID, ok := a.config.APIKeys[apiKey]
	if !ok {
		return nil, errs.NewForbidden("unknown api key")
	}
	return &model.Principal{ClientID: clientID}, nil
}

func (a *JWTAuth) principalFor(userID string) *model.Principal {
	return &model.Principal{
		UserID: userID,
		Admin:  a.admins[userID],
	}
}
