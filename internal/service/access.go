// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package service contains the use-case orchestrators. Each orchestrator
// receives its collaborators through option-pattern constructors and talks
// to storage only through the domain ports.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// accessChecker resolves the effective access level of a principal at a
// group. Every orchestrator embeds one so checks short-circuit before any
// write.
type accessChecker struct {
	memberships port.MembershipReader
}

// effectiveAccess returns the principal's access level at the group.
// Admin credentials rank as owner without a membership lookup; everyone
// else needs a membership row.
func (a *accessChecker) effectiveAccess(ctx context.Context, principal model.Principal, groupUID uuid.UUID) (model.AccessLevel, error) {
	if principal.Admin {
		return model.AccessOwner, nil
	}
	if !principal.IsUser() {
		return "", errs.NewForbidden("caller has no user identity")
	}

	membership, err := a.memberships.GetMembership(ctx, groupUID, principal.UserID)
	if err != nil {
		var notFound errs.NotFound
		if stderrors.As(err, &notFound) {
			// Non-members learn nothing about the group's existence.
			return "", errs.NewNotFound("conversation not found")
		}
		return "", err
	}
	return membership.AccessLevel, nil
}

// AccessPolicy exposes access lattice evaluation to layers outside the
// orchestrators, such as the response resumer.
type AccessPolicy struct {
	checker accessChecker
}

// NewAccessPolicy creates an access policy backed by the membership reader.
func NewAccessPolicy(memberships port.MembershipReader) AccessPolicy {
	return AccessPolicy{checker: accessChecker{memberships: memberships}}
}

// Require asserts the principal holds at least the given level at the group.
func (p AccessPolicy) Require(ctx context.Context, principal model.Principal, groupUID uuid.UUID, min model.AccessLevel) (model.AccessLevel, error) {
	return p.checker.requireAccess(ctx, principal, groupUID, min)
}

// requireAccess asserts the principal holds at least the given level at
// the group and returns the effective level.
func (a *accessChecker) requireAccess(ctx context.Context, principal model.Principal, groupUID uuid.UUID, min model.AccessLevel) (model.AccessLevel, error) {
	level, err := a.effectiveAccess(ctx, principal, groupUID)
	if err != nil {
		return "", err
	}
	if !level.AtLeast(min) {
		slog.DebugContext(ctx, "access denied",
			"group_uid", groupUID,
			"have", level,
			"need", min,
		)
		return "", errs.NewForbidden(fmt.Sprintf("operation requires %s access", min))
	}
	return level, nil
}
